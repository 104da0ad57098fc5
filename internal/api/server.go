// Package api serves Kestrel over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
	"github.com/opensource-finance/kestrel/internal/explain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scores"
)

// AsyncWorker consumes queued evaluation requests.
type AsyncWorker interface {
	Serves(tenantID string) bool
}

// Services are the components the API calls into. Bus, Worker, Cache and
// Metrics are optional; async evaluation needs both Bus and Worker.
type Services struct {
	Repo      domain.Repository
	Engine    *engine.Engine
	Registry  *rules.Registry
	Scores    *scores.Store
	Explainer *explain.Explainer
	Bus       domain.EventBus
	Worker    AsyncWorker
	Cache     domain.Cache
	Metrics   *metrics.Collector

	// MetricsPath defaults to /metrics.
	MetricsPath string
	Version     string
}

// Server is the HTTP server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer builds the router.
func NewServer(cfg domain.ServerConfig, svc Services) *Server {
	handler := NewHandler(svc, cfg.AdminTenantID)
	router := chi.NewRouter()

	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if svc.Metrics != nil {
		path := svc.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, svc.Metrics.Handler())
	}

	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)

		r.Post("/evaluations/{scope}/{entityId}", handler.Evaluate)

		r.Get("/scores/{scope}", handler.ListScores)
		r.Get("/scores/{scope}/{entityId}", handler.GetScore)
		r.Get("/scores/{scope}/{entityId}/explanation", handler.Explain)

		r.Get("/effective-rules/{scope}", handler.EffectiveRules)
		r.Get("/effective-rules/{scope}/{code}", handler.EffectiveRule)

		r.Post("/rules", handler.CreateRule)
		r.Get("/rules/{id}", handler.GetRule)
		r.Put("/rules/{id}", handler.UpdateRule)
		r.Delete("/rules/{id}", handler.DeleteRule)

		r.Put("/companies/{id}", handler.PutCompany)
		r.Put("/documents/{id}", handler.PutDocument)
		r.Put("/documents/{id}/features", handler.PutFeatureSet)
		r.Put("/invoices/{id}", handler.PutInvoice)
	})

	return &Server{router: router, handler: handler, config: cfg}
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the router, for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
