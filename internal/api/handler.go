package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler holds the API's dependencies.
type Handler struct {
	svc           Services
	adminTenantID string
}

// NewHandler creates a handler. adminTenantID is the only tenant that may
// manage global rules.
func NewHandler(svc Services, adminTenantID string) *Handler {
	return &Handler{svc: svc, adminTenantID: adminTenantID}
}

// Health reports dependency status; it always answers 200.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := map[string]string{}
	status := "healthy"

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			return
		}
		checks[name] = "ok"
	}
	if h.svc.Repo != nil {
		check("repository", func() error { return h.svc.Repo.Ping(ctx) })
	}
	if h.svc.Cache != nil {
		check("cache", func() error { return h.svc.Cache.Ping(ctx) })
	}
	if h.svc.Bus != nil {
		check("bus", func() error { return h.svc.Bus.Ping(ctx) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.svc.Version,
		"checks":  checks,
	})
}

// Ready answers 503 until the database is reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.svc.Repo != nil {
		if err := h.svc.Repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"ready": "true"})
}

func scopeParam(r *http.Request) (domain.Scope, error) {
	raw := chi.URLParam(r, "scope")
	scope, ok := domain.ParseScope(raw)
	if !ok {
		return "", fmt.Errorf("%w: unknown scope %q", domain.ErrInvalidInput, raw)
	}
	return scope, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON request body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// writeError maps domain errors to status codes. Evaluation failures are
// checked first since they may also wrap ErrNotFound.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrEvaluation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrIntegrity):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errForbidden):
		status = http.StatusForbidden
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"tenant_id", GetTenantID(r.Context()),
			"error", err,
		)
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody(msg))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
