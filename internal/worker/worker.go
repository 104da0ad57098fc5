// Package worker evaluates entities asynchronously from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
)

// Evaluator runs one evaluation.
type Evaluator interface {
	Evaluate(ctx context.Context, tenantID string, scope domain.Scope, entityID string) (*engine.Evaluation, error)
}

// Worker consumes evaluation requests for a fixed set of tenants.
type Worker struct {
	bus       domain.EventBus
	evaluator Evaluator

	mu            sync.Mutex
	subscriptions []domain.Subscription
	tenants       map[string]bool
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

// New creates a worker.
func New(bus domain.EventBus, evaluator Evaluator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{bus: bus, evaluator: evaluator, ctx: ctx, cancel: cancel}
}

// Start subscribes to evaluation requests for each tenant. Topics are
// tenant scoped, so at least one tenant is required.
func (w *Worker) Start(tenantIDs []string) error {
	if len(tenantIDs) == 0 {
		return fmt.Errorf("%w: worker needs at least one tenant", domain.ErrInvalidInput)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, tenantID := range tenantIDs {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicEvaluationRequested, func(ctx context.Context, msg *domain.Message) error {
			return w.handle(ctx, tenantID, msg)
		})
		if err != nil {
			slog.Error("failed to start worker for tenant", "tenant_id", tenantID, "error", err)
			continue
		}
		w.subscriptions = append(w.subscriptions, sub)
		if w.tenants == nil {
			w.tenants = make(map[string]bool)
		}
		w.tenants[tenantID] = true
		slog.Info("tenant worker started", "tenant_id", tenantID, "topic", domain.TopicEvaluationRequested)
	}

	if len(w.subscriptions) == 0 {
		return errors.New("no tenant worker could be started")
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var req domain.EvaluationRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		w.failed.Add(1)
		return fmt.Errorf("decode evaluation request %s: %w", msg.ID, err)
	}

	scope, ok := domain.ParseScope(string(req.Scope))
	if !ok {
		w.failed.Add(1)
		return fmt.Errorf("%w: unknown scope %q in request %s", domain.ErrInvalidInput, req.Scope, msg.ID)
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = msg.Metadata["trace_id"]
	}

	eval, err := w.evaluator.Evaluate(ctx, tenantID, scope, req.EntityID)
	if err != nil {
		w.failed.Add(1)
		slog.Warn("async evaluation failed",
			"tenant_id", tenantID,
			"scope", scope,
			"entity_id", req.EntityID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	w.processed.Add(1)
	slog.Debug("async evaluation done",
		"tenant_id", tenantID,
		"scope", scope,
		"entity_id", req.EntityID,
		"trace_id", traceID,
		"severity", eval.Score.Severity,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes every tenant. In-flight handlers see a cancelled context.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe", "topic", sub.Topic(), "error", err)
		}
	}
	w.subscriptions = nil
	w.tenants = nil

	slog.Info("workers stopped")
	return nil
}

// Serves reports whether requests published for tenantID are consumed.
func (w *Worker) Serves(tenantID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tenants[tenantID]
}

// Stats summarizes the worker's activity.
type Stats struct {
	SubscriptionCount int   `json:"subscriptionCount"`
	Processed         int64 `json:"processed"`
	Failed            int64 `json:"failed"`
}

// GetStats returns current counters.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	n := len(w.subscriptions)
	w.mu.Unlock()
	return Stats{
		SubscriptionCount: n,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
