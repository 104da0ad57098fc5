package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
)

type call struct {
	tenantID string
	scope    domain.Scope
	entityID string
}

type fakeEvaluator struct {
	mu    sync.Mutex
	calls []call
	done  chan struct{}
	err   error
}

func newFakeEvaluator() *fakeEvaluator {
	return &fakeEvaluator{done: make(chan struct{}, 10)}
}

func (f *fakeEvaluator) Evaluate(_ context.Context, tenantID string, scope domain.Scope, entityID string) (*engine.Evaluation, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{tenantID, scope, entityID})
	f.mu.Unlock()
	defer func() { f.done <- struct{}{} }()

	if f.err != nil {
		return nil, f.err
	}
	return &engine.Evaluation{Score: &domain.RiskScore{
		TenantID: tenantID, Scope: scope, EntityID: entityID, Severity: domain.SeverityLow,
	}}, nil
}

func (f *fakeEvaluator) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for evaluation")
	}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()
	ctx := context.Background()

	t.Run("StartAndStop", func(t *testing.T) {
		w := New(eventBus, newFakeEvaluator())
		if err := w.Start([]string{"tenant-001", "tenant-002"}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if got := w.GetStats().SubscriptionCount; got != 2 {
			t.Errorf("expected 2 subscriptions, got %d", got)
		}
		if !w.Serves("tenant-001") || !w.Serves("tenant-002") {
			t.Error("expected both started tenants to be served")
		}
		if w.Serves("tenant-003") {
			t.Error("expected an unlisted tenant not to be served")
		}
		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if got := w.GetStats().SubscriptionCount; got != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", got)
		}
		if w.Serves("tenant-001") {
			t.Error("expected no tenant to be served after stop")
		}
	})

	t.Run("RequiresTenants", func(t *testing.T) {
		w := New(eventBus, newFakeEvaluator())
		if err := w.Start(nil); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("EvaluatesRequest", func(t *testing.T) {
		eval := newFakeEvaluator()
		w := New(eventBus, eval)
		w.Start([]string{"tenant-eval"})
		defer w.Stop()

		req := domain.EvaluationRequest{Scope: "documents", EntityID: "doc-1", TraceID: "trace-1"}
		if err := bus.PublishJSON(ctx, eventBus, "tenant-eval", domain.TopicEvaluationRequested, req); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
		eval.wait(t)

		eval.mu.Lock()
		got := eval.calls[0]
		eval.mu.Unlock()
		if got != (call{"tenant-eval", domain.ScopeDocument, "doc-1"}) {
			t.Errorf("unexpected call %+v", got)
		}

		// Counters are updated after Evaluate returns.
		deadline := time.Now().Add(time.Second)
		for w.GetStats().Processed != 1 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if s := w.GetStats(); s.Processed != 1 || s.Failed != 0 {
			t.Errorf("unexpected stats %+v", s)
		}
	})

	t.Run("OtherTenantIgnored", func(t *testing.T) {
		eval := newFakeEvaluator()
		w := New(eventBus, eval)
		w.Start([]string{"tenant-a"})
		defer w.Stop()

		bus.PublishJSON(ctx, eventBus, "tenant-b", domain.TopicEvaluationRequested,
			domain.EvaluationRequest{Scope: domain.ScopeCompany, EntityID: "co-1"})

		select {
		case <-eval.done:
			t.Error("worker evaluated a request for a tenant it does not serve")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("BadRequestsCounted", func(t *testing.T) {
		eval := newFakeEvaluator()
		w := New(eventBus, eval)
		w.Start([]string{"tenant-bad"})
		defer w.Stop()

		eventBus.Publish(ctx, "tenant-bad", domain.TopicEvaluationRequested, []byte("{"))
		bus.PublishJSON(ctx, eventBus, "tenant-bad", domain.TopicEvaluationRequested,
			domain.EvaluationRequest{Scope: "invoice", EntityID: "x"})

		deadline := time.Now().Add(time.Second)
		for w.GetStats().Failed != 2 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if s := w.GetStats(); s.Failed != 2 {
			t.Errorf("expected 2 failures, got %+v", s)
		}
		eval.mu.Lock()
		defer eval.mu.Unlock()
		if len(eval.calls) != 0 {
			t.Errorf("evaluator must not be called for bad requests, got %d calls", len(eval.calls))
		}
	})

	t.Run("EvaluationErrorCounted", func(t *testing.T) {
		eval := newFakeEvaluator()
		eval.err = domain.ErrEvaluation
		w := New(eventBus, eval)
		w.Start([]string{"tenant-err"})
		defer w.Stop()

		bus.PublishJSON(ctx, eventBus, "tenant-err", domain.TopicEvaluationRequested,
			domain.EvaluationRequest{Scope: domain.ScopeDocument, EntityID: "doc-1"})
		eval.wait(t)

		deadline := time.Now().Add(time.Second)
		for w.GetStats().Failed != 1 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if s := w.GetStats(); s.Failed != 1 || s.Processed != 0 {
			t.Errorf("unexpected stats %+v", s)
		}
	})
}
