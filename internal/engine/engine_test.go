package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/facts"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scores"
)

type harness struct {
	repo     *repository.SQLRepository
	registry *rules.Registry
	store    *scores.Store
	bus      *bus.ChannelBus
	metrics  *metrics.Collector
	engine   *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "engine.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	evaluator, err := rules.NewEvaluator()
	require.NoError(t, err)

	h := &harness{
		repo:     repo,
		registry: rules.NewRegistry(repo, evaluator),
		store:    scores.NewStore(repo, cache.NewLRUCache(100), time.Minute),
		bus:      bus.NewChannelBus(100),
		metrics:  metrics.New(),
	}
	t.Cleanup(func() { h.bus.Close() })

	h.engine = New(Deps{
		Rules:   h.registry,
		Facts:   facts.NewBuilder(repo, 0),
		Scorer:  rules.NewScorer(evaluator),
		Store:   h.store,
		Bus:     h.bus,
		Metrics: h.metrics,
	})
	return h
}

func (h *harness) globalRule(t *testing.T, scope domain.Scope, code string, weight float64, config string) {
	t.Helper()
	r := &domain.RiskRule{Scope: scope, Code: code, Weight: weight, IsActive: true, DefaultSeverity: domain.SeverityMedium}
	if config != "" {
		r.Config = json.RawMessage(config)
	}
	_, err := h.registry.CreateRule(context.Background(), domain.GlobalTenantID, r)
	require.NoError(t, err)
}

func (h *harness) document(t *testing.T, tenantID, id string, fs domain.FeatureSet) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.repo.SaveCompany(ctx, &domain.Company{ID: "co-1", TenantID: tenantID, Name: "Acme"}))
	require.NoError(t, h.repo.SaveDocument(ctx, &domain.Document{ID: id, TenantID: tenantID, CompanyID: "co-1"}))
	fs.TenantID = tenantID
	fs.DocumentID = id
	fs.ComputedAt = time.Now().UTC()
	require.NoError(t, h.repo.SaveFeatureSet(ctx, &fs))
}

func (h *harness) subscribe(t *testing.T, tenantID, topic string) <-chan *domain.Message {
	t.Helper()
	ch := make(chan *domain.Message, 10)
	_, err := h.bus.Subscribe(context.Background(), tenantID, topic, func(_ context.Context, m *domain.Message) error {
		ch <- m
		return nil
	})
	require.NoError(t, err)
	return ch
}

func scenarioRules(t *testing.T, h *harness) {
	h.globalRule(t, domain.ScopeDocument, rules.CodeDuplicateInvoice, 40, "")
	h.globalRule(t, domain.ScopeDocument, rules.CodeTotalMismatch, 40, "")
}

func TestEvaluateScenarioA(t *testing.T) {
	h := newHarness(t)
	scenarioRules(t, h)
	h.document(t, "t1", "doc-1", domain.FeatureSet{DuplicateInvoiceNumber: true, TotalMismatch: true})

	updated := h.subscribe(t, "t1", domain.TopicScoreUpdated)
	high := h.subscribe(t, "t1", domain.TopicScoreHigh)

	eval, err := h.engine.Evaluate(context.Background(), "t1", domain.ScopeDocument, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, 80.0, eval.Score.Score)
	assert.Equal(t, domain.SeverityHigh, eval.Score.Severity)

	// Registry order, which is code order for global rules.
	assert.Equal(t, []string{rules.CodeTotalMismatch, rules.CodeDuplicateInvoice}, eval.Score.TriggeredRuleCodes)
	require.Len(t, eval.Outcomes, 2)
	assert.True(t, eval.Facts.Document.DuplicateInvoiceNumber)

	stored, err := h.store.Get(context.Background(), "t1", domain.ScopeDocument, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, eval.Score.TriggeredRuleCodes, stored.TriggeredRuleCodes)

	for _, ch := range []<-chan *domain.Message{updated, high} {
		select {
		case msg := <-ch:
			var got domain.RiskScore
			require.NoError(t, json.Unmarshal(msg.Payload, &got))
			assert.Equal(t, "doc-1", got.EntityID)
			assert.Equal(t, 80.0, got.Score)
		case <-time.After(time.Second):
			t.Fatal("expected a score event")
		}
	}

	series, err := testutil.GatherAndCount(h.metrics.Registry(), "kestrel_evaluations_total", "kestrel_rules_triggered_total")
	require.NoError(t, err)
	assert.Equal(t, 3, series)
}

func TestEvaluateScenarioB(t *testing.T) {
	h := newHarness(t)
	scenarioRules(t, h)
	h.document(t, "t1", "doc-1", domain.FeatureSet{})

	high := h.subscribe(t, "t1", domain.TopicScoreHigh)

	eval, err := h.engine.Evaluate(context.Background(), "t1", domain.ScopeDocument, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, eval.Score.Score)
	assert.Equal(t, domain.SeverityLow, eval.Score.Severity)
	assert.Empty(t, eval.Score.TriggeredRuleCodes)

	select {
	case <-high:
		t.Error("low score must not be published as high")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEvaluateTenantOverride(t *testing.T) {
	h := newHarness(t)
	h.globalRule(t, domain.ScopeDocument, rules.CodeDuplicateInvoice, 10, "")
	_, err := h.registry.CreateRule(context.Background(), "tenant-x", &domain.RiskRule{
		Scope: domain.ScopeDocument, Code: rules.CodeDuplicateInvoice, Weight: 50, IsActive: true,
	})
	require.NoError(t, err)

	h.document(t, "tenant-x", "doc-x", domain.FeatureSet{DuplicateInvoiceNumber: true})
	h.document(t, "tenant-y", "doc-y", domain.FeatureSet{DuplicateInvoiceNumber: true})

	x, err := h.engine.Evaluate(context.Background(), "tenant-x", domain.ScopeDocument, "doc-x")
	require.NoError(t, err)
	assert.Equal(t, 50.0, x.Score.Score)

	y, err := h.engine.Evaluate(context.Background(), "tenant-y", domain.ScopeDocument, "doc-y")
	require.NoError(t, err)
	assert.Equal(t, 10.0, y.Score.Score)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	h := newHarness(t)
	scenarioRules(t, h)
	h.globalRule(t, domain.ScopeDocument, rules.CodeMissingFields, 15, "")
	h.document(t, "t1", "doc-1", domain.FeatureSet{TotalMismatch: true, MissingFields: []string{"due_date"}})

	first, err := h.engine.Evaluate(context.Background(), "t1", domain.ScopeDocument, "doc-1")
	require.NoError(t, err)
	second, err := h.engine.Evaluate(context.Background(), "t1", domain.ScopeDocument, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, first.Score.Score, second.Score.Score)
	assert.Equal(t, first.Score.Severity, second.Score.Severity)
	assert.Equal(t, first.Score.TriggeredRuleCodes, second.Score.TriggeredRuleCodes)

	all, err := h.store.List(context.Background(), "t1", domain.ScopeDocument, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEvaluateFailuresStoreNothing(t *testing.T) {
	h := newHarness(t)
	scenarioRules(t, h)
	ctx := context.Background()

	t.Run("feature set never computed", func(t *testing.T) {
		require.NoError(t, h.repo.SaveDocument(ctx, &domain.Document{ID: "doc-raw", TenantID: "t1", CompanyID: "co-1"}))

		_, err := h.engine.Evaluate(ctx, "t1", domain.ScopeDocument, "doc-raw")
		assert.ErrorIs(t, err, domain.ErrEvaluation)

		_, err = h.store.Get(ctx, "t1", domain.ScopeDocument, "doc-raw")
		assert.ErrorIs(t, err, domain.ErrNotFound, "no zero score is persisted")
	})

	t.Run("document of another tenant", func(t *testing.T) {
		h.document(t, "t1", "doc-1", domain.FeatureSet{TotalMismatch: true})

		_, err := h.engine.Evaluate(ctx, "t2", domain.ScopeDocument, "doc-1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := h.engine.Evaluate(ctx, "", domain.ScopeDocument, "doc-1")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		_, err = h.engine.Evaluate(ctx, "t1", "invoice", "doc-1")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	series, err := testutil.GatherAndCount(h.metrics.Registry(), "kestrel_evaluation_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, series, "one document/facts series; input errors never reach the pipeline")
}

func TestEvaluateIgnoresCancellation(t *testing.T) {
	h := newHarness(t)
	scenarioRules(t, h)
	h.document(t, "t1", "doc-1", domain.FeatureSet{DuplicateInvoiceNumber: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eval, err := h.engine.Evaluate(ctx, "t1", domain.ScopeDocument, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 40.0, eval.Score.Score)
}

type failingBus struct {
	mu    sync.Mutex
	calls int
}

func (b *failingBus) Publish(context.Context, string, string, []byte) error {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	return errors.New("broker unavailable")
}

func (b *failingBus) Subscribe(context.Context, string, string, domain.MessageHandler) (domain.Subscription, error) {
	return nil, errors.New("not supported")
}

func (b *failingBus) Ping(context.Context) error { return nil }
func (b *failingBus) Close() error               { return nil }

func TestPublishFailureDoesNotFailEvaluation(t *testing.T) {
	h := newHarness(t)
	scenarioRules(t, h)
	h.document(t, "t1", "doc-1", domain.FeatureSet{DuplicateInvoiceNumber: true, TotalMismatch: true})

	fb := &failingBus{}
	h.engine.bus = fb

	eval, err := h.engine.Evaluate(context.Background(), "t1", domain.ScopeDocument, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityHigh, eval.Score.Severity)
	assert.Equal(t, 2, fb.calls, "updated and high topics")
}

func TestEvaluateCompanyScenarioD(t *testing.T) {
	tests := []struct {
		name      string
		highDocs  int
		triggered bool
	}{
		{"at threshold", 5, false},
		{"above threshold", 6, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.globalRule(t, domain.ScopeCompany, rules.CodeHighRiskDocuments, 35, `{"threshold": 5, "days": 90}`)
			ctx := context.Background()

			require.NoError(t, h.repo.SaveCompany(ctx, &domain.Company{ID: "co-1", TenantID: "t1", Name: "Acme"}))
			for i := 0; i < tt.highDocs; i++ {
				id := fmt.Sprintf("doc-%d", i)
				require.NoError(t, h.repo.SaveDocument(ctx, &domain.Document{ID: id, TenantID: "t1", CompanyID: "co-1"}))
				_, err := h.store.Upsert(ctx, "t1", domain.ScopeDocument, id, 80, domain.SeverityHigh, []string{rules.CodeDuplicateInvoice})
				require.NoError(t, err)
			}

			eval, err := h.engine.Evaluate(ctx, "t1", domain.ScopeCompany, "co-1")
			require.NoError(t, err)
			assert.Equal(t, tt.highDocs, eval.Facts.Company.HighRiskDocumentCount)
			assert.Equal(t, tt.triggered, eval.Score.IsTriggered(rules.CodeHighRiskDocuments))
		})
	}
}
