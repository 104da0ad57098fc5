// Package engine runs one evaluation end to end: load the effective rules,
// build facts, score, store the snapshot, and announce it on the event bus.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/rules"
)

var tracer = otel.Tracer("kestrel-engine")

// RuleLoader returns the effective rule set for a tenant and scope.
type RuleLoader interface {
	LoadActiveRules(ctx context.Context, tenantID string, scope domain.Scope) ([]*domain.RiskRule, error)
}

// FactBuilder builds the facts for one entity.
type FactBuilder interface {
	Build(ctx context.Context, tenantID string, scope domain.Scope, entityID string, now time.Time) (*domain.Facts, error)
}

// SnapshotWriter stores the current snapshot.
type SnapshotWriter interface {
	Upsert(ctx context.Context, tenantID string, scope domain.Scope, entityID string,
		score float64, severity domain.Severity, triggered []string) (*domain.RiskScore, error)
}

// Deps are the collaborators of an Engine. Bus and Metrics are optional.
type Deps struct {
	Rules   RuleLoader
	Facts   FactBuilder
	Scorer  *rules.Scorer
	Store   SnapshotWriter
	Bus     domain.EventBus
	Metrics *metrics.Collector
}

// Engine evaluates entities. It holds no per-call state.
type Engine struct {
	rules   RuleLoader
	facts   FactBuilder
	scorer  *rules.Scorer
	store   SnapshotWriter
	bus     domain.EventBus
	metrics *metrics.Collector
	now     func() time.Time
}

// New creates an engine.
func New(deps Deps) *Engine {
	return &Engine{
		rules:   deps.Rules,
		facts:   deps.Facts,
		scorer:  deps.Scorer,
		store:   deps.Store,
		bus:     deps.Bus,
		metrics: deps.Metrics,
		now:     time.Now,
	}
}

// Evaluation is the result of one call to Evaluate.
type Evaluation struct {
	Score    *domain.RiskScore `json:"score"`
	Facts    *domain.Facts     `json:"facts"`
	Outcomes []rules.Outcome   `json:"outcomes"`
}

// Evaluate scores an entity and replaces its snapshot.
//
// Cancellation of ctx is ignored once the call starts: the snapshot write is
// the only write, and an evaluation either stores a complete score or none.
// A failure to build facts returns ErrEvaluation or ErrNotFound and leaves
// the previous snapshot untouched.
func (e *Engine) Evaluate(ctx context.Context, tenantID string, scope domain.Scope, entityID string) (*Evaluation, error) {
	if tenantID == "" || entityID == "" {
		return nil, fmt.Errorf("%w: tenantID and entityID are required", domain.ErrInvalidInput)
	}
	if !scope.Valid() {
		return nil, fmt.Errorf("%w: unknown scope %q", domain.ErrInvalidInput, scope)
	}

	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "engine.Evaluate",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("risk.scope", string(scope)),
			attribute.String("risk.entity_id", entityID),
		),
	)
	defer span.End()

	start := time.Now()

	ruleSet, err := e.rules.LoadActiveRules(ctx, tenantID, scope)
	if err != nil {
		return nil, e.fail(span, scope, "rules", fmt.Errorf("load rules: %w", err))
	}

	facts, err := e.facts.Build(ctx, tenantID, scope, entityID, e.now())
	if err != nil {
		return nil, e.fail(span, scope, "facts", err)
	}

	result := e.scorer.Score(ruleSet, facts)

	stored, err := e.store.Upsert(ctx, tenantID, scope, entityID, result.Score, result.Severity, result.Triggered)
	if err != nil {
		return nil, e.fail(span, scope, "store", fmt.Errorf("store score: %w", err))
	}

	elapsed := time.Since(start)
	e.metrics.RecordEvaluation(string(scope), string(stored.Severity), stored.TriggeredRuleCodes, elapsed)
	span.SetAttributes(
		attribute.Float64("risk.score", stored.Score),
		attribute.String("risk.severity", string(stored.Severity)),
		attribute.Int("risk.rules_evaluated", len(ruleSet)),
		attribute.Int("risk.rules_triggered", len(stored.TriggeredRuleCodes)),
	)

	e.publish(ctx, stored)

	slog.Info("entity evaluated",
		"tenant_id", tenantID,
		"scope", scope,
		"entity_id", entityID,
		"score", stored.Score,
		"severity", stored.Severity,
		"triggered", len(stored.TriggeredRuleCodes),
		"duration_ms", elapsed.Milliseconds(),
	)

	return &Evaluation{Score: stored, Facts: facts, Outcomes: result.Outcomes}, nil
}

func (e *Engine) fail(span trace.Span, scope domain.Scope, reason string, err error) error {
	e.metrics.RecordFailure(string(scope), reason)
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)

	level := slog.LevelError
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidInput) {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "evaluation failed", "scope", scope, "stage", reason, "error", err)
	return err
}

// publish announces a stored snapshot. Delivery problems are logged only;
// the snapshot is already committed.
func (e *Engine) publish(ctx context.Context, score *domain.RiskScore) {
	if e.bus == nil {
		return
	}

	payload, err := json.Marshal(score)
	if err != nil {
		slog.Error("failed to encode score event", "entity_id", score.EntityID, "error", err)
		return
	}

	topics := []string{domain.TopicScoreUpdated}
	if score.Severity == domain.SeverityHigh {
		topics = append(topics, domain.TopicScoreHigh)
	}
	for _, topic := range topics {
		if err := e.bus.Publish(ctx, score.TenantID, topic, payload); err != nil {
			slog.Error("failed to publish score event",
				"tenant_id", score.TenantID,
				"entity_id", score.EntityID,
				"topic", topic,
				"error", err,
			)
		}
	}
}
