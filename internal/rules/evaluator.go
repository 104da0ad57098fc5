// Package rules resolves, evaluates and scores weighted risk rules.
package rules

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Evaluator dispatches each rule to the predicate registered for its code.
// Codes without a named predicate go to the fallback, which fires on a
// matching fact tag or on a true CEL expression in the rule config.
type Evaluator struct {
	mu      sync.RWMutex
	catalog map[string]catalogEntry

	expressions  *Expressions
	lookbackDays int
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithLookbackDays sets the company window that threshold configs must
// agree with. It has to match the window the fact builder counts over.
func WithLookbackDays(days int) EvaluatorOption {
	return func(e *Evaluator) {
		if days > 0 {
			e.lookbackDays = days
		}
	}
}

// NewEvaluator creates an evaluator preloaded with the built-in catalog.
func NewEvaluator(opts ...EvaluatorOption) (*Evaluator, error) {
	expressions, err := NewExpressions()
	if err != nil {
		return nil, err
	}

	e := &Evaluator{
		catalog:      builtinCatalog(),
		expressions:  expressions,
		lookbackDays: domain.DefaultLookbackDays,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Register adds or replaces the predicate for a rule code. Registered
// predicates take no typed config; their config is only checked to be a
// JSON object.
func (e *Evaluator) Register(code string, p Predicate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.catalog[code] = catalogEntry{predicate: p}
}

// Known reports whether code has a named predicate.
func (e *Evaluator) Known(code string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.catalog[code]
	return ok
}

// Evaluate reports whether rule holds for facts. It never fails: a panicking
// predicate or a broken expression counts as not triggered.
func (e *Evaluator) Evaluate(rule *domain.RiskRule, facts *domain.Facts) (triggered bool) {
	if rule == nil || facts == nil {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("rule predicate panicked",
				"code", rule.Code,
				"entity_id", facts.EntityID,
				"panic", fmt.Sprint(r),
			)
			triggered = false
		}
	}()

	e.mu.RLock()
	entry, ok := e.catalog[rule.Code]
	e.mu.RUnlock()

	if ok {
		return entry.predicate.Evaluate(facts, rule.Config)
	}
	return e.fallback(rule, facts)
}

func (e *Evaluator) fallback(rule *domain.RiskRule, facts *domain.Facts) bool {
	if facts.HasTag(rule.Code) {
		return true
	}

	cfg := ParseExpressionConfig(rule.Config)
	if strings.TrimSpace(cfg.Expression) == "" {
		return false
	}

	ok, err := e.expressions.Eval(cfg.Expression, facts)
	if err != nil {
		slog.Warn("rule expression failed",
			"code", rule.Code,
			"entity_id", facts.EntityID,
			"error", err,
		)
		return false
	}
	return ok
}

// ValidateConfig is the strict admin-time check: the weight must be finite
// and non-negative, the scope known, the config well-formed for the code's
// predicate and any expression must compile. A threshold config's days
// must equal the configured company window.
func (e *Evaluator) ValidateConfig(rule *domain.RiskRule) error {
	if strings.TrimSpace(rule.Code) == "" {
		return fmt.Errorf("%w: code is required", domain.ErrValidation)
	}
	if !rule.Scope.Valid() {
		return fmt.Errorf("%w: unknown scope %q", domain.ErrValidation, rule.Scope)
	}
	if math.IsNaN(rule.Weight) || math.IsInf(rule.Weight, 0) || rule.Weight < 0 {
		return fmt.Errorf("%w: weight must be a finite non-negative number", domain.ErrValidation)
	}
	if rule.DefaultSeverity != "" && !rule.DefaultSeverity.Valid() {
		return fmt.Errorf("%w: unknown severity %q", domain.ErrValidation, rule.DefaultSeverity)
	}

	e.mu.RLock()
	entry := e.catalog[rule.Code]
	e.mu.RUnlock()

	if err := validateShape(entry.shape, rule.Config, e.lookbackDays); err != nil {
		return fmt.Errorf("rule %s: %w", rule.Code, err)
	}

	if expr := ParseExpressionConfig(rule.Config).Expression; strings.TrimSpace(expr) != "" {
		if err := e.expressions.Compile(expr); err != nil {
			return fmt.Errorf("%w: rule %s: %v", domain.ErrValidation, rule.Code, err)
		}
	}
	return nil
}

// normalizeConfig returns an empty object for an absent config so stored
// rows are always valid JSON.
func normalizeConfig(raw json.RawMessage) json.RawMessage {
	if len(strings.TrimSpace(string(raw))) == 0 || string(raw) == "null" {
		return json.RawMessage(`{}`)
	}
	return raw
}
