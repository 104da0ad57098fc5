// Package explain turns a stored risk snapshot into a readable breakdown.
package explain

import (
	"context"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// RuleSource supplies the current effective rule set.
type RuleSource interface {
	LoadActiveRules(ctx context.Context, tenantID string, scope domain.Scope) ([]*domain.RiskRule, error)
}

// SnapshotReader reads the current stored snapshot.
type SnapshotReader interface {
	Get(ctx context.Context, tenantID string, scope domain.Scope, entityID string) (*domain.RiskScore, error)
}

const (
	recommendEscalate = "Escalate for detailed review."
	recommendMonitor  = "Monitor closely."
)

// remediations maps a known rule code to its canned remediation sentence.
var remediations = map[string]string{
	rules.CodeDateInconsistency: "Verify the issue and due dates against the source document.",
	rules.CodeTotalMismatch:     "Reconcile the line items with the invoice total.",
	rules.CodeDuplicateInvoice:  "Confirm the invoice number has not already been paid.",
	rules.CodeMissingFields:     "Request the missing fields from the issuer.",
	rules.CodeHighRiskDocuments: "Review the company's recent high-risk documents.",
	rules.CodeHighRiskRatio:     "Audit the company's invoices backed by high-risk documents.",
	rules.CodeDuplicateInvoices: "Investigate the company's repeated invoice numbers.",
}

// Explainer builds explanations from the score store and the rule registry.
type Explainer struct {
	rules  RuleSource
	scores SnapshotReader
}

// New creates an Explainer.
func New(registry RuleSource, scores SnapshotReader) *Explainer {
	return &Explainer{rules: registry, scores: scores}
}

// Explain describes the stored snapshot for an entity. It fails with
// ErrNotFound when the entity was never evaluated and never evaluates itself.
func (e *Explainer) Explain(ctx context.Context, tenantID string, scope domain.Scope, entityID string) (*domain.Explanation, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if !scope.Valid() {
		return nil, fmt.Errorf("%w: unknown scope %q", domain.ErrInvalidInput, scope)
	}

	snapshot, err := e.scores.Get(ctx, tenantID, scope, entityID)
	if err != nil {
		return nil, err
	}

	effective, err := e.rules.LoadActiveRules(ctx, tenantID, scope)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	out := &domain.Explanation{
		TenantID:    tenantID,
		Scope:       scope,
		EntityID:    entityID,
		Score:       snapshot.Score,
		Severity:    snapshot.Severity,
		GeneratedAt: snapshot.GeneratedAt,
		Rules:       make([]domain.RuleExplanation, 0, len(effective)),
	}

	var triggered []string
	for _, rule := range effective {
		hit := snapshot.IsTriggered(rule.Code)
		out.Rules = append(out.Rules, domain.RuleExplanation{
			Code:        rule.Code,
			Description: rule.Description,
			Weight:      rule.Weight,
			Triggered:   hit,
		})
		if hit {
			triggered = append(triggered, rule.Code)
		}
	}
	out.TriggeredCount = len(triggered)
	out.Summary = Summary(snapshot.Score, snapshot.Severity, out.TriggeredCount)
	out.Recommendations = Recommendations(snapshot.Score, triggered)

	return out, nil
}

// Summary describes a score in one sentence.
func Summary(score float64, severity domain.Severity, triggered int) string {
	if score == 0 {
		return "No risk detected."
	}
	switch severity {
	case domain.SeverityHigh:
		return fmt.Sprintf("High risk: %s triggered. Immediate review is required.", pluralRules(triggered))
	case domain.SeverityMedium:
		return fmt.Sprintf("Moderate risk: %s triggered. Review before proceeding.", pluralRules(triggered))
	default:
		return fmt.Sprintf("Low risk: %s triggered. Routine follow-up only.", pluralRules(triggered))
	}
}

func pluralRules(n int) string {
	if n == 1 {
		return "1 rule"
	}
	return fmt.Sprintf("%d rules", n)
}

// Recommendations returns the remediation sentences for the triggered codes
// followed by the band sentence, without duplicates. Unknown codes add nothing.
func Recommendations(score float64, triggered []string) []string {
	out := []string{}
	seen := make(map[string]bool)
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	for _, code := range triggered {
		if sentence, ok := remediations[code]; ok {
			add(sentence)
		}
	}

	switch {
	case score > domain.MediumBandMax:
		add(recommendEscalate)
	case score > domain.LowBandMax:
		add(recommendMonitor)
	}
	return out
}
