package rules

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestScoreBothRulesTrigger(t *testing.T) {
	scorer := NewScorer(newEvaluator(t))
	rules := []*domain.RiskRule{
		rule(CodeDuplicateInvoice, 40, ""),
		rule(CodeTotalMismatch, 40, ""),
	}

	res := scorer.Score(rules, documentFacts(domain.DocumentFacts{
		DocumentID:             "doc-1",
		DuplicateInvoiceNumber: true,
		TotalMismatch:          true,
	}))

	assert.Equal(t, 80.0, res.Score)
	assert.Equal(t, domain.SeverityHigh, res.Severity)
	assert.Equal(t, []string{CodeDuplicateInvoice, CodeTotalMismatch}, res.Triggered)
	require.Len(t, res.Outcomes, 2)
	assert.True(t, res.Outcomes[0].Triggered)
}

func TestScoreNothingTriggers(t *testing.T) {
	scorer := NewScorer(newEvaluator(t))
	rules := []*domain.RiskRule{
		rule(CodeDuplicateInvoice, 40, ""),
		rule(CodeTotalMismatch, 40, ""),
	}

	res := scorer.Score(rules, documentFacts(domain.DocumentFacts{DocumentID: "doc-1"}))

	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, domain.SeverityLow, res.Severity)
	assert.NotNil(t, res.Triggered)
	assert.Empty(t, res.Triggered)
	assert.Len(t, res.Outcomes, 2)
}

func TestScoreKeepsRuleOrder(t *testing.T) {
	// The evaluator order of firing does not matter; codes follow the rule list.
	scorer := NewScorer(newEvaluator(t))
	rules := []*domain.RiskRule{
		rule(CodeTotalMismatch, 10, ""),
		rule(CodeDateInconsistency, 10, ""),
		rule(CodeDuplicateInvoice, 10, ""),
	}

	res := scorer.Score(rules, documentFacts(domain.DocumentFacts{
		DuplicateInvoiceNumber: true,
		TotalMismatch:          true,
	}))

	assert.Equal(t, []string{CodeTotalMismatch, CodeDuplicateInvoice}, res.Triggered)
}

func TestScoreIsClamped(t *testing.T) {
	scorer := NewScorer(newEvaluator(t))
	rules := []*domain.RiskRule{
		rule(CodeDuplicateInvoice, 70, ""),
		rule(CodeTotalMismatch, 60, ""),
	}

	res := scorer.Score(rules, documentFacts(domain.DocumentFacts{
		DuplicateInvoiceNumber: true,
		TotalMismatch:          true,
	}))

	assert.Equal(t, 100.0, res.Score)
	assert.Equal(t, domain.SeverityHigh, res.Severity)
}

func TestScoreRoundsToTwoDecimals(t *testing.T) {
	scorer := NewScorer(newEvaluator(t))
	rules := []*domain.RiskRule{
		rule(CodeDuplicateInvoice, 10.1, ""),
		rule(CodeTotalMismatch, 20.2, ""),
		rule(CodeDateInconsistency, 0.005, ""),
	}

	res := scorer.Score(rules, documentFacts(domain.DocumentFacts{
		DuplicateInvoiceNumber: true,
		TotalMismatch:          true,
		DateInconsistency:      true,
	}))

	// 30.305 rounds half away from zero.
	assert.Equal(t, 30.31, res.Score)
	assert.Equal(t, domain.SeverityMedium, res.Severity)
}

func TestClamp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"-5", "0"},
		{"0", "0"},
		{"42.125", "42.13"},
		{"100", "100"},
		{"250.5", "100"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Clamp(decimal.RequireFromString(tt.in))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestScoreIsIdempotent(t *testing.T) {
	scorer := NewScorer(newEvaluator(t))
	rules := []*domain.RiskRule{
		rule(CodeDuplicateInvoice, 40, ""),
		rule(CodeMissingFields, 20, ""),
		rule("TAGGED-001", 15, ""),
	}
	facts := documentFacts(domain.DocumentFacts{DuplicateInvoiceNumber: true}, "TAGGED-001")

	first := scorer.Score(rules, facts)
	second := scorer.Score(rules, facts)

	assert.Equal(t, first, second)
}

func TestScoreIsMonotonic(t *testing.T) {
	scorer := NewScorer(newEvaluator(t))
	facts := documentFacts(domain.DocumentFacts{
		DuplicateInvoiceNumber: true,
		TotalMismatch:          true,
		DateInconsistency:      true,
	})

	base := []*domain.RiskRule{rule(CodeDuplicateInvoice, 35, "")}
	before := scorer.Score(base, facts)

	for _, extra := range []*domain.RiskRule{
		rule(CodeTotalMismatch, 0, ""),
		rule(CodeTotalMismatch, 25, ""),
		rule(CodeDateInconsistency, 80, ""),
	} {
		after := scorer.Score(append(append([]*domain.RiskRule{}, base...), extra), facts)
		assert.GreaterOrEqual(t, after.Score, before.Score, "adding %s (%.0f)", extra.Code, extra.Weight)
	}
}

func TestSeverityBoundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  domain.Severity
	}{
		{0, domain.SeverityLow},
		{30, domain.SeverityLow},
		{30.01, domain.SeverityMedium},
		{31, domain.SeverityMedium},
		{65, domain.SeverityMedium},
		{65.01, domain.SeverityHigh},
		{66, domain.SeverityHigh},
		{100, domain.SeverityHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, domain.SeverityFor(tt.score), "score %.2f", tt.score)
	}
}
