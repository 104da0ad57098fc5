package rules

import (
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// RuleEvaluator decides a single rule.
type RuleEvaluator interface {
	Evaluate(rule *domain.RiskRule, facts *domain.Facts) bool
}

// Outcome is the verdict for one rule of the effective set.
type Outcome struct {
	Code      string  `json:"code"`
	Weight    float64 `json:"weight"`
	Triggered bool    `json:"triggered"`
}

// Result is the aggregate of one scoring pass.
type Result struct {
	Score     float64         `json:"score"`
	Severity  domain.Severity `json:"severity"`
	Triggered []string        `json:"triggeredRuleCodes"`
	Outcomes  []Outcome       `json:"outcomes"`
}

// Scorer sums the weights of triggered rules into a bounded score.
type Scorer struct {
	evaluator RuleEvaluator
}

// NewScorer creates a scorer that decides rules with evaluator.
func NewScorer(evaluator RuleEvaluator) *Scorer {
	return &Scorer{evaluator: evaluator}
}

var (
	minScore = decimal.NewFromInt(domain.MinScore)
	maxScore = decimal.NewFromInt(domain.MaxScore)
)

// Score evaluates each rule exactly once in the given order. The sum of
// triggered weights is clamped to [0, 100] and rounded to two decimals;
// Triggered keeps the rule order, not the order rules fired in.
func (s *Scorer) Score(rules []*domain.RiskRule, facts *domain.Facts) Result {
	total := decimal.Zero
	res := Result{
		Triggered: []string{},
		Outcomes:  make([]Outcome, 0, len(rules)),
	}

	for _, rule := range rules {
		hit := s.evaluator.Evaluate(rule, facts)
		res.Outcomes = append(res.Outcomes, Outcome{Code: rule.Code, Weight: rule.Weight, Triggered: hit})
		if !hit {
			continue
		}
		total = total.Add(decimal.NewFromFloat(rule.Weight))
		res.Triggered = append(res.Triggered, rule.Code)
	}

	res.Score = Clamp(total).InexactFloat64()
	res.Severity = domain.SeverityFor(res.Score)
	return res
}

// Clamp bounds a weight sum to the score range and rounds it to two decimals.
func Clamp(sum decimal.Decimal) decimal.Decimal {
	switch {
	case sum.LessThan(minScore):
		sum = minScore
	case sum.GreaterThan(maxScore):
		sum = maxScore
	}
	return sum.Round(2)
}
