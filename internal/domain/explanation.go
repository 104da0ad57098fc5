package domain

import "time"

// Explanation is a readable breakdown of a stored snapshot against the
// current effective rule set.
type Explanation struct {
	TenantID        string            `json:"tenantId"`
	Scope           Scope             `json:"scope"`
	EntityID        string            `json:"entityId"`
	Score           float64           `json:"score"`
	Severity        Severity          `json:"severity"`
	GeneratedAt     time.Time         `json:"generatedAt"`
	Summary         string            `json:"summary"`
	TriggeredCount  int               `json:"triggeredCount"`
	Rules           []RuleExplanation `json:"rules"`
	Recommendations []string          `json:"recommendations"`
}

// RuleExplanation describes one rule of the effective set.
type RuleExplanation struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
	Triggered   bool    `json:"triggered"`
}
