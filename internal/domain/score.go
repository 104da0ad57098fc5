package domain

import "time"

// Severity is the band a score falls into.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is one of the three bands.
func (s Severity) Valid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// Score bounds and band edges.
const (
	MinScore = 0
	MaxScore = 100

	// LowBandMax is the highest score still classified as low.
	LowBandMax = 30
	// MediumBandMax is the highest score still classified as medium.
	MediumBandMax = 65
)

// SeverityFor maps a score to its band: score <= 30 is low,
// 30 < score <= 65 is medium, anything above is high.
func SeverityFor(score float64) Severity {
	switch {
	case score <= LowBandMax:
		return SeverityLow
	case score <= MediumBandMax:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}

// RiskScore is the single current snapshot for one entity.
type RiskScore struct {
	TenantID           string    `json:"tenantId"`
	Scope              Scope     `json:"scope"`
	EntityID           string    `json:"entityId"`
	Score              float64   `json:"score"`
	Severity           Severity  `json:"severity"`
	TriggeredRuleCodes []string  `json:"triggeredRuleCodes"`
	GeneratedAt        time.Time `json:"generatedAt"`
}

// IsTriggered reports whether code was recorded as triggered in this snapshot.
func (s *RiskScore) IsTriggered(code string) bool {
	for _, c := range s.TriggeredRuleCodes {
		if c == code {
			return true
		}
	}
	return false
}
