package domain

import (
	"encoding/json"
	"time"
)

// GlobalTenantID owns the default rules every tenant inherits.
const GlobalTenantID = "*"

// Scope selects what a rule and its resulting score apply to.
type Scope string

const (
	ScopeDocument Scope = "document"
	ScopeCompany  Scope = "company"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeDocument || s == ScopeCompany
}

// ParseScope converts a path or query value into a Scope.
// Plural forms are accepted so routes can read naturally.
func ParseScope(v string) (Scope, bool) {
	switch v {
	case "document", "documents":
		return ScopeDocument, true
	case "company", "companies":
		return ScopeCompany, true
	}
	return "", false
}

// RiskRule is a weighted rule definition.
// A tenant row replaces the global row with the same scope and code in full.
type RiskRule struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenantId"`
	Scope           Scope           `json:"scope"`
	Code            string          `json:"code"`
	Description     string          `json:"description"`
	Weight          float64         `json:"weight"`
	IsActive        bool            `json:"isActive"`
	DefaultSeverity Severity        `json:"defaultSeverity,omitempty"`
	Config          json.RawMessage `json:"config,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// IsGlobal reports whether the rule is a global default.
func (r *RiskRule) IsGlobal() bool {
	return r.TenantID == GlobalTenantID
}

// Clone returns a copy that does not share the config buffer.
func (r *RiskRule) Clone() *RiskRule {
	c := *r
	if r.Config != nil {
		c.Config = append(json.RawMessage(nil), r.Config...)
	}
	return &c
}
