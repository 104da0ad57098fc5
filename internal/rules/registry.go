package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ConfigValidator performs the admin-time checks on a rule definition.
type ConfigValidator interface {
	ValidateConfig(rule *domain.RiskRule) error
}

// Registry resolves the effective rule set per tenant and guards rule
// administration. It holds no state of its own; every call reads the store.
type Registry struct {
	repo      domain.RuleRepository
	validator ConfigValidator
}

// NewRegistry creates a registry over the rule store.
func NewRegistry(repo domain.RuleRepository, validator ConfigValidator) *Registry {
	return &Registry{repo: repo, validator: validator}
}

// Resolve merges global and tenant rules by code. A tenant rule takes the
// position of the global rule it replaces; tenant-only codes follow in their
// own order. Neither input is modified.
func Resolve(global, tenant []*domain.RiskRule) []*domain.RiskRule {
	overrides := make(map[string]*domain.RiskRule, len(tenant))
	for _, r := range tenant {
		if _, seen := overrides[r.Code]; !seen {
			overrides[r.Code] = r
		}
	}

	out := make([]*domain.RiskRule, 0, len(global)+len(tenant))
	used := make(map[string]bool, len(global)+len(tenant))

	for _, g := range global {
		if used[g.Code] {
			continue
		}
		used[g.Code] = true
		if t, ok := overrides[g.Code]; ok {
			out = append(out, t)
			continue
		}
		out = append(out, g)
	}
	for _, t := range tenant {
		if used[t.Code] {
			continue
		}
		used[t.Code] = true
		out = append(out, t)
	}
	return out
}

// LoadActiveRules returns the tenant's effective active rules for a scope.
func (r *Registry) LoadActiveRules(ctx context.Context, tenantID string, scope domain.Scope) ([]*domain.RiskRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if !scope.Valid() {
		return nil, fmt.Errorf("%w: unknown scope %q", domain.ErrInvalidInput, scope)
	}

	global, err := r.repo.ListActiveRules(ctx, domain.GlobalTenantID, scope)
	if err != nil {
		return nil, fmt.Errorf("load global rules: %w", err)
	}
	if tenantID == domain.GlobalTenantID {
		return global, nil
	}

	tenant, err := r.repo.ListActiveRules(ctx, tenantID, scope)
	if err != nil {
		return nil, fmt.Errorf("load tenant rules: %w", err)
	}
	return Resolve(global, tenant), nil
}

// GetRuleByCode returns the effective active rule for a code: the tenant's
// own row first, then the global one.
func (r *Registry) GetRuleByCode(ctx context.Context, tenantID string, scope domain.Scope, code string) (*domain.RiskRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	if tenantID != domain.GlobalTenantID {
		rule, err := r.repo.GetRuleByCode(ctx, tenantID, scope, code)
		if err == nil && rule.IsActive {
			return rule, nil
		}
		if err != nil && !isNotFound(err) {
			return nil, err
		}
	}

	rule, err := r.repo.GetRuleByCode(ctx, domain.GlobalTenantID, scope, code)
	if err != nil {
		return nil, err
	}
	if !rule.IsActive {
		return nil, fmt.Errorf("%w: rule %s/%s", domain.ErrNotFound, scope, code)
	}
	return rule, nil
}

// GetRule returns a rule by id if the tenant may see it: its own rules and
// global rules.
func (r *Registry) GetRule(ctx context.Context, tenantID, id string) (*domain.RiskRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	rule, err := r.repo.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule.TenantID != tenantID && !rule.IsGlobal() {
		return nil, fmt.Errorf("%w: rule %s", domain.ErrNotFound, id)
	}
	return rule, nil
}

// CreateRule validates and stores a new rule owned by tenantID. Pass
// domain.GlobalTenantID to create a global default.
func (r *Registry) CreateRule(ctx context.Context, tenantID string, rule *domain.RiskRule) (*domain.RiskRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	created := rule.Clone()
	created.ID = uuid.New().String()
	created.TenantID = tenantID
	created.Code = strings.TrimSpace(created.Code)
	created.Config = normalizeConfig(created.Config)

	if err := r.validator.ValidateConfig(created); err != nil {
		return nil, err
	}
	if err := r.repo.CreateRule(ctx, created); err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateRule replaces the mutable fields of rule id. The stored rule must be
// owned by tenantID or be global; its owner never changes.
func (r *Registry) UpdateRule(ctx context.Context, tenantID, id string, update *domain.RiskRule) (*domain.RiskRule, error) {
	current, err := r.GetRule(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	next := update.Clone()
	next.ID = current.ID
	next.TenantID = current.TenantID
	next.CreatedAt = current.CreatedAt
	next.Code = strings.TrimSpace(next.Code)
	next.Config = normalizeConfig(next.Config)

	if err := r.validator.ValidateConfig(next); err != nil {
		return nil, err
	}
	if err := r.repo.UpdateRule(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// DeleteRule removes rule id under the same ownership rule as UpdateRule.
func (r *Registry) DeleteRule(ctx context.Context, tenantID, id string) error {
	if _, err := r.GetRule(ctx, tenantID, id); err != nil {
		return err
	}
	return r.repo.DeleteRule(ctx, id)
}

// SyncGlobal creates or replaces the global rule with the same scope and
// code. It reports whether a new row was created.
func (r *Registry) SyncGlobal(ctx context.Context, rule *domain.RiskRule) (bool, error) {
	existing, err := r.repo.GetRuleByCode(ctx, domain.GlobalTenantID, rule.Scope, strings.TrimSpace(rule.Code))
	switch {
	case err == nil:
		_, err = r.UpdateRule(ctx, domain.GlobalTenantID, existing.ID, rule)
		return false, err
	case isNotFound(err):
		_, err = r.CreateRule(ctx, domain.GlobalTenantID, rule)
		return err == nil, err
	default:
		return false, err
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
