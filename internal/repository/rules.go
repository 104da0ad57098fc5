package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const ruleColumns = `id, tenant_id, scope, code, description, weight, is_active,
	default_severity, config, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*domain.RiskRule, error) {
	var rule domain.RiskRule
	var scope, severity, config string
	var active int

	if err := row.Scan(
		&rule.ID, &rule.TenantID, &scope, &rule.Code, &rule.Description,
		&rule.Weight, &active, &severity, &config,
		&rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rule.Scope = domain.Scope(scope)
	rule.IsActive = active == 1
	rule.DefaultSeverity = domain.Severity(severity)
	if config != "" {
		rule.Config = json.RawMessage(config)
	}
	return &rule, nil
}

func ruleConfigText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

// ListActiveRules returns the active rules owned by exactly tenantID, ordered by code.
func (r *SQLRepository) ListActiveRules(ctx context.Context, tenantID string, scope domain.Scope) ([]*domain.RiskRule, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + ruleColumns + `
		FROM risk_rules
		WHERE tenant_id = ? AND scope = ? AND is_active = 1
		ORDER BY code
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, string(scope))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []*domain.RiskRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// GetRuleByCode returns the rule owned by exactly tenantID, active or not.
func (r *SQLRepository) GetRuleByCode(ctx context.Context, tenantID string, scope domain.Scope, code string) (*domain.RiskRule, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + ruleColumns + `
		FROM risk_rules
		WHERE tenant_id = ? AND scope = ? AND code = ?
	`

	rule, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, string(scope), code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: rule %s/%s", domain.ErrNotFound, scope, code)
	}
	return rule, err
}

// GetRule returns a rule by ID regardless of owner.
func (r *SQLRepository) GetRule(ctx context.Context, id string) (*domain.RiskRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM risk_rules WHERE id = ?`

	rule, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: rule %s", domain.ErrNotFound, id)
	}
	return rule, err
}

// CreateRule inserts a new rule. CreatedAt and UpdatedAt are set on the
// passed rule. A second row for the same (tenant, scope, code) is rejected.
func (r *SQLRepository) CreateRule(ctx context.Context, rule *domain.RiskRule) error {
	if err := requireTenant(rule.TenantID); err != nil {
		return err
	}

	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	query := `
		INSERT INTO risk_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.TenantID, string(rule.Scope), rule.Code, rule.Description,
		rule.Weight, boolToInt(rule.IsActive), string(rule.DefaultSeverity),
		ruleConfigText(rule.Config), rule.CreatedAt, rule.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: rule %s/%s already exists for tenant %s",
			domain.ErrIntegrity, rule.Scope, rule.Code, rule.TenantID)
	}
	return err
}

// UpdateRule replaces the mutable fields of the rule with rule.ID.
// The owning tenant is never changed.
func (r *SQLRepository) UpdateRule(ctx context.Context, rule *domain.RiskRule) error {
	rule.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE risk_rules
		SET scope = ?, code = ?, description = ?, weight = ?, is_active = ?,
			default_severity = ?, config = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(rule.Scope), rule.Code, rule.Description, rule.Weight,
		boolToInt(rule.IsActive), string(rule.DefaultSeverity),
		ruleConfigText(rule.Config), rule.UpdatedAt, rule.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: rule %s/%s already exists", domain.ErrIntegrity, rule.Scope, rule.Code)
	}
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: rule %s", domain.ErrNotFound, rule.ID)
	}
	return nil
}

// DeleteRule removes a rule by ID.
func (r *SQLRepository) DeleteRule(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM risk_rules WHERE id = ?`), id)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: rule %s", domain.ErrNotFound, id)
	}
	return nil
}
