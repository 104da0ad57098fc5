package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// scoreTable maps a scope to its snapshot table.
func scoreTable(scope domain.Scope) (string, error) {
	switch scope {
	case domain.ScopeDocument:
		return "document_risk_scores", nil
	case domain.ScopeCompany:
		return "company_risk_scores", nil
	}
	return "", fmt.Errorf("%w: unknown scope %q", domain.ErrInvalidInput, scope)
}

func scanScore(row rowScanner, scope domain.Scope) (*domain.RiskScore, error) {
	var s domain.RiskScore
	var severity, codes string

	if err := row.Scan(&s.TenantID, &s.EntityID, &s.Score, &severity, &codes, &s.GeneratedAt); err != nil {
		return nil, err
	}

	triggered, err := decodeStrings(codes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse triggered codes for %s: %w", s.EntityID, err)
	}

	s.Scope = scope
	s.Severity = domain.Severity(severity)
	s.TriggeredRuleCodes = triggered
	return &s, nil
}

// UpsertScore replaces the snapshot for (tenant, entity) and returns the row
// as stored. The write and the read-back share one transaction, so callers
// never see a mix of old and new columns.
func (r *SQLRepository) UpsertScore(ctx context.Context, score *domain.RiskScore) (*domain.RiskScore, error) {
	if err := requireTenant(score.TenantID); err != nil {
		return nil, err
	}
	table, err := scoreTable(score.Scope)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin score upsert: %w", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO ` + table + ` (
			tenant_id, entity_id, score, severity, triggered_rule_codes, generated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, entity_id) DO UPDATE SET
			score = excluded.score,
			severity = excluded.severity,
			triggered_rule_codes = excluded.triggered_rule_codes,
			generated_at = excluded.generated_at
	`

	if _, err := tx.ExecContext(ctx, r.rebind(upsert),
		score.TenantID, score.EntityID, score.Score, string(score.Severity),
		encodeStrings(score.TriggeredRuleCodes), score.GeneratedAt.UTC(),
	); err != nil {
		return nil, fmt.Errorf("upsert %s: %w", table, err)
	}

	read := `
		SELECT tenant_id, entity_id, score, severity, triggered_rule_codes, generated_at
		FROM ` + table + `
		WHERE tenant_id = ? AND entity_id = ?
	`

	stored, err := scanScore(tx.QueryRowContext(ctx, r.rebind(read), score.TenantID, score.EntityID), score.Scope)
	if err != nil {
		return nil, fmt.Errorf("read back %s: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit score upsert: %w", err)
	}
	return stored, nil
}

// GetScore returns the current snapshot for one entity.
func (r *SQLRepository) GetScore(ctx context.Context, tenantID string, scope domain.Scope, entityID string) (*domain.RiskScore, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	table, err := scoreTable(scope)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT tenant_id, entity_id, score, severity, triggered_rule_codes, generated_at
		FROM ` + table + `
		WHERE tenant_id = ? AND entity_id = ?
	`

	s, err := scanScore(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, entityID), scope)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s score %s", domain.ErrNotFound, scope, entityID)
	}
	return s, err
}

// ListScores returns the tenant's snapshots for a scope, newest first,
// optionally limited to one severity.
func (r *SQLRepository) ListScores(ctx context.Context, tenantID string, scope domain.Scope, severity domain.Severity) ([]*domain.RiskScore, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	table, err := scoreTable(scope)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT tenant_id, entity_id, score, severity, triggered_rule_codes, generated_at
		FROM ` + table + `
		WHERE tenant_id = ?`
	args := []any{tenantID}
	if severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(severity))
	}
	query += ` ORDER BY generated_at DESC, entity_id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scores := []*domain.RiskScore{}
	for rows.Next() {
		s, err := scanScore(rows, scope)
		if err != nil {
			return nil, err
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}
