package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// GetCompany returns a company owned by the tenant.
func (r *SQLRepository) GetCompany(ctx context.Context, tenantID, companyID string) (*domain.Company, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, tags, created_at
		FROM companies
		WHERE tenant_id = ? AND id = ?
	`

	var c domain.Company
	var tags string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, companyID).Scan(
		&c.ID, &c.TenantID, &c.Name, &tags, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: company %s", domain.ErrNotFound, companyID)
	}
	if err != nil {
		return nil, err
	}

	if c.Tags, err = decodeStrings(tags); err != nil {
		return nil, fmt.Errorf("failed to parse company tags: %w", err)
	}
	return &c, nil
}

// GetDocument returns a document owned by the tenant.
func (r *SQLRepository) GetDocument(ctx context.Context, tenantID, documentID string) (*domain.Document, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, company_id, invoice_id, kind, created_at
		FROM documents
		WHERE tenant_id = ? AND id = ?
	`

	var d domain.Document
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, documentID).Scan(
		&d.ID, &d.TenantID, &d.CompanyID, &d.InvoiceID, &d.Kind, &d.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", domain.ErrNotFound, documentID)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetInvoice returns an invoice owned by the tenant.
func (r *SQLRepository) GetInvoice(ctx context.Context, tenantID, invoiceID string) (*domain.Invoice, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, company_id, document_id, external_id,
			   counterparty_name, amount, currency, issued_at
		FROM invoices
		WHERE tenant_id = ? AND id = ?
	`

	var inv domain.Invoice
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, invoiceID).Scan(
		&inv.ID, &inv.TenantID, &inv.CompanyID, &inv.DocumentID, &inv.ExternalID,
		&inv.CounterpartyName, &inv.Amount, &inv.Currency, &inv.IssuedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: invoice %s", domain.ErrNotFound, invoiceID)
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetFeatureSet returns the stored extraction output for a document.
func (r *SQLRepository) GetFeatureSet(ctx context.Context, tenantID, documentID string) (*domain.FeatureSet, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT tenant_id, document_id, date_inconsistency, total_mismatch,
			   duplicate_invoice_number, missing_fields, tags, computed_at
		FROM document_features
		WHERE tenant_id = ? AND document_id = ?
	`

	var fs domain.FeatureSet
	var dateInc, totalMis, dup int
	var missing, tags string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, documentID).Scan(
		&fs.TenantID, &fs.DocumentID, &dateInc, &totalMis, &dup, &missing, &tags, &fs.ComputedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: feature set for document %s", domain.ErrNotFound, documentID)
	}
	if err != nil {
		return nil, err
	}

	fs.DateInconsistency = dateInc == 1
	fs.TotalMismatch = totalMis == 1
	fs.DuplicateInvoiceNumber = dup == 1
	if fs.MissingFields, err = decodeStrings(missing); err != nil {
		return nil, fmt.Errorf("failed to parse missing fields: %w", err)
	}
	if fs.Tags, err = decodeStrings(tags); err != nil {
		return nil, fmt.Errorf("failed to parse feature tags: %w", err)
	}
	return &fs, nil
}

// CountHighRiskDocuments counts the company's document snapshots with
// severity high generated at or after since.
func (r *SQLRepository) CountHighRiskDocuments(ctx context.Context, tenantID, companyID string, since time.Time) (int, error) {
	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}

	query := `
		SELECT COUNT(*)
		FROM document_risk_scores s
		JOIN documents d ON d.tenant_id = s.tenant_id AND d.id = s.entity_id
		WHERE s.tenant_id = ? AND d.company_id = ?
		  AND s.severity = ? AND s.generated_at >= ?
	`

	return r.count(ctx, query, tenantID, companyID, string(domain.SeverityHigh), since.UTC())
}

// CountInvoices counts every invoice of the company.
func (r *SQLRepository) CountInvoices(ctx context.Context, tenantID, companyID string) (int, error) {
	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}
	return r.count(ctx, `SELECT COUNT(*) FROM invoices WHERE tenant_id = ? AND company_id = ?`, tenantID, companyID)
}

// CountHighRiskInvoices counts invoices whose backing document is scored
// high. The link may be recorded on either side.
func (r *SQLRepository) CountHighRiskInvoices(ctx context.Context, tenantID, companyID string) (int, error) {
	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}

	query := `
		SELECT COUNT(*)
		FROM invoices i
		WHERE i.tenant_id = ? AND i.company_id = ?
		  AND EXISTS (
			SELECT 1
			FROM document_risk_scores s
			LEFT JOIN documents d ON d.tenant_id = s.tenant_id AND d.id = s.entity_id
			WHERE s.tenant_id = i.tenant_id
			  AND s.severity = ?
			  AND (s.entity_id = i.document_id OR d.invoice_id = i.id)
		  )
	`

	return r.count(ctx, query, tenantID, companyID, string(domain.SeverityHigh))
}

// DuplicateInvoiceIDs lists external invoice ids the company used more than
// once. Ids are compared exactly as stored.
func (r *SQLRepository) DuplicateInvoiceIDs(ctx context.Context, tenantID, companyID string) ([]string, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT external_id
		FROM invoices
		WHERE tenant_id = ? AND company_id = ? AND external_id <> ''
		GROUP BY external_id
		HAVING COUNT(*) > 1
		ORDER BY external_id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLRepository) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
