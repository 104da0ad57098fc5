package repository

import (
	"context"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// The Save* methods back the ingest endpoints used by upstream collaborators.
// Each one replaces the stored row for its key.

// SaveCompany stores a company with tenant isolation.
func (r *SQLRepository) SaveCompany(ctx context.Context, c *domain.Company) error {
	if err := requireTenant(c.TenantID); err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO companies (id, tenant_id, name, tags, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			name = excluded.name,
			tags = excluded.tags
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, c.TenantID, c.Name, encodeStrings(c.Tags), c.CreatedAt.UTC(),
	)
	return err
}

// SaveDocument stores a document with tenant isolation.
func (r *SQLRepository) SaveDocument(ctx context.Context, d *domain.Document) error {
	if err := requireTenant(d.TenantID); err != nil {
		return err
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO documents (id, tenant_id, company_id, invoice_id, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			company_id = excluded.company_id,
			invoice_id = excluded.invoice_id,
			kind = excluded.kind
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		d.ID, d.TenantID, d.CompanyID, d.InvoiceID, d.Kind, d.CreatedAt.UTC(),
	)
	return err
}

// SaveInvoice stores an invoice with tenant isolation.
func (r *SQLRepository) SaveInvoice(ctx context.Context, inv *domain.Invoice) error {
	if err := requireTenant(inv.TenantID); err != nil {
		return err
	}
	if inv.IssuedAt.IsZero() {
		inv.IssuedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO invoices (
			id, tenant_id, company_id, document_id, external_id,
			counterparty_name, amount, currency, issued_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			company_id = excluded.company_id,
			document_id = excluded.document_id,
			external_id = excluded.external_id,
			counterparty_name = excluded.counterparty_name,
			amount = excluded.amount,
			currency = excluded.currency,
			issued_at = excluded.issued_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		inv.ID, inv.TenantID, inv.CompanyID, inv.DocumentID, inv.ExternalID,
		inv.CounterpartyName, inv.Amount, inv.Currency, inv.IssuedAt.UTC(),
	)
	return err
}

// SaveFeatureSet stores the extraction output for a document.
func (r *SQLRepository) SaveFeatureSet(ctx context.Context, fs *domain.FeatureSet) error {
	if err := requireTenant(fs.TenantID); err != nil {
		return err
	}
	if fs.ComputedAt.IsZero() {
		fs.ComputedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO document_features (
			tenant_id, document_id, date_inconsistency, total_mismatch,
			duplicate_invoice_number, missing_fields, tags, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, document_id) DO UPDATE SET
			date_inconsistency = excluded.date_inconsistency,
			total_mismatch = excluded.total_mismatch,
			duplicate_invoice_number = excluded.duplicate_invoice_number,
			missing_fields = excluded.missing_fields,
			tags = excluded.tags,
			computed_at = excluded.computed_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		fs.TenantID, fs.DocumentID,
		boolToInt(fs.DateInconsistency), boolToInt(fs.TotalMismatch),
		boolToInt(fs.DuplicateInvoiceNumber),
		encodeStrings(fs.MissingFields), encodeStrings(fs.Tags), fs.ComputedAt.UTC(),
	)
	return err
}
