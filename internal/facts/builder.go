// Package facts builds the per-evaluation facts from stored records.
package facts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Builder gathers facts for one document or one company. It only reads.
type Builder struct {
	repo     domain.FactRepository
	lookback time.Duration
}

// NewBuilder creates a builder. A non-positive lookback uses the 90 day default.
func NewBuilder(repo domain.FactRepository, lookback time.Duration) *Builder {
	if lookback <= 0 {
		lookback = time.Duration(domain.DefaultLookbackDays) * 24 * time.Hour
	}
	return &Builder{repo: repo, lookback: lookback}
}

// Build dispatches on scope.
func (b *Builder) Build(ctx context.Context, tenantID string, scope domain.Scope, entityID string, now time.Time) (*domain.Facts, error) {
	switch scope {
	case domain.ScopeDocument:
		return b.BuildDocument(ctx, tenantID, entityID)
	case domain.ScopeCompany:
		return b.BuildCompany(ctx, tenantID, entityID, now)
	}
	return nil, fmt.Errorf("%w: unknown scope %q", domain.ErrInvalidInput, scope)
}

// BuildDocument reads the document's stored feature set and linked invoice.
// A document without a feature set cannot be evaluated; nothing is inferred.
func (b *Builder) BuildDocument(ctx context.Context, tenantID, documentID string) (*domain.Facts, error) {
	if tenantID == "" || documentID == "" {
		return nil, fmt.Errorf("%w: tenantID and documentID are required", domain.ErrInvalidInput)
	}

	doc, err := b.repo.GetDocument(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}

	fs, err := b.repo.GetFeatureSet(ctx, tenantID, documentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: features not computed for document %s: %w", domain.ErrEvaluation, documentID, err)
		}
		return nil, err
	}

	df := &domain.DocumentFacts{
		DocumentID:             doc.ID,
		CompanyID:              doc.CompanyID,
		InvoiceID:              doc.InvoiceID,
		DateInconsistency:      fs.DateInconsistency,
		TotalMismatch:          fs.TotalMismatch,
		DuplicateInvoiceNumber: fs.DuplicateInvoiceNumber,
		MissingRequiredFields:  len(fs.MissingFields) > 0,
		MissingFields:          fs.MissingFields,
	}

	if doc.InvoiceID != "" {
		inv, err := b.repo.GetInvoice(ctx, tenantID, doc.InvoiceID)
		switch {
		case err == nil:
			df.InvoiceExternalID = inv.ExternalID
			df.Amount = inv.Amount
			df.Currency = inv.Currency
		case errors.Is(err, domain.ErrNotFound):
			slog.Debug("linked invoice missing",
				"tenant_id", tenantID,
				"document_id", documentID,
				"invoice_id", doc.InvoiceID,
			)
		default:
			return nil, err
		}
	}

	return &domain.Facts{
		Scope:    domain.ScopeDocument,
		EntityID: documentID,
		Document: df,
		Tags:     fs.Tags,
	}, nil
}

// BuildCompany aggregates the company's documents and invoices. The four
// aggregates are independent reads and run concurrently.
func (b *Builder) BuildCompany(ctx context.Context, tenantID, companyID string, now time.Time) (*domain.Facts, error) {
	if tenantID == "" || companyID == "" {
		return nil, fmt.Errorf("%w: tenantID and companyID are required", domain.ErrInvalidInput)
	}

	company, err := b.repo.GetCompany(ctx, tenantID, companyID)
	if err != nil {
		return nil, err
	}

	cf := &domain.CompanyFacts{
		CompanyID:  company.ID,
		WindowDays: int(b.lookback / (24 * time.Hour)),
	}
	since := now.Add(-b.lookback)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := b.repo.CountHighRiskDocuments(gctx, tenantID, companyID, since)
		if err != nil {
			return fmt.Errorf("count high-risk documents: %w", err)
		}
		cf.HighRiskDocumentCount = n
		return nil
	})
	g.Go(func() error {
		n, err := b.repo.CountInvoices(gctx, tenantID, companyID)
		if err != nil {
			return fmt.Errorf("count invoices: %w", err)
		}
		cf.InvoiceCount = n
		return nil
	})
	g.Go(func() error {
		n, err := b.repo.CountHighRiskInvoices(gctx, tenantID, companyID)
		if err != nil {
			return fmt.Errorf("count high-risk invoices: %w", err)
		}
		cf.HighRiskInvoiceCount = n
		return nil
	})
	g.Go(func() error {
		ids, err := b.repo.DuplicateInvoiceIDs(gctx, tenantID, companyID)
		if err != nil {
			return fmt.Errorf("list duplicate invoices: %w", err)
		}
		cf.DuplicateInvoiceIDs = ids
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: company %s: %w", domain.ErrEvaluation, companyID, err)
	}

	return &domain.Facts{
		Scope:    domain.ScopeCompany,
		EntityID: companyID,
		Company:  cf,
		Tags:     company.Tags,
	}, nil
}
