package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// The ingest endpoints let upstream collaborators store the records the
// context builder reads. Path id and tenant header win over the body.

// PutCompany handles PUT /companies/{id}.
func (h *Handler) PutCompany(w http.ResponseWriter, r *http.Request) {
	var c domain.Company
	if err := decodeBody(w, r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	c.ID = chi.URLParam(r, "id")
	c.TenantID = GetTenantID(r.Context())
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	if err := h.svc.Repo.SaveCompany(r.Context(), &c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// PutDocument handles PUT /documents/{id}.
func (h *Handler) PutDocument(w http.ResponseWriter, r *http.Request) {
	var d domain.Document
	if err := decodeBody(w, r, &d); err != nil {
		writeError(w, r, err)
		return
	}
	if d.CompanyID == "" {
		writeError(w, r, fmt.Errorf("%w: companyId is required", domain.ErrInvalidInput))
		return
	}
	d.ID = chi.URLParam(r, "id")
	d.TenantID = GetTenantID(r.Context())
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	if err := h.svc.Repo.SaveDocument(r.Context(), &d); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// PutFeatureSet handles PUT /documents/{id}/features. The document must exist.
func (h *Handler) PutFeatureSet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	documentID := chi.URLParam(r, "id")

	var fs domain.FeatureSet
	if err := decodeBody(w, r, &fs); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.svc.Repo.GetDocument(ctx, tenantID, documentID); err != nil {
		writeError(w, r, err)
		return
	}
	fs.TenantID = tenantID
	fs.DocumentID = documentID
	if fs.ComputedAt.IsZero() {
		fs.ComputedAt = time.Now().UTC()
	}

	if err := h.svc.Repo.SaveFeatureSet(ctx, &fs); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fs)
}

// PutInvoice handles PUT /invoices/{id}.
func (h *Handler) PutInvoice(w http.ResponseWriter, r *http.Request) {
	var inv domain.Invoice
	if err := decodeBody(w, r, &inv); err != nil {
		writeError(w, r, err)
		return
	}
	if inv.CompanyID == "" || inv.ExternalID == "" {
		writeError(w, r, fmt.Errorf("%w: companyId and externalId are required", domain.ErrInvalidInput))
		return
	}
	inv.ID = chi.URLParam(r, "id")
	inv.TenantID = GetTenantID(r.Context())
	if inv.IssuedAt.IsZero() {
		inv.IssuedAt = time.Now().UTC()
	}

	if err := h.svc.Repo.SaveInvoice(r.Context(), &inv); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
