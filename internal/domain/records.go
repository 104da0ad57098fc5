package domain

import "time"

// The records below are written by upstream collaborators (feature extraction,
// invoice ingestion) and only read by the engine.

// Company is a tenant's client company.
type Company struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Name      string    `json:"name"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Document is an uploaded business document, optionally backing an invoice.
type Document struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	CompanyID string    `json:"companyId"`
	InvoiceID string    `json:"invoiceId,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Invoice is a company invoice. ExternalID is the number printed on it.
type Invoice struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenantId"`
	CompanyID        string    `json:"companyId"`
	DocumentID       string    `json:"documentId,omitempty"`
	ExternalID       string    `json:"externalId"`
	CounterpartyName string    `json:"counterpartyName,omitempty"`
	Amount           float64   `json:"amount"`
	Currency         string    `json:"currency"`
	IssuedAt         time.Time `json:"issuedAt"`
}

// FeatureSet is the stored output of feature extraction for one document.
type FeatureSet struct {
	TenantID               string    `json:"tenantId"`
	DocumentID             string    `json:"documentId"`
	DateInconsistency      bool      `json:"dateInconsistency"`
	TotalMismatch          bool      `json:"totalMismatch"`
	DuplicateInvoiceNumber bool      `json:"duplicateInvoiceNumber"`
	MissingFields          []string  `json:"missingFields,omitempty"`
	Tags                   []string  `json:"tags,omitempty"`
	ComputedAt             time.Time `json:"computedAt"`
}
