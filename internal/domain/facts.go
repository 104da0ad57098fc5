package domain

// DocumentFacts are derived from a document's stored feature set and its linked invoice.
type DocumentFacts struct {
	DocumentID             string   `json:"documentId"`
	CompanyID              string   `json:"companyId,omitempty"`
	InvoiceID              string   `json:"invoiceId,omitempty"`
	InvoiceExternalID      string   `json:"invoiceExternalId,omitempty"`
	Amount                 float64  `json:"amount,omitempty"`
	Currency               string   `json:"currency,omitempty"`
	DateInconsistency      bool     `json:"dateInconsistency"`
	TotalMismatch          bool     `json:"totalMismatch"`
	DuplicateInvoiceNumber bool     `json:"duplicateInvoiceNumber"`
	MissingRequiredFields  bool     `json:"missingRequiredFields"`
	MissingFields          []string `json:"missingFields,omitempty"`
}

// CompanyFacts aggregate a client company's documents and invoices.
// HighRiskDocumentCount is limited to the lookback window; the invoice
// counts cover the full history.
type CompanyFacts struct {
	CompanyID             string   `json:"companyId"`
	WindowDays            int      `json:"windowDays"`
	HighRiskDocumentCount int      `json:"highRiskDocumentCount"`
	InvoiceCount          int      `json:"invoiceCount"`
	HighRiskInvoiceCount  int      `json:"highRiskInvoiceCount"`
	DuplicateInvoiceIDs   []string `json:"duplicateInvoiceIds"`
}

// HighRiskRatio is HighRiskInvoiceCount / InvoiceCount, or 0 without invoices.
func (c *CompanyFacts) HighRiskRatio() float64 {
	if c.InvoiceCount == 0 {
		return 0
	}
	return float64(c.HighRiskInvoiceCount) / float64(c.InvoiceCount)
}

// Facts is the ephemeral input of one evaluation. Exactly one of Document
// and Company is set, matching Scope.
type Facts struct {
	Scope    Scope          `json:"scope"`
	EntityID string         `json:"entityId"`
	Document *DocumentFacts `json:"document,omitempty"`
	Company  *CompanyFacts  `json:"company,omitempty"`

	// Tags are upstream markers; a rule with no named predicate fires when
	// its code appears here.
	Tags []string `json:"tags,omitempty"`
}

// HasTag reports whether the facts carry exactly the given tag.
func (f *Facts) HasTag(tag string) bool {
	for _, t := range f.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Activation exposes the facts as variables for expression rules:
// scope, entity_id, tags, document and company. The missing side is an empty map.
func (f *Facts) Activation() map[string]any {
	doc := map[string]any{}
	if d := f.Document; d != nil {
		doc = map[string]any{
			"document_id":              d.DocumentID,
			"company_id":               d.CompanyID,
			"invoice_id":               d.InvoiceID,
			"invoice_external_id":      d.InvoiceExternalID,
			"amount":                   d.Amount,
			"currency":                 d.Currency,
			"date_inconsistency":       d.DateInconsistency,
			"total_mismatch":           d.TotalMismatch,
			"duplicate_invoice_number": d.DuplicateInvoiceNumber,
			"missing_required_fields":  d.MissingRequiredFields,
			"missing_fields":           stringsOrEmpty(d.MissingFields),
		}
	}

	company := map[string]any{}
	if c := f.Company; c != nil {
		company = map[string]any{
			"company_id":               c.CompanyID,
			"window_days":              int64(c.WindowDays),
			"high_risk_document_count": int64(c.HighRiskDocumentCount),
			"invoice_count":            int64(c.InvoiceCount),
			"high_risk_invoice_count":  int64(c.HighRiskInvoiceCount),
			"high_risk_ratio":          c.HighRiskRatio(),
			"duplicate_invoice_ids":    stringsOrEmpty(c.DuplicateInvoiceIDs),
		}
	}

	return map[string]any{
		"scope":     string(f.Scope),
		"entity_id": f.EntityID,
		"tags":      stringsOrEmpty(f.Tags),
		"document":  doc,
		"company":   company,
	}
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
