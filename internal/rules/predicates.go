package rules

import (
	"encoding/json"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Named rule codes with a built-in predicate.
const (
	CodeDateInconsistency = "DOC-DATE-001"
	CodeTotalMismatch     = "DOC-AMT-001"
	CodeDuplicateInvoice  = "DUP-001"
	CodeMissingFields     = "DOC-MISS-001"

	CodeHighRiskDocuments = "CMP-HRD-001"
	CodeHighRiskRatio     = "CMP-HRR-001"
	CodeDuplicateInvoices = "CMP-DUP-001"
)

// Predicate decides whether a rule holds for the given facts.
// Implementations must treat a malformed config as its defaults.
type Predicate interface {
	Evaluate(facts *domain.Facts, config json.RawMessage) bool
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(facts *domain.Facts, config json.RawMessage) bool

// Evaluate calls f.
func (f PredicateFunc) Evaluate(facts *domain.Facts, config json.RawMessage) bool {
	return f(facts, config)
}

// documentFlag builds a predicate over one document flag. It never fires on
// company facts.
func documentFlag(flag func(*domain.DocumentFacts) bool) PredicateFunc {
	return func(facts *domain.Facts, _ json.RawMessage) bool {
		return facts.Document != nil && flag(facts.Document)
	}
}

func highRiskDocuments(facts *domain.Facts, config json.RawMessage) bool {
	if facts.Company == nil {
		return false
	}
	cfg := ParseThresholdConfig(config, DefaultHighRiskDocumentConfig)
	return float64(facts.Company.HighRiskDocumentCount) > cfg.Threshold
}

func highRiskRatio(facts *domain.Facts, config json.RawMessage) bool {
	if facts.Company == nil || facts.Company.InvoiceCount == 0 {
		return false
	}
	cfg := ParseRatioConfig(config, DefaultHighRiskRatioConfig)
	return facts.Company.HighRiskRatio() > cfg.Threshold
}

func duplicateInvoices(facts *domain.Facts, config json.RawMessage) bool {
	if facts.Company == nil {
		return false
	}
	cfg := ParseThresholdConfig(config, DefaultDuplicateInvoiceConfig)
	return float64(len(facts.Company.DuplicateInvoiceIDs)) > cfg.Threshold
}

// catalogEntry pairs a predicate with the config shape it reads.
type catalogEntry struct {
	predicate Predicate
	shape     configShape
}

// builtinCatalog returns the named predicates keyed by rule code.
func builtinCatalog() map[string]catalogEntry {
	return map[string]catalogEntry{
		CodeDateInconsistency: {predicate: documentFlag(func(d *domain.DocumentFacts) bool { return d.DateInconsistency })},
		CodeTotalMismatch:     {predicate: documentFlag(func(d *domain.DocumentFacts) bool { return d.TotalMismatch })},
		CodeDuplicateInvoice:  {predicate: documentFlag(func(d *domain.DocumentFacts) bool { return d.DuplicateInvoiceNumber })},
		CodeMissingFields: {predicate: documentFlag(func(d *domain.DocumentFacts) bool {
			return d.MissingRequiredFields && !d.DuplicateInvoiceNumber
		})},
		CodeHighRiskDocuments: {predicate: PredicateFunc(highRiskDocuments), shape: shapeThreshold},
		CodeHighRiskRatio:     {predicate: PredicateFunc(highRiskRatio), shape: shapeRatio},
		CodeDuplicateInvoices: {predicate: PredicateFunc(duplicateInvoices), shape: shapeThreshold},
	}
}
