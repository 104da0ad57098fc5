package repository

// Schema definitions for Kestrel database.
// Compatible with both SQLite and PostgreSQL.

// schemaRiskRules holds global (tenant_id = '*') and tenant rules side by side.
const schemaRiskRules = `
CREATE TABLE IF NOT EXISTS risk_rules (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    scope TEXT NOT NULL,
    code TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    weight REAL NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1,
    default_severity TEXT NOT NULL DEFAULT '',
    config TEXT NOT NULL DEFAULT '{}',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE (tenant_id, scope, code)
);

CREATE INDEX IF NOT EXISTS idx_risk_rules_active ON risk_rules(tenant_id, scope, is_active);
`

const schemaDocumentScores = `
CREATE TABLE IF NOT EXISTS document_risk_scores (
    tenant_id TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    score REAL NOT NULL,
    severity TEXT NOT NULL,
    triggered_rule_codes TEXT NOT NULL,
    generated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_document_scores_severity ON document_risk_scores(tenant_id, severity, generated_at);
`

const schemaCompanyScores = `
CREATE TABLE IF NOT EXISTS company_risk_scores (
    tenant_id TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    score REAL NOT NULL,
    severity TEXT NOT NULL,
    triggered_rule_codes TEXT NOT NULL,
    generated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_company_scores_severity ON company_risk_scores(tenant_id, severity);
`

// schemaRecords holds the upstream records the context builder reads.
const schemaRecords = `
CREATE TABLE IF NOT EXISTS companies (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS documents (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    company_id TEXT NOT NULL,
    invoice_id TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_documents_company ON documents(tenant_id, company_id);

CREATE TABLE IF NOT EXISTS invoices (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    company_id TEXT NOT NULL,
    document_id TEXT NOT NULL DEFAULT '',
    external_id TEXT NOT NULL DEFAULT '',
    counterparty_name TEXT NOT NULL DEFAULT '',
    amount REAL NOT NULL DEFAULT 0,
    currency TEXT NOT NULL DEFAULT '',
    issued_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_invoices_company ON invoices(tenant_id, company_id);
CREATE INDEX IF NOT EXISTS idx_invoices_external ON invoices(tenant_id, company_id, external_id);

CREATE TABLE IF NOT EXISTS document_features (
    tenant_id TEXT NOT NULL,
    document_id TEXT NOT NULL,
    date_inconsistency INTEGER NOT NULL DEFAULT 0,
    total_mismatch INTEGER NOT NULL DEFAULT 0,
    duplicate_invoice_number INTEGER NOT NULL DEFAULT 0,
    missing_fields TEXT NOT NULL DEFAULT '[]',
    tags TEXT NOT NULL DEFAULT '[]',
    computed_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, document_id)
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRiskRules,
		schemaDocumentScores,
		schemaCompanyScores,
		schemaRecords,
	}
}
