// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// RuleRepository persists rule definitions.
// All methods require tenantID; pass GlobalTenantID for global defaults.
type RuleRepository interface {
	// ListActiveRules returns the active rules owned by exactly tenantID, ordered by code.
	ListActiveRules(ctx context.Context, tenantID string, scope Scope) ([]*RiskRule, error)

	// GetRuleByCode returns the rule owned by exactly tenantID, active or not.
	GetRuleByCode(ctx context.Context, tenantID string, scope Scope, code string) (*RiskRule, error)

	// GetRule returns a rule by ID regardless of owner.
	GetRule(ctx context.Context, id string) (*RiskRule, error)

	// CreateRule inserts a rule; a duplicate (tenant, scope, code) yields ErrIntegrity.
	CreateRule(ctx context.Context, rule *RiskRule) error

	// UpdateRule replaces the mutable fields of the rule with rule.ID.
	UpdateRule(ctx context.Context, rule *RiskRule) error

	// DeleteRule removes a rule by ID.
	DeleteRule(ctx context.Context, id string) error
}

// ScoreRepository persists the current snapshot per (tenant, scope, entity).
type ScoreRepository interface {
	// UpsertScore atomically replaces the snapshot and returns the stored row.
	UpsertScore(ctx context.Context, score *RiskScore) (*RiskScore, error)

	GetScore(ctx context.Context, tenantID string, scope Scope, entityID string) (*RiskScore, error)

	// ListScores returns snapshots, optionally filtered by severity ("" for all).
	ListScores(ctx context.Context, tenantID string, scope Scope, severity Severity) ([]*RiskScore, error)
}

// FactRepository exposes the read-only queries the context builder needs.
type FactRepository interface {
	GetCompany(ctx context.Context, tenantID, companyID string) (*Company, error)
	GetDocument(ctx context.Context, tenantID, documentID string) (*Document, error)
	GetInvoice(ctx context.Context, tenantID, invoiceID string) (*Invoice, error)
	GetFeatureSet(ctx context.Context, tenantID, documentID string) (*FeatureSet, error)

	// CountHighRiskDocuments counts the company's document scores with
	// severity high generated at or after since.
	CountHighRiskDocuments(ctx context.Context, tenantID, companyID string, since time.Time) (int, error)

	// CountInvoices counts every invoice of the company.
	CountInvoices(ctx context.Context, tenantID, companyID string) (int, error)

	// CountHighRiskInvoices counts invoices whose backing document is scored high.
	CountHighRiskInvoices(ctx context.Context, tenantID, companyID string) (int, error)

	// DuplicateInvoiceIDs lists external invoice ids used more than once, sorted.
	DuplicateInvoiceIDs(ctx context.Context, tenantID, companyID string) ([]string, error)
}

// RecordRepository is the write side used by upstream ingestion.
type RecordRepository interface {
	SaveCompany(ctx context.Context, company *Company) error
	SaveDocument(ctx context.Context, doc *Document) error
	SaveInvoice(ctx context.Context, inv *Invoice) error
	SaveFeatureSet(ctx context.Context, fs *FeatureSet) error
}

// Repository is the full persistence surface.
type Repository interface {
	RuleRepository
	ScoreRepository
	FactRepository
	RecordRepository

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `env:"KESTREL_DB_DRIVER"`

	// SQLite specific
	SQLitePath string `env:"KESTREL_SQLITE_PATH"`

	// PostgreSQL specific
	PostgresHost     string `env:"KESTREL_PG_HOST"`
	PostgresPort     int    `env:"KESTREL_PG_PORT"`
	PostgresUser     string `env:"KESTREL_PG_USER"`
	PostgresPassword string `env:"KESTREL_PG_PASSWORD"`
	PostgresDB       string `env:"KESTREL_PG_DATABASE"`
	PostgresSSLMode  string `env:"KESTREL_PG_SSLMODE"`

	// Connection pool settings
	MaxOpenConns    int           `env:"KESTREL_DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `env:"KESTREL_DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `env:"KESTREL_DB_CONN_MAX_LIFETIME"`
}
