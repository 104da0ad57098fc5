package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig

	// Tier determines feature availability
	Tier Tier `env:"KESTREL_TIER"`

	// Component configurations
	Repository RepositoryConfig
	Cache      CacheConfig
	EventBus   EventBusConfig
	Engine     EngineConfig
	Worker     WorkerConfig

	// Observability
	Logging LoggingConfig
	Metrics MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `env:"KESTREL_HOST"`
	Port         int    `env:"KESTREL_PORT"`
	ReadTimeout  int    `env:"KESTREL_READ_TIMEOUT"`  // seconds
	WriteTimeout int    `env:"KESTREL_WRITE_TIMEOUT"` // seconds

	// AdminTenantID is the only tenant allowed to create global rules.
	AdminTenantID string `env:"KESTREL_ADMIN_TENANT"`
}

// EngineConfig tunes fact gathering.
type EngineConfig struct {
	// CompanyLookbackDays is the window for high-risk document counts.
	CompanyLookbackDays int `env:"KESTREL_COMPANY_LOOKBACK_DAYS"`
}

// LookbackDays returns the company window in days.
func (c EngineConfig) LookbackDays() int {
	if c.CompanyLookbackDays <= 0 {
		return DefaultLookbackDays
	}
	return c.CompanyLookbackDays
}

// Lookback returns the company window as a duration.
func (c EngineConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackDays()) * 24 * time.Hour
}

// DefaultLookbackDays is the company fact window.
const DefaultLookbackDays = 90

// WorkerConfig enables the asynchronous evaluation consumer.
type WorkerConfig struct {
	Enabled   bool     `env:"KESTREL_ASYNC_WORKER"`
	TenantIDs []string `env:"KESTREL_WORKER_TENANTS" envSeparator:","`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"KESTREL_LOG_LEVEL"`  // debug, info, warn, error
	Format string `env:"KESTREL_LOG_FORMAT"` // json, text
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `env:"KESTREL_METRICS_ENABLED"`
	Path    string `env:"KESTREL_METRICS_PATH"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			ReadTimeout:   30,
			WriteTimeout:  30,
			AdminTenantID: "admin",
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			SnapshotTTL:  time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Engine: EngineConfig{
			CompanyLookbackDays: DefaultLookbackDays,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       30 * time.Second,
		SnapshotTTL:    time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Worker.Enabled = true
	return cfg
}
