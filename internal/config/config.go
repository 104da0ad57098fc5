// Package config assembles the runtime configuration from tier defaults and
// KESTREL_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const tierVar = "KESTREL_TIER"

// Load reads the process environment.
func Load() (*domain.Config, error) {
	return LoadFrom(environ())
}

// LoadFrom builds a config from the given variables. KESTREL_TIER picks the
// base defaults; every other set variable overrides its field.
func LoadFrom(vars map[string]string) (*domain.Config, error) {
	var cfg *domain.Config
	switch tier := domain.Tier(strings.ToLower(vars[tierVar])); tier {
	case "", domain.TierCommunity:
		cfg = domain.DefaultConfig()
	case domain.TierPro:
		cfg = domain.ProConfig()
	default:
		return nil, fmt.Errorf("%w: unknown tier %q", domain.ErrInvalidInput, tier)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Tier = domain.Tier(strings.ToLower(string(cfg.Tier)))

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no component can start with.
func Validate(cfg *domain.Config) error {
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unknown database driver %q", domain.ErrInvalidInput, cfg.Repository.Driver)
	}
	switch cfg.Cache.Type {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("%w: unknown cache type %q", domain.ErrInvalidInput, cfg.Cache.Type)
	}
	switch cfg.EventBus.Type {
	case "", "channel", "nats":
	default:
		return fmt.Errorf("%w: unknown event bus type %q", domain.ErrInvalidInput, cfg.EventBus.Type)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", domain.ErrInvalidInput, cfg.Server.Port)
	}
	if cfg.Server.AdminTenantID == domain.GlobalTenantID {
		return fmt.Errorf("%w: admin tenant cannot be %q", domain.ErrInvalidInput, domain.GlobalTenantID)
	}
	return nil
}

func environ() map[string]string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return vars
}
