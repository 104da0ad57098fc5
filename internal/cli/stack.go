package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
	"github.com/opensource-finance/kestrel/internal/explain"
	"github.com/opensource-finance/kestrel/internal/facts"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scores"
)

// stack is every component of a running Kestrel, wired from config.
type stack struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	registry  *rules.Registry
	scores    *scores.Store
	explainer *explain.Explainer
	engine    *engine.Engine
	metrics   *metrics.Collector
}

func openStack(cfg *domain.Config) (*stack, error) {
	s := &stack{}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}
	s.repo = repo
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	s.cache, err = cache.New(cfg.Cache)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	s.bus, err = bus.New(cfg.EventBus)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize event bus: %w", err)
	}
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	evaluator, err := rules.NewEvaluator(rules.WithLookbackDays(cfg.Engine.LookbackDays()))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize rule evaluator: %w", err)
	}

	if cfg.Metrics.Enabled {
		s.metrics = metrics.New()
	}
	s.registry = rules.NewRegistry(repo, evaluator)
	s.scores = scores.NewStore(repo, s.cache, cfg.Cache.SnapshotTTL)
	s.explainer = explain.New(s.registry, s.scores)
	s.engine = engine.New(engine.Deps{
		Rules:   s.registry,
		Facts:   facts.NewBuilder(repo, cfg.Engine.Lookback()),
		Scorer:  rules.NewScorer(evaluator),
		Store:   s.scores,
		Bus:     s.bus,
		Metrics: s.metrics,
	})
	return s, nil
}

// Close releases everything that was opened, in reverse order.
func (s *stack) Close() error {
	var errs []error
	if s.bus != nil {
		errs = append(errs, s.bus.Close())
	}
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	if s.repo != nil {
		errs = append(errs, s.repo.Close())
	}
	return errors.Join(errs...)
}
