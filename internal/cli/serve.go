package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rulesync"
	"github.com/opensource-finance/kestrel/internal/worker"
)

func newServeCommand(cfg *domain.Config, info BuildInfo) *cobra.Command {
	var (
		rulesPath string
		watch     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Runs the evaluation API. With --rules, global rule defaults are synced from a YAML file at startup, and with --watch on every change.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg, info, rulesPath, watch)
		},
	}
	cmd.Flags().StringVar(&rulesPath, "rules", "", "Path to a YAML file of global rules")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-sync the rule file when it changes")
	return cmd
}

func runServe(ctx context.Context, cfg *domain.Config, info BuildInfo, rulesPath string, watch bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting kestrel",
		"version", info.Version,
		"commit", info.Commit,
		"build_date", info.BuildDate,
		"tier", cfg.Tier,
	)

	s, err := openStack(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if rulesPath != "" {
		if _, err := rulesync.SyncFile(ctx, s.registry, rulesPath); err != nil {
			return fmt.Errorf("failed to sync rules: %w", err)
		}
		if watch {
			w, err := rulesync.NewWatcher(rulesPath, s.registry)
			if err != nil {
				slog.Warn("rule hot-reload disabled", "error", err)
			} else {
				go w.Run(ctx)
				slog.Info("watching rule file", "path", rulesPath)
			}
		}
	}

	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.New(s.bus, s.engine)
		if err := asyncWorker.Start(cfg.Worker.TenantIDs); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		} else {
			slog.Info("async worker started", "tenant_count", len(cfg.Worker.TenantIDs))
		}
	}

	svc := api.Services{
		Repo:        s.repo,
		Engine:      s.engine,
		Registry:    s.registry,
		Scores:      s.scores,
		Explainer:   s.explainer,
		Bus:         s.bus,
		Cache:       s.cache,
		Metrics:     s.metrics,
		MetricsPath: cfg.Metrics.Path,
		Version:     info.Version,
	}
	if asyncWorker != nil {
		svc.Worker = asyncWorker
	}
	srv := api.NewServer(cfg.Server, svc)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	slog.Info("kestrel is ready", "host", cfg.Server.Host, "port", cfg.Server.Port)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}
	slog.Info("shutting down")

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
	return nil
}
