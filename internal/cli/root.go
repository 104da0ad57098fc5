// Package cli implements the kestrel command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// BuildInfo is stamped at link time.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// Execute runs the root command.
func Execute(info BuildInfo) {
	if err := NewRootCommand(info).Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCommand builds the command tree. Configuration is read from the
// environment before any subcommand runs.
func NewRootCommand(info BuildInfo) *cobra.Command {
	cfg := domain.DefaultConfig()

	root := &cobra.Command{
		Use:           "kestrel",
		Short:         "Multi-tenant risk scoring for documents and companies",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			*cfg = *loaded
			slog.SetDefault(newLogger(cfg.Logging, cmd.ErrOrStderr()))
			return nil
		},
	}
	root.AddCommand(
		newServeCommand(cfg, info),
		newSeedCommand(cfg),
		newEvaluateCommand(cfg),
		newExplainCommand(cfg),
		newVersionCommand(info),
	)
	return root
}

func newLogger(cfg domain.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseScopeArg(s string) (domain.Scope, error) {
	scope, ok := domain.ParseScope(s)
	if !ok {
		return "", fmt.Errorf("%w: unknown scope %q", domain.ErrInvalidInput, s)
	}
	return scope, nil
}
