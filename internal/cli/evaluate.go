package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// entityFlags are shared by the commands that address one entity.
type entityFlags struct {
	tenantID string
	scope    string
}

func (f *entityFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tenantID, "tenant", "", "Tenant id")
	cmd.Flags().StringVar(&f.scope, "scope", "document", "Entity scope: document or company")
	_ = cmd.MarkFlagRequired("tenant")
}

func newEvaluateCommand(cfg *domain.Config) *cobra.Command {
	var flags entityFlags

	cmd := &cobra.Command{
		Use:   "evaluate ENTITY_ID",
		Short: "Evaluate one entity and store its score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := parseScopeArg(flags.scope)
			if err != nil {
				return err
			}
			s, err := openStack(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			eval, err := s.engine.Evaluate(cmd.Context(), flags.tenantID, scope, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, eval)
		},
	}
	flags.register(cmd)
	return cmd
}

func newExplainCommand(cfg *domain.Config) *cobra.Command {
	var flags entityFlags

	cmd := &cobra.Command{
		Use:   "explain ENTITY_ID",
		Short: "Explain an entity's stored score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := parseScopeArg(flags.scope)
			if err != nil {
				return err
			}
			s, err := openStack(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			exp, err := s.explainer.Explain(cmd.Context(), flags.tenantID, scope, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, exp)
		},
	}
	flags.register(cmd)
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
