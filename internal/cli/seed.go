package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rulesync"
)

func newSeedCommand(cfg *domain.Config) *cobra.Command {
	var rulesPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Sync global rules from a YAML file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStack(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := rulesync.SyncFile(cmd.Context(), s.registry, rulesPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d, updated %d\n", res.Created, res.Updated)
			return nil
		},
	}
	cmd.Flags().StringVar(&rulesPath, "rules", "rules.yaml", "Path to a YAML file of global rules")
	return cmd
}
