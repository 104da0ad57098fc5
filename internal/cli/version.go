package cli

import (
	"github.com/spf13/cobra"
)

func newVersionCommand(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd, map[string]string{
				"name":      "kestrel",
				"version":   info.Version,
				"commit":    info.Commit,
				"buildDate": info.BuildDate,
			})
		},
	}
}
