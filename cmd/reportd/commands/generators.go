package commands

import (
	"github.com/spf13/cobra"

	"github.com/reportd/reportd/cmd/reportd/internal/format"
	"github.com/reportd/reportd/pkg/report"
)

// NewGeneratorsCommand lists the registered report generators.
func NewGeneratorsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "generators",
		Aliases: []string{"gen"},
		Short:   "List available report generators",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := format.New(cmd.OutOrStdout(), cmd.ErrOrStderr())

			metas := report.Default().List()
			rows := make([][]string, 0, len(metas))
			for _, m := range metas {
				rows = append(rows, []string{m.ID, m.Version, m.Description})
			}

			formatter.Header("Registered generators")
			formatter.Table([]string{"ID", "VERSION", "DESCRIPTION"}, rows)
			return nil
		},
	}
}
