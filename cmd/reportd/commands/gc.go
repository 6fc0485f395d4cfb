package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/reportd/reportd/cmd/reportd/internal/format"
	"github.com/reportd/reportd/pkg/filestore"
)

// NewGCCommand sweeps expired files out of the store.
func NewGCCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Remove stored files past their retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := format.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
			cfg := Config()

			store, err := filestore.New(filestore.Config{
				Root:                 cfg.Storage.Root,
				MaxBytes:             cfg.Storage.MaxBytes,
				MaxFiles:             cfg.Storage.MaxFiles,
				DefaultRetentionDays: cfg.Storage.RetentionDays,
			})
			if err != nil {
				return fmt.Errorf("open file store: %w", err)
			}

			expired := store.ExpireRetained(dryRun)
			if len(expired) == 0 {
				formatter.Successf("nothing to collect")
				return nil
			}

			var bytes int64
			rows := make([][]string, 0, len(expired))
			for _, ex := range expired {
				bytes += ex.Size
				rows = append(rows, []string{
					ex.JobID, ex.Filename, format.FormatBytes(ex.Size), ex.Age.Truncate(time.Second).String(),
				})
			}
			formatter.Table([]string{"JOB", "FILE", "SIZE", "AGE"}, rows)

			if dryRun {
				formatter.Warnf("dry run: %d files (%s) would be removed", len(expired), format.FormatBytes(bytes))
			} else {
				formatter.Successf("removed %d files (%s)", len(expired), format.FormatBytes(bytes))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report expired files without deleting them")
	return cmd
}
