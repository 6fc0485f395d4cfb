package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/reportd/reportd/pkg/scheduler"
)

// NewServeCommand constructs the long-running service command.
func NewServeCommand() *cobra.Command {
	var drainTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the report service until interrupted",
		Long: `Starts the worker pool and the retention sweeper, then blocks until
SIGINT or SIGTERM. On shutdown, running jobs are cancelled and the
pool is given the drain window to exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := scheduler.New(Config().SchedulerConfig())
			if err != nil {
				return fmt.Errorf("initialize service: %w", err)
			}
			svc.Start()

			stats := svc.Stats()
			log.Info().Int("workers", stats.Workers).
				Int64("storage_quota_bytes", stats.Storage.MaxBytes).
				Msg("reportd serving")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			log.Info().Str("signal", sig.String()).Msg("shutting down")

			return svc.Stop(drainTimeout)
		},
	}

	cmd.Flags().DurationVar(&drainTimeout, "drain-timeout", 30*time.Second,
		"How long to wait for the worker pool after cancelling running jobs")
	return cmd
}
