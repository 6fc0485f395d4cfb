package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/reportd/reportd/pkg/config"
	// Register the builtin report generators.
	_ "github.com/reportd/reportd/pkg/reports"
)

const cliExecutable = "reportd"

// NewCommand constructs the top-level reportd CLI command, wiring
// global flags, configuration loading and logging setup.
func NewCommand() *cobra.Command {
	var (
		configFile     string
		verbosityCount int
		verbose        bool
		manager        *config.Manager
	)

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "reportd runs report generation jobs through a bounded queue and worker pool",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			manager = config.NewManager()
			if err := manager.Load(cmd.Flags(), configFile); err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			setCurrentConfig(manager.Get())

			cfg := manager.Get()
			configureLogging(cfg.Log, verbose, verbosityCount)
			return nil
		},
	}

	cmd.SilenceUsage = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	cmd.PersistentFlags().CountVarP(&verbosityCount, "verbosity", "v", "Increase logging verbosity (repeatable)")
	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")

	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewGeneratorsCommand())
	cmd.AddCommand(NewGCCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// configureLogging applies the configured level, format and sink to
// the global zerolog logger. Verbosity flags override the configured
// level: 0 keeps it, 1 forces info, 2+ forces debug.
func configureLogging(cfg config.LogConfig, verbose bool, verbosity int) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	switch {
	case verbose || verbosity >= 2:
		level = zerolog.DebugLevel
	case verbosity == 1 && level > zerolog.InfoLevel:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var sink *os.File
	switch cfg.File {
	case "":
		sink = os.Stderr
	default:
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			sink = os.Stderr
			log.Warn().Err(err).Str("file", cfg.File).Msg("could not open log file, using stderr")
		} else {
			sink = f
		}
	}

	if cfg.Format == "json" {
		log.Logger = zerolog.New(sink).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: sink}).With().Timestamp().Logger()
	}
}

// currentConfig holds the configuration loaded by the root command's
// PersistentPreRun for use by subcommands.
var currentConfig config.Config = config.DefaultConfig()

func setCurrentConfig(cfg config.Config) { currentConfig = cfg }

// Config returns the configuration loaded for this invocation.
func Config() config.Config { return currentConfig }
