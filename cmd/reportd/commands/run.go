package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/reportd/reportd/cmd/reportd/internal/format"
	"github.com/reportd/reportd/pkg/job"
	"github.com/reportd/reportd/pkg/scheduler"
)

// NewRunCommand constructs the one-shot run command: submit a single
// job, wait for it, and copy its outputs out of the store.
func NewRunCommand() *cobra.Command {
	var (
		name      string
		argPairs  []string
		argsFile  string
		timeout   time.Duration
		priority  int
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "run <report-id>",
		Short: "Run a single report job and wait for its outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			formatter := format.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
			reportID := posArgs[0]

			jobArgs, err := collectArgs(argsFile, argPairs)
			if err != nil {
				return err
			}

			svc, err := scheduler.New(Config().SchedulerConfig())
			if err != nil {
				return fmt.Errorf("initialize service: %w", err)
			}
			svc.Start()
			defer func() { _ = svc.Stop(5 * time.Second) }()

			if name == "" {
				name = reportID
			}
			receipt, err := svc.SubmitJob(scheduler.SubmitRequest{
				Name:     name,
				ReportID: reportID,
				Args:     jobArgs,
				Priority: priority,
				Timeout:  timeout,
			})
			if err != nil {
				formatter.Errorf("submit: %v", err)
				return err
			}
			formatter.Dimf("job %s submitted (eta %s)", receipt.JobID, receipt.ETA)

			final, err := waitForJob(svc, receipt.JobID, formatter)
			if err != nil {
				return err
			}
			formatter.JobSummary(final)

			if final.Status != job.StatusCompleted {
				return fmt.Errorf("job finished %s", final.Status)
			}
			if outputDir != "" {
				return copyOutputs(svc, final, outputDir, formatter)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Job name (defaults to the report id)")
	cmd.Flags().StringArrayVar(&argPairs, "arg", nil, "Report argument as key=value (repeatable)")
	cmd.Flags().StringVar(&argsFile, "args-file", "", "YAML or JSON file with report arguments")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-job timeout (0 uses the configured default)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Job priority 1-10 (0 uses the default)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory to copy the generated files into")
	return cmd
}

// collectArgs merges an optional args file with key=value pairs, the
// pairs winning. Pair values parse as YAML scalars so numbers and
// booleans keep their types.
func collectArgs(argsFile string, pairs []string) (map[string]any, error) {
	args := make(map[string]any)

	if argsFile != "" {
		data, err := os.ReadFile(argsFile)
		if err != nil {
			return nil, fmt.Errorf("read args file: %w", err)
		}
		if err := yaml.Unmarshal(data, &args); err != nil {
			return nil, fmt.Errorf("parse args file: %w", err)
		}
	}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("argument %q is not key=value", pair)
		}
		var parsed any
		if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
			parsed = value
		}
		args[key] = parsed
	}

	if len(args) == 0 {
		return nil, nil
	}
	return args, nil
}

func waitForJob(svc *scheduler.Service, id string, formatter *format.Formatter) (job.Job, error) {
	lastProgress := -1
	for {
		j, err := svc.GetStatus(id)
		if err != nil {
			return job.Job{}, err
		}
		if j.Progress != lastProgress && j.Status == job.StatusRunning {
			formatter.Progress(j.Progress, j.Step)
			lastProgress = j.Progress
		}
		if j.Status.IsTerminal() {
			return j, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func copyOutputs(svc *scheduler.Service, j job.Job, dir string, formatter *format.Formatter) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for _, f := range j.Files {
		data, err := svc.ReadFile(j.ID, f.Filename)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.Filename, err)
		}
		dest := filepath.Join(dir, f.Filename)
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", dest, err)
		}
		formatter.Dimf("wrote %s (%s)", dest, format.FormatBytes(f.Size))
	}
	return nil
}
