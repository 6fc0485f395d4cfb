package scheduler

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reportd/reportd/pkg/executor"
	"github.com/reportd/reportd/pkg/filestore"
	"github.com/reportd/reportd/pkg/job"
	"github.com/reportd/reportd/pkg/queue"
	"github.com/reportd/reportd/pkg/report"
	_ "github.com/reportd/reportd/pkg/reports"
)

type testGenerator struct {
	estimate time.Duration
	validate func(args map[string]any) []report.ValidationError
	generate func(ctx context.Context, args map[string]any, progress report.Progress, cancel <-chan struct{}) ([]report.Output, error)
}

func (g *testGenerator) Metadata() report.Metadata {
	return report.Metadata{ID: "test", Name: "Test"}
}

func (g *testGenerator) ValidateParameters(args map[string]any) []report.ValidationError {
	if g.validate == nil {
		return nil
	}
	return g.validate(args)
}

func (g *testGenerator) Generate(ctx context.Context, args map[string]any, progress report.Progress, cancel <-chan struct{}) ([]report.Output, error) {
	return g.generate(ctx, args, progress, cancel)
}

func (g *testGenerator) EstimatedDuration(map[string]any) time.Duration {
	if g.estimate > 0 {
		return g.estimate
	}
	return time.Second
}

func newService(t *testing.T, cfg Config, opts ...Option) *Service {
	t.Helper()
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = t.TempDir()
	}
	if cfg.Executor.PollTimeout == 0 {
		cfg.Executor.PollTimeout = 20 * time.Millisecond
	}
	if cfg.RetentionInterval == 0 {
		cfg.RetentionInterval = -1
	}
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	s.Start()
	t.Cleanup(func() { _ = s.Stop(2 * time.Second) })
	return s
}

func waitStatus(t *testing.T, s *Service, id string, want job.Status) job.Job {
	t.Helper()
	var got job.Job
	require.Eventually(t, func() bool {
		j, err := s.GetStatus(id)
		if err != nil {
			return false
		}
		got = j
		return j.Status == want
	}, 5*time.Second, 5*time.Millisecond)
	return got
}

func TestSubmitMockJobLifecycle(t *testing.T) {
	s := newService(t, Config{Executor: executor.Config{Workers: 1}})

	receipt, err := s.SubmitJob(SubmitRequest{
		Name:      "smoke",
		ReportID:  "mock",
		Args:      map[string]any{"label": "lifecycle"},
		Submitter: "alice",
	})
	require.NoError(t, err)
	require.NotEmpty(t, receipt.JobID)
	require.Equal(t, job.StatusQueued, receipt.Status)
	require.Positive(t, receipt.ETA)

	got := waitStatus(t, s, receipt.JobID, job.StatusCompleted)
	require.Equal(t, 100, got.Progress)
	require.Len(t, got.Files, 1)

	files, err := s.ListFiles(receipt.JobID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "mock-report.txt", files[0].Filename)

	data, err := s.ReadFile(receipt.JobID, "mock-report.txt")
	require.NoError(t, err)
	require.Contains(t, string(data), "label: lifecycle")
}

func TestSubmitUnknownReportType(t *testing.T) {
	s := newService(t, Config{Executor: executor.Config{Workers: 1}})

	_, err := s.SubmitJob(SubmitRequest{ReportID: "no-such-report"})
	require.True(t, report.IsNotRegistered(err))
}

func TestSubmitRejectsInvalidParameters(t *testing.T) {
	registry := report.NewRegistry()
	registry.Register("strict", func() report.Generator {
		return &testGenerator{
			validate: func(map[string]any) []report.ValidationError {
				return []report.ValidationError{{Field: "month", Message: "is required"}}
			},
		}
	})
	s := newService(t, Config{Executor: executor.Config{Workers: 1}}, WithRegistry(registry))

	_, err := s.SubmitJob(SubmitRequest{ReportID: "strict"})
	require.True(t, IsInvalidParameters(err))

	// The field-level detail survives on the typed error.
	var verr *InvalidParametersError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "strict", verr.ReportID)
	require.Len(t, verr.Fields, 1)
	require.Equal(t, "month", verr.Fields[0].Field)
	require.ErrorContains(t, err, "month")

	require.Zero(t, s.Stats().Tracked)
}

func TestQueueFullBackpressure(t *testing.T) {
	release := make(chan struct{})
	registry := report.NewRegistry()
	registry.Register("gate", func() report.Generator {
		return &testGenerator{
			generate: func(context.Context, map[string]any, report.Progress, <-chan struct{}) ([]report.Output, error) {
				<-release
				return nil, nil
			},
		}
	})

	s := newService(t, Config{QueueSize: 2, Executor: executor.Config{Workers: 1}}, WithRegistry(registry))

	// One job occupies the worker, two fill the queue.
	first, err := s.SubmitJob(SubmitRequest{ReportID: "gate"})
	require.NoError(t, err)
	waitStatus(t, s, first.JobID, job.StatusRunning)

	var receipts []*Receipt
	for i := 0; i < 2; i++ {
		r, err := s.SubmitJob(SubmitRequest{ReportID: "gate"})
		require.NoError(t, err)
		receipts = append(receipts, r)
	}
	require.Equal(t, 1, receipts[0].Position)
	require.Equal(t, 2, receipts[1].Position)

	_, err = s.SubmitJob(SubmitRequest{ReportID: "gate"})
	require.True(t, queue.IsFull(err))

	// Draining frees a slot; the same submission then succeeds.
	close(release)
	waitStatus(t, s, receipts[1].JobID, job.StatusCompleted)

	_, err = s.SubmitJob(SubmitRequest{ReportID: "gate"})
	require.NoError(t, err)
}

func TestCancelQueuedJobNeverInvokesGenerator(t *testing.T) {
	var invoked atomic.Int32
	release := make(chan struct{})
	registry := report.NewRegistry()
	registry.Register("gate", func() report.Generator {
		return &testGenerator{
			generate: func(_ context.Context, args map[string]any, _ report.Progress, _ <-chan struct{}) ([]report.Output, error) {
				if args["tracked"] == true {
					invoked.Add(1)
				}
				<-release
				return nil, nil
			},
		}
	})

	s := newService(t, Config{Executor: executor.Config{Workers: 1}}, WithRegistry(registry))

	blocker, err := s.SubmitJob(SubmitRequest{ReportID: "gate"})
	require.NoError(t, err)
	waitStatus(t, s, blocker.JobID, job.StatusRunning)

	victim, err := s.SubmitJob(SubmitRequest{ReportID: "gate", Args: map[string]any{"tracked": true}})
	require.NoError(t, err)
	require.NoError(t, s.CancelJob(victim.JobID))

	got, err := s.GetStatus(victim.JobID)
	require.NoError(t, err)
	require.Equal(t, job.StatusCancelled, got.Status)

	close(release)
	waitStatus(t, s, blocker.JobID, job.StatusCompleted)
	require.Zero(t, invoked.Load())
}

func TestCancelRunningJob(t *testing.T) {
	started := make(chan struct{})
	registry := report.NewRegistry()
	registry.Register("blocker", func() report.Generator {
		return &testGenerator{
			generate: func(ctx context.Context, _ map[string]any, _ report.Progress, cancel <-chan struct{}) ([]report.Output, error) {
				close(started)
				select {
				case <-cancel:
					return nil, report.ErrCancelled
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			},
		}
	})

	s := newService(t, Config{Executor: executor.Config{Workers: 1}}, WithRegistry(registry))

	receipt, err := s.SubmitJob(SubmitRequest{ReportID: "blocker"})
	require.NoError(t, err)
	<-started

	require.NoError(t, s.CancelJob(receipt.JobID))
	waitStatus(t, s, receipt.JobID, job.StatusCancelled)
}

func TestFileAccessGating(t *testing.T) {
	release := make(chan struct{})
	registry := report.NewRegistry()
	registry.Register("gate", func() report.Generator {
		return &testGenerator{
			generate: func(context.Context, map[string]any, report.Progress, <-chan struct{}) ([]report.Output, error) {
				<-release
				return []report.Output{{Filename: "out.txt", Data: []byte("payload")}}, nil
			},
		}
	})

	s := newService(t, Config{Executor: executor.Config{Workers: 1}}, WithRegistry(registry))

	receipt, err := s.SubmitJob(SubmitRequest{ReportID: "gate"})
	require.NoError(t, err)
	waitStatus(t, s, receipt.JobID, job.StatusRunning)

	// Files are gated until the job completes.
	_, err = s.ListFiles(receipt.JobID)
	require.True(t, IsFilesNotReady(err))
	_, err = s.ReadFile(receipt.JobID, "out.txt")
	require.True(t, IsFilesNotReady(err))

	close(release)
	waitStatus(t, s, receipt.JobID, job.StatusCompleted)

	rc, fi, err := s.OpenFile(receipt.JobID, "out.txt", 0, 3)
	require.NoError(t, err)
	defer rc.Close()
	require.Equal(t, int64(7), fi.Size)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "pay", string(got))
}

func TestFileAccessRejectsTraversal(t *testing.T) {
	s := newService(t, Config{Executor: executor.Config{Workers: 1}})

	receipt, err := s.SubmitJob(SubmitRequest{ReportID: "mock"})
	require.NoError(t, err)
	waitStatus(t, s, receipt.JobID, job.StatusCompleted)

	_, err = s.ReadFile(receipt.JobID, "../../etc/passwd")
	require.True(t, filestore.IsInvalidFilename(err))

	_, _, err = s.OpenFile(receipt.JobID, "..\\secret", 0, 0)
	require.True(t, filestore.IsInvalidFilename(err))
}

func TestUnknownJobLookups(t *testing.T) {
	s := newService(t, Config{Executor: executor.Config{Workers: 1}})

	_, err := s.GetStatus("nope")
	require.True(t, queue.IsNotFound(err))
	_, err = s.ListFiles("nope")
	require.True(t, queue.IsNotFound(err))
	_, err = s.ReadFile("nope", "out.txt")
	require.True(t, queue.IsNotFound(err))
	err = s.CancelJob("nope")
	require.True(t, queue.IsNotFound(err))
	err = s.DeleteJob("nope")
	require.True(t, queue.IsNotFound(err))
	_, err = s.RetryJob("nope")
	require.True(t, queue.IsNotFound(err))
}

func TestDeleteJobTerminalOnly(t *testing.T) {
	release := make(chan struct{})
	registry := report.NewRegistry()
	registry.Register("gate", func() report.Generator {
		return &testGenerator{
			generate: func(context.Context, map[string]any, report.Progress, <-chan struct{}) ([]report.Output, error) {
				<-release
				return []report.Output{{Filename: "out.txt", Data: []byte("x")}}, nil
			},
		}
	})

	s := newService(t, Config{Executor: executor.Config{Workers: 1}}, WithRegistry(registry))

	receipt, err := s.SubmitJob(SubmitRequest{ReportID: "gate"})
	require.NoError(t, err)
	waitStatus(t, s, receipt.JobID, job.StatusRunning)

	err = s.DeleteJob(receipt.JobID)
	require.True(t, IsNotTerminal(err))

	close(release)
	waitStatus(t, s, receipt.JobID, job.StatusCompleted)

	require.NoError(t, s.DeleteJob(receipt.JobID))
	_, err = s.GetStatus(receipt.JobID)
	require.True(t, queue.IsNotFound(err))
	require.Zero(t, s.Store().Usage().UsedFiles)
}

func TestRetryFailedJob(t *testing.T) {
	var attempts atomic.Int32
	registry := report.NewRegistry()
	registry.Register("flaky", func() report.Generator {
		return &testGenerator{
			generate: func(context.Context, map[string]any, report.Progress, <-chan struct{}) ([]report.Output, error) {
				if attempts.Add(1) == 1 {
					return nil, fmt.Errorf("transient failure")
				}
				return []report.Output{{Filename: "ok.txt", Data: []byte("ok")}}, nil
			},
		}
	})

	s := newService(t, Config{Executor: executor.Config{Workers: 1}}, WithRegistry(registry))

	first, err := s.SubmitJob(SubmitRequest{ReportID: "flaky", Name: "flaky-run"})
	require.NoError(t, err)
	failed := waitStatus(t, s, first.JobID, job.StatusFailed)
	require.Equal(t, 1, failed.Attempt)

	// Retry against a non-failed job is rejected.
	_, err = s.RetryJob("nope")
	require.True(t, queue.IsNotFound(err))

	retry, err := s.RetryJob(first.JobID)
	require.NoError(t, err)
	require.NotEqual(t, first.JobID, retry.JobID)

	second := waitStatus(t, s, retry.JobID, job.StatusCompleted)
	require.Equal(t, 2, second.Attempt)
	require.Equal(t, "flaky-run", second.Name)

	// The failed record survives for audit.
	audit, err := s.GetStatus(first.JobID)
	require.NoError(t, err)
	require.Equal(t, job.StatusFailed, audit.Status)

	_, err = s.RetryJob(retry.JobID)
	require.True(t, IsNotRetryable(err))
}

func TestStats(t *testing.T) {
	s := newService(t, Config{Executor: executor.Config{Workers: 3}})

	receipt, err := s.SubmitJob(SubmitRequest{ReportID: "mock"})
	require.NoError(t, err)
	waitStatus(t, s, receipt.JobID, job.StatusCompleted)

	stats := s.Stats()
	require.Equal(t, 3, stats.Workers)
	require.Equal(t, 1, stats.Tracked)
	require.Equal(t, 1, stats.ByStatus["completed"])
	require.Equal(t, 1, stats.Storage.UsedFiles)
	require.Zero(t, stats.Queued)
}

func TestGeneratorsListsBuiltins(t *testing.T) {
	s := newService(t, Config{Executor: executor.Config{Workers: 1}})

	metas := s.Generators()
	ids := make([]string, len(metas))
	for i, m := range metas {
		ids[i] = m.ID
	}
	require.Contains(t, ids, "mock")
	require.Contains(t, ids, "summary")
	require.Contains(t, ids, "statement")
}

func TestSweepRetention(t *testing.T) {
	s := newService(t, Config{Executor: executor.Config{Workers: 1}})

	receipt, err := s.SubmitJob(SubmitRequest{ReportID: "mock"})
	require.NoError(t, err)
	waitStatus(t, s, receipt.JobID, job.StatusCompleted)

	// Fresh files are inside their retention window.
	require.Empty(t, s.SweepRetention(true))
	require.Empty(t, s.SweepRetention(false))
	require.Equal(t, 1, s.Store().Usage().UsedFiles)
}
