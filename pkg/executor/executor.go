// Package executor drives queued jobs through report generators with a
// fixed pool of polling workers. Each claimed job runs inside a
// supervised goroutine under a per-job timeout; cancellation is
// cooperative through a per-job channel the generator must observe.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reportd/reportd/pkg/filestore"
	"github.com/reportd/reportd/pkg/job"
	"github.com/reportd/reportd/pkg/queue"
	"github.com/reportd/reportd/pkg/report"
)

// Default pool settings.
const (
	DefaultWorkers     = 4
	DefaultPollTimeout = 1 * time.Second
	DefaultJobTimeout  = 10 * time.Minute
)

// Config holds the worker pool settings.
type Config struct {
	// Workers is the fixed pool size; it never grows under load.
	Workers int

	// PollTimeout bounds how long an idle worker blocks on the queue
	// before re-checking for shutdown.
	PollTimeout time.Duration

	// DefaultJobTimeout applies to jobs submitted without an explicit
	// timeout.
	DefaultJobTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.DefaultJobTimeout <= 0 {
		c.DefaultJobTimeout = DefaultJobTimeout
	}
}

// Executor owns the worker pool. Workers poll the queue, claim jobs
// one at a time and drive them to a terminal status.
type Executor struct {
	cfg      Config
	queue    *queue.Queue
	store    *filestore.Store
	registry *report.Registry
	monitor  *Monitor
	logger   zerolog.Logger

	mu      sync.Mutex
	cancels map[string]chan struct{}

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// New creates an executor over the given queue, store and generator
// registry. Start must be called before any job is picked up.
func New(q *queue.Queue, store *filestore.Store, registry *report.Registry, cfg Config) *Executor {
	cfg.applyDefaults()
	return &Executor{
		cfg:      cfg,
		queue:    q,
		store:    store,
		registry: registry,
		monitor:  NewMonitor(),
		logger:   log.With().Str("component", "executor").Logger(),
		cancels:  make(map[string]chan struct{}),
		stop:     make(chan struct{}),
	}
}

// Start launches the worker pool.
func (e *Executor) Start() {
	e.logger.Info().Int("workers", e.cfg.Workers).Msg("starting worker pool")
	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
}

// Shutdown stops claiming new jobs, signals a cooperative cancel to
// every running job and waits up to drainTimeout for the workers to
// exit. Jobs still queued stay queued.
func (e *Executor) Shutdown(drainTimeout time.Duration) error {
	e.once.Do(func() { close(e.stop) })

	e.mu.Lock()
	for id, ch := range e.cancels {
		delete(e.cancels, id)
		close(ch)
		e.logger.Info().Str("job_id", id).Msg("cancelling running job for shutdown")
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info().Msg("worker pool drained")
		return nil
	case <-time.After(drainTimeout):
		return fmt.Errorf("worker pool did not drain within %s", drainTimeout)
	}
}

// Handle is returned from Submit; it identifies the accepted job and
// carries its cancellation entry point.
type Handle struct {
	ID   string
	exec *Executor
}

// Cancel requests cancellation of the handle's job.
func (h *Handle) Cancel() error {
	return h.exec.Cancel(h.ID)
}

// Status returns the current snapshot of the handle's job.
func (h *Handle) Status() (job.Job, bool) {
	return h.exec.queue.Get(h.ID)
}

// Submit enqueues a job for asynchronous execution and returns a
// cancellable handle. The queue propagates FullError under
// backpressure and DuplicateError for a reused id.
func (e *Executor) Submit(j *job.Job) (*Handle, error) {
	if err := e.queue.Enqueue(j); err != nil {
		return nil, err
	}
	return &Handle{ID: j.ID, exec: e}, nil
}

// Running returns how many jobs are currently being driven.
func (e *Executor) Running() int {
	return e.monitor.Active()
}

// Cancel requests cancellation of a job. A queued job is marked
// cancelled immediately and never runs; a running job has its cancel
// channel closed and finalizes once the generator yields.
func (e *Executor) Cancel(id string) error {
	if err := e.queue.UpdateStatus(id, job.StatusCancelled, nil); err != nil {
		return err
	}

	e.mu.Lock()
	ch, running := e.cancels[id]
	if running {
		delete(e.cancels, id)
	}
	e.mu.Unlock()

	if running {
		close(ch)
		e.logger.Info().Str("job_id", id).Msg("cancel signalled to running job")
	} else {
		e.logger.Info().Str("job_id", id).Msg("cancelled queued job")
	}
	return nil
}

func (e *Executor) worker(idx int) {
	defer e.wg.Done()
	logger := e.logger.With().Int("worker", idx).Logger()

	for {
		select {
		case <-e.stop:
			return
		default:
		}

		j, ok := e.queue.Dequeue(e.cfg.PollTimeout)
		if !ok {
			continue
		}
		e.run(logger, j)
	}
}

// run drives one claimed job to a terminal status. Every path out of
// this function leaves the job terminal and the worker free.
func (e *Executor) run(logger zerolog.Logger, j *job.Job) {
	id := j.ID

	// Register the cancel channel before the running transition so a
	// cancel landing right after the claim always finds a live channel
	// to signal.
	cancelCh := make(chan struct{})
	e.mu.Lock()
	e.cancels[id] = cancelCh
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, id)
		e.mu.Unlock()
	}()

	// The claim races a cancel of the still-queued job; losing the
	// race just means dropping the already-terminal record.
	if err := e.queue.UpdateStatus(id, job.StatusRunning, nil); err != nil {
		logger.Debug().Str("job_id", id).Err(err).Msg("claimed job no longer runnable")
		return
	}

	gen, err := e.registry.Resolve(j.ReportID)
	if err != nil {
		e.finalize(id, job.StatusFailed, &job.Error{
			Kind:    job.KindValidation,
			Message: fmt.Sprintf("unknown report type %q", j.ReportID),
		})
		return
	}

	if verrs := gen.ValidateParameters(j.Args); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		ctx := make(map[string]any, len(verrs))
		for i, ve := range verrs {
			msgs[i] = ve.Error()
			ctx[ve.Field] = ve.Message
		}
		e.finalize(id, job.StatusFailed, &job.Error{
			Kind:    job.KindValidation,
			Message: "invalid parameters: " + strings.Join(msgs, "; "),
			Context: ctx,
		})
		return
	}

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultJobTimeout
	}

	logger.Info().Str("job_id", id).Str("report_id", j.ReportID).
		Dur("timeout", timeout).Int("attempt", j.Attempt).Msg("job started")

	e.monitor.Start(id)

	progress := func(percent int, step string) {
		_ = e.queue.Update(id, func(jj *job.Job) {
			jj.SetProgress(percent, step)
		})
	}

	ctx, cancelCtx := context.WithTimeout(context.Background(), timeout)
	defer cancelCtx()

	type result struct {
		outputs []report.Output
		err     error
	}
	resultCh := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- result{err: fmt.Errorf("generator panic: %v", r)}
			}
		}()
		outputs, err := gen.Generate(ctx, j.Args, progress, cancelCh)
		resultCh <- result{outputs: outputs, err: err}
	}()

	select {
	case res := <-resultCh:
		e.settle(logger, j, res.outputs, res.err)

	case <-ctx.Done():
		// The worker is freed immediately; a generator honoring ctx
		// unwinds on its own.
		e.store.DeleteAll(id)
		e.finalize(id, job.StatusFailed, &job.Error{
			Kind:      job.KindTimeout,
			Message:   fmt.Sprintf("job exceeded timeout of %s", timeout),
			Retryable: true,
		})
		logger.Warn().Str("job_id", id).Dur("timeout", timeout).Msg("job timed out")

	case <-cancelCh:
		cancelCtx()
		e.store.DeleteAll(id)
		e.finalizeCancelled(id)
		logger.Info().Str("job_id", id).Msg("job cancelled")
	}
}

// settle handles a generator that returned on its own.
func (e *Executor) settle(logger zerolog.Logger, j *job.Job, outputs []report.Output, genErr error) {
	id := j.ID

	if genErr != nil {
		e.store.DeleteAll(id)
		if errors.Is(genErr, report.ErrCancelled) {
			e.finalizeCancelled(id)
			return
		}
		var jerr *job.Error
		if !errors.As(genErr, &jerr) {
			kind := job.KindInternal
			if errors.Is(genErr, context.DeadlineExceeded) {
				kind = job.KindTimeout
			}
			jerr = &job.Error{
				Kind:      kind,
				Message:   genErr.Error(),
				Retryable: kind == job.KindTimeout,
			}
		}
		e.finalize(id, job.StatusFailed, jerr)
		logger.Warn().Str("job_id", id).Err(genErr).Msg("job failed")
		return
	}

	files := make([]job.File, 0, len(outputs))
	for _, out := range outputs {
		fi, err := e.store.Store(id, out.Filename, out.Data, filestore.StoreOptions{
			ContentType: out.ContentType,
		})
		if err != nil {
			e.store.DeleteAll(id)
			e.finalize(id, job.StatusFailed, &job.Error{
				Kind:      job.KindResource,
				Message:   fmt.Sprintf("storing output %q: %v", out.Filename, err),
				Retryable: filestore.IsQuotaExceeded(err),
			})
			logger.Warn().Str("job_id", id).Str("filename", out.Filename).
				Err(err).Msg("output rejected by storage")
			return
		}
		files = append(files, job.File{
			Filename:      fi.Filename,
			Size:          fi.Size,
			ContentType:   fi.ContentType,
			Checksum:      fi.Checksum,
			CreatedAt:     fi.CreatedAt,
			RetentionDays: fi.RetentionDays,
		})
	}

	res := e.monitor.Stop(id)
	err := e.queue.UpdateStatus(id, job.StatusCompleted, func(jj *job.Job) {
		jj.Files = files
		jj.Resources = res
		jj.SetProgress(100, "done")
	})
	if err != nil {
		// Lost a race with a cancel that landed after the generator
		// finished; the record is already terminal.
		logger.Debug().Str("job_id", id).Err(err).Msg("completion superseded")
		e.store.DeleteAll(id)
		e.stampCancelled(id, res)
		return
	}

	logger.Info().Str("job_id", id).Int("files", len(files)).
		Dur("duration", res.Duration).Msg("job completed")
}

// finalizeCancelled stamps the cancelled outcome on a record that may
// already be cancelled (Cancel moves the status before signalling the
// worker) or may still be running (cooperative return, shutdown).
func (e *Executor) finalizeCancelled(id string) {
	res := e.monitor.Stop(id)
	mutate := func(jj *job.Job) {
		jj.Err = &job.Error{Kind: job.KindCancelled, Message: "cancelled while running"}
		if res != (job.Resources{}) {
			jj.Resources = res
		}
	}
	if err := e.queue.UpdateStatus(id, job.StatusCancelled, mutate); job.IsInvalidTransition(err) {
		_ = e.queue.Update(id, mutate)
	}
}

// stampCancelled backfills the cancelled error detail on a record that
// a concurrent cancel moved to terminal before the worker's own
// finalization could land.
func (e *Executor) stampCancelled(id string, res job.Resources) {
	_ = e.queue.Update(id, func(jj *job.Job) {
		if jj.Status == job.StatusCancelled && jj.Err == nil {
			jj.Err = &job.Error{Kind: job.KindCancelled, Message: "cancelled while running"}
		}
		if res != (job.Resources{}) && jj.Resources == (job.Resources{}) {
			jj.Resources = res
		}
	})
}

// finalize moves a job to a terminal status with error detail,
// attaching the monitor's accounting. A failed transition means a
// concurrent cancel already finalized the record; it still gets its
// cancelled error stamped.
func (e *Executor) finalize(id string, to job.Status, jerr *job.Error) {
	res := e.monitor.Stop(id)
	err := e.queue.UpdateStatus(id, to, func(jj *job.Job) {
		jj.Err = jerr
		if res != (job.Resources{}) {
			jj.Resources = res
		}
	})
	if job.IsInvalidTransition(err) {
		e.stampCancelled(id, res)
	}
}
