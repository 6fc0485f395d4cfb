// Package scheduler is the service facade over the queue, the worker
// pool, the generator registry and the file store. Callers submit
// report requests here and poll here for status and files; nothing
// pushes results back.
package scheduler

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reportd/reportd/pkg/executor"
	"github.com/reportd/reportd/pkg/filestore"
	"github.com/reportd/reportd/pkg/job"
	"github.com/reportd/reportd/pkg/queue"
	"github.com/reportd/reportd/pkg/report"
)

// DefaultRetentionInterval is how often expired files are swept.
const DefaultRetentionInterval = time.Hour

// Config assembles the settings of every subsystem the service owns.
type Config struct {
	QueueSize int
	Executor  executor.Config
	Storage   filestore.Config

	// RetentionInterval is the sweep cadence for expired files. Zero
	// selects the default; negative disables the sweeper.
	RetentionInterval time.Duration
}

// Option customizes service construction.
type Option func(*Service)

// WithRegistry overrides the default generator registry.
func WithRegistry(r *report.Registry) Option {
	return func(s *Service) { s.registry = r }
}

// Service owns the subsystems and exposes the polling API.
type Service struct {
	queue    *queue.Queue
	store    *filestore.Store
	exec     *executor.Executor
	registry *report.Registry
	logger   zerolog.Logger

	workers           int
	retentionInterval time.Duration

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// New assembles a service. Start must be called before submitted jobs
// make progress.
func New(cfg Config, opts ...Option) (*Service, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = queue.DefaultMaxSize
	}

	store, err := filestore.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}

	s := &Service{
		queue:             queue.New(cfg.QueueSize),
		store:             store,
		registry:          report.Default(),
		logger:            log.With().Str("component", "scheduler").Logger(),
		retentionInterval: cfg.RetentionInterval,
		stop:              make(chan struct{}),
	}
	if s.retentionInterval == 0 {
		s.retentionInterval = DefaultRetentionInterval
	}
	for _, opt := range opts {
		opt(s)
	}

	s.exec = executor.New(s.queue, s.store, s.registry, cfg.Executor)
	s.workers = cfg.Executor.Workers
	if s.workers <= 0 {
		s.workers = executor.DefaultWorkers
	}
	return s, nil
}

// Start launches the worker pool and the retention sweeper.
func (s *Service) Start() {
	s.exec.Start()
	if s.retentionInterval > 0 {
		s.wg.Add(1)
		go s.retentionLoop()
	}
	s.logger.Info().Int("workers", s.workers).Msg("service started")
}

// Stop cancels running jobs, drains the worker pool and stops the
// sweeper.
func (s *Service) Stop(drainTimeout time.Duration) error {
	s.once.Do(func() { close(s.stop) })
	err := s.exec.Shutdown(drainTimeout)
	s.wg.Wait()
	s.logger.Info().Msg("service stopped")
	return err
}

func (s *Service) retentionLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.retentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if expired := s.store.ExpireRetained(false); len(expired) > 0 {
				s.logger.Info().Int("files", len(expired)).Msg("retention sweep removed expired files")
			}
		}
	}
}

// SubmitRequest describes one report job to run.
type SubmitRequest struct {
	Name      string
	ReportID  string
	Args      map[string]any
	Submitter string
	Priority  int
	Timeout   time.Duration
}

// Receipt is returned from a successful submission. ETA is advisory,
// derived from the generator's estimate and the backlog ahead.
type Receipt struct {
	JobID    string        `json:"job_id"`
	Status   job.Status    `json:"status"`
	Position int           `json:"position"`
	ETA      time.Duration `json:"eta"`
}

// SubmitJob validates the request against its generator, enqueues a
// new job and returns its receipt. A full queue surfaces as
// queue.FullError; the caller backs off and resubmits.
func (s *Service) SubmitJob(req SubmitRequest) (*Receipt, error) {
	gen, err := s.registry.Resolve(req.ReportID)
	if err != nil {
		return nil, err
	}
	if verrs := gen.ValidateParameters(req.Args); len(verrs) > 0 {
		return nil, &InvalidParametersError{ReportID: req.ReportID, Fields: verrs}
	}

	j := job.New(uuid.NewString(), req.Name, req.ReportID, req.Args, req.Submitter, req.Priority, req.Timeout)
	if err := s.queue.Enqueue(j); err != nil {
		return nil, err
	}

	position, _ := s.queue.Position(j.ID)
	receipt := &Receipt{
		JobID:    j.ID,
		Status:   job.StatusQueued,
		Position: position,
		ETA:      s.estimate(gen.EstimatedDuration(req.Args), position),
	}

	s.logger.Info().Str("job_id", j.ID).Str("report_id", req.ReportID).
		Str("submitter", req.Submitter).Int("position", position).Msg("job submitted")
	return receipt, nil
}

// estimate scales a single-run estimate by how many dispatch rounds
// precede this queue position given the pool size.
func (s *Service) estimate(single time.Duration, position int) time.Duration {
	if position < 1 {
		position = 1
	}
	rounds := (position + s.workers - 1) / s.workers
	return single * time.Duration(rounds)
}

// GetStatus returns a snapshot of the job record.
func (s *Service) GetStatus(id string) (job.Job, error) {
	j, ok := s.queue.Get(id)
	if !ok {
		return job.Job{}, &queue.NotFoundError{JobID: id}
	}
	return j, nil
}

// ListJobs returns snapshots of every tracked job record.
func (s *Service) ListJobs() []job.Job {
	return s.queue.Jobs()
}

// ListFiles returns the stored outputs of a completed job. Jobs in any
// other state surface FilesNotReadyError.
func (s *Service) ListFiles(id string) ([]filestore.FileInfo, error) {
	j, ok := s.queue.Get(id)
	if !ok {
		return nil, &queue.NotFoundError{JobID: id}
	}
	if j.Status != job.StatusCompleted {
		return nil, &FilesNotReadyError{JobID: id, Status: j.Status}
	}
	return s.store.List(id), nil
}

// OpenFile returns a streaming reader over [start, end) of one stored
// output of a completed job. end == 0 reads to EOF. The filename is
// sanitized before any lookup touches storage.
func (s *Service) OpenFile(id, filename string, start, end int64) (io.ReadCloser, *filestore.FileInfo, error) {
	j, ok := s.queue.Get(id)
	if !ok {
		return nil, nil, &queue.NotFoundError{JobID: id}
	}
	if j.Status != job.StatusCompleted {
		return nil, nil, &FilesNotReadyError{JobID: id, Status: j.Status}
	}
	return s.store.Open(id, filename, start, end)
}

// ReadFile returns the full contents of one stored output of a
// completed job.
func (s *Service) ReadFile(id, filename string) ([]byte, error) {
	j, ok := s.queue.Get(id)
	if !ok {
		return nil, &queue.NotFoundError{JobID: id}
	}
	if j.Status != job.StatusCompleted {
		return nil, &FilesNotReadyError{JobID: id, Status: j.Status}
	}
	return s.store.Read(id, filename)
}

// CancelJob cancels a queued or running job.
func (s *Service) CancelJob(id string) error {
	return s.exec.Cancel(id)
}

// DeleteJob reaps a terminal job record along with its stored files.
// Queued, running and paused jobs must be cancelled first.
func (s *Service) DeleteJob(id string) error {
	j, ok := s.queue.Get(id)
	if !ok {
		return &queue.NotFoundError{JobID: id}
	}
	if !j.Status.IsTerminal() {
		return &NotTerminalError{JobID: id, Status: j.Status}
	}

	removed := s.store.DeleteAll(id)
	s.queue.Remove(id)
	s.logger.Info().Str("job_id", id).Int("files", removed).Msg("job record deleted")
	return nil
}

// RetryJob resubmits a failed job as a fresh record carrying the next
// attempt number. The failed record is kept for audit until deleted.
func (s *Service) RetryJob(id string) (*Receipt, error) {
	j, ok := s.queue.Get(id)
	if !ok {
		return nil, &queue.NotFoundError{JobID: id}
	}
	if j.Status != job.StatusFailed {
		return nil, &NotRetryableError{JobID: id, Status: j.Status}
	}

	retry := j.NewRetry(uuid.NewString())
	if err := s.queue.Enqueue(retry); err != nil {
		return nil, err
	}

	position, _ := s.queue.Position(retry.ID)
	single := time.Second
	if gen, err := s.registry.Resolve(retry.ReportID); err == nil {
		single = gen.EstimatedDuration(retry.Args)
	}

	s.logger.Info().Str("job_id", retry.ID).Str("retry_of", id).
		Int("attempt", retry.Attempt).Msg("job resubmitted")
	return &Receipt{
		JobID:    retry.ID,
		Status:   job.StatusQueued,
		Position: position,
		ETA:      s.estimate(single, position),
	}, nil
}

// Stats is a point-in-time view of the whole service.
type Stats struct {
	Queued   int             `json:"queued"`
	Running  int             `json:"running"`
	Tracked  int             `json:"tracked"`
	Workers  int             `json:"workers"`
	ByStatus map[string]int  `json:"by_status"`
	Storage  filestore.Usage `json:"storage"`
}

// Stats reports queue depth, pool occupancy and storage usage.
func (s *Service) Stats() Stats {
	byStatus := make(map[string]int)
	for _, j := range s.queue.Jobs() {
		byStatus[j.Status.String()]++
	}
	return Stats{
		Queued:   s.queue.Size(),
		Running:  s.exec.Running(),
		Tracked:  s.queue.Len(),
		Workers:  s.workers,
		ByStatus: byStatus,
		Storage:  s.store.Usage(),
	}
}

// Generators lists the metadata of every registered generator.
func (s *Service) Generators() []report.Metadata {
	return s.registry.List()
}

// SweepRetention runs one retention pass immediately. With dryRun set
// it only reports what would be removed.
func (s *Service) SweepRetention(dryRun bool) []filestore.ExpiredFile {
	return s.store.ExpireRetained(dryRun)
}

// Store exposes the underlying file store for operational tooling.
func (s *Service) Store() *filestore.Store {
	return s.store
}
