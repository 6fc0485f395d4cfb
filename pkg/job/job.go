// Package job defines the job data model shared by the queue, the
// executor and the scheduler façade: the Job record itself, its output
// file metadata, its failure detail and the status state machine.
package job

import (
	"time"
)

// Status represents the lifecycle state of a job.
type Status string

// Valid job statuses.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// String returns the string representation of Status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks if the Status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusPaused, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status indicates the job is finished.
// Failed is terminal for the record itself; a retry creates a fresh
// attempt record rather than reviving this one.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// transitions is the single source of truth for legal status edges.
var transitions = map[Status][]Status{
	StatusQueued:    {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled, StatusPaused},
	StatusPaused:    {StatusRunning, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {StatusQueued},
	StatusCancelled: {},
}

// CanTransition reports whether the edge from -> to is legal.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Priority bounds. Priority is informational only: dispatch order is
// strictly FIFO regardless of the stored value.
const (
	MinPriority     = 1
	MaxPriority     = 10
	DefaultPriority = 5
)

// ClampPriority normalizes a caller-supplied priority into bounds.
// Zero selects the default.
func ClampPriority(p int) int {
	switch {
	case p == 0:
		return DefaultPriority
	case p < MinPriority:
		return MinPriority
	case p > MaxPriority:
		return MaxPriority
	default:
		return p
	}
}

// File describes one output artifact produced by a job. The bytes live
// in the file store; this is metadata only.
type File struct {
	Filename      string    `json:"filename"`
	Size          int64     `json:"size"`
	ContentType   string    `json:"content_type"`
	Checksum      string    `json:"checksum"` // hex SHA-256 of the stored bytes
	CreatedAt     time.Time `json:"created_at"`
	Downloads     int64     `json:"downloads"`
	RetentionDays int       `json:"retention_days"`
}

// Resources holds the advisory resource accounting attached to a job
// when its run finalizes. Values are observational only and never used
// for scheduling or admission decisions.
type Resources struct {
	Duration    time.Duration `json:"duration"`
	MemoryDelta int64         `json:"memory_delta_bytes"`
}

// Job is the unit of work tracked by the queue and driven by exactly
// one executor worker at a time.
//
// Mutation discipline: after creation a Job is mutated only through
// queue.Queue methods (which serialize access) or by the single worker
// that claimed it via Dequeue. Readers obtain copies via Snapshot.
type Job struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	ReportID  string         `json:"report_id"`
	Args      map[string]any `json:"args,omitempty"`
	Submitter string         `json:"submitter,omitempty"`

	// Priority is stored for observability but does not reorder the
	// FIFO queue.
	Priority int `json:"priority"`

	Status   Status `json:"status"`
	Progress int    `json:"progress"` // 0-100, monotone within a run
	Step     string `json:"step,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	QueuedAt    time.Time `json:"queued_at,omitzero"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	CompletedAt time.Time `json:"completed_at,omitzero"`

	Timeout time.Duration `json:"timeout,omitempty"`

	Attempt    int `json:"attempt"`
	MaxRetries int `json:"max_retries,omitempty"`

	Files     []File    `json:"files,omitempty"`
	Err       *Error    `json:"error,omitempty"`
	Resources Resources `json:"resources"`
}

// New creates a job in status queued. The caller supplies the id
// (a UUID in practice) so that the record is immutable on identity.
func New(id, name, reportID string, args map[string]any, submitter string, priority int, timeout time.Duration) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        id,
		Name:      name,
		ReportID:  reportID,
		Args:      args,
		Submitter: submitter,
		Priority:  ClampPriority(priority),
		Status:    StatusQueued,
		CreatedAt: now,
		QueuedAt:  now,
		Timeout:   timeout,
		Attempt:   1,
	}
}

// Transition moves the job along a legal state-machine edge, stamping
// started_at on the first entry into running and completed_at once on
// entering a terminal state. An illegal edge leaves the job untouched
// and returns InvalidTransitionError.
func (j *Job) Transition(to Status) error {
	if !CanTransition(j.Status, to) {
		return &InvalidTransitionError{JobID: j.ID, From: j.Status, To: to}
	}
	j.Status = to
	now := time.Now().UTC()
	if to == StatusRunning && j.StartedAt.IsZero() {
		j.StartedAt = now
	}
	if to.IsTerminal() && j.CompletedAt.IsZero() {
		j.CompletedAt = now
	}
	return nil
}

// SetProgress records a progress checkpoint. Progress is clamped into
// [0,100] and never moves backwards within a run.
func (j *Job) SetProgress(percent int, step string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent > j.Progress {
		j.Progress = percent
	}
	if step != "" {
		j.Step = step
	}
}

// Snapshot returns a copy of the job safe to hand to readers while the
// owning worker keeps mutating the original. Files and Args are copied
// shallowly per entry; Err is copied by value.
func (j *Job) Snapshot() Job {
	cp := *j
	if j.Args != nil {
		cp.Args = make(map[string]any, len(j.Args))
		for k, v := range j.Args {
			cp.Args[k] = v
		}
	}
	if j.Files != nil {
		cp.Files = make([]File, len(j.Files))
		copy(cp.Files, j.Files)
	}
	if j.Err != nil {
		errCp := *j.Err
		cp.Err = &errCp
	}
	return cp
}

// NewRetry creates a fresh attempt record for a failed job. The old
// record keeps its failure detail; history stays append-only.
func (j *Job) NewRetry(id string) *Job {
	retry := New(id, j.Name, j.ReportID, j.Args, j.Submitter, j.Priority, j.Timeout)
	retry.Attempt = j.Attempt + 1
	retry.MaxRetries = j.MaxRetries
	return retry
}
