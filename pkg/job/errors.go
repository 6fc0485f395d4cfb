package job

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a job failure for the audit trail. Timeout and
// cancelled are kept distinct so system-initiated termination can be
// told apart from caller-initiated termination.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindResource   ErrorKind = "resource"
	KindTimeout    ErrorKind = "timeout"
	KindCancelled  ErrorKind = "cancelled"
	KindInternal   ErrorKind = "internal"
)

// Error is the failure detail attached to a job. It is set exactly
// once, when the owning worker finalizes a failed or cancelled run.
type Error struct {
	Kind      ErrorKind      `json:"kind"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	Retryable bool           `json:"retryable"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// InvalidTransitionError reports an attempted illegal state-machine
// edge. The job's status is unchanged when this is returned.
type InvalidTransitionError struct {
	JobID string
	From  Status
	To    Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("job %s: invalid transition %s -> %s", e.JobID, e.From, e.To)
}

// IsInvalidTransition checks if the error is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}
