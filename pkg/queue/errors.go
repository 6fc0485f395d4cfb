package queue

import (
	"errors"
	"fmt"
)

// FullError reports that the queued backlog is at the configured
// bound. Submission is rejected before any state is committed.
type FullError struct {
	Limit int
}

func (e *FullError) Error() string {
	return fmt.Sprintf("queue full: limit of %d queued jobs reached", e.Limit)
}

// NotFoundError reports an unknown job id.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job %s not found", e.JobID)
}

// DuplicateError reports an attempt to enqueue an id that is already
// registered.
type DuplicateError struct {
	JobID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("job %s already enqueued", e.JobID)
}

// IsFull checks if the error is a FullError.
func IsFull(err error) bool {
	var target *FullError
	return errors.As(err, &target)
}

// IsNotFound checks if the error is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}
