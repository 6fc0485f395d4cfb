package scheduler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/reportd/reportd/pkg/job"
	"github.com/reportd/reportd/pkg/report"
)

// InvalidParametersError rejects a submission whose arguments failed
// the generator's validation. Fields preserves the per-field detail.
type InvalidParametersError struct {
	ReportID string
	Fields   []report.ValidationError
}

func (e *InvalidParametersError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, ve := range e.Fields {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("invalid parameters for %s: %s", e.ReportID, strings.Join(msgs, "; "))
}

// FilesNotReadyError reports a file listing or download against a job
// that has not completed.
type FilesNotReadyError struct {
	JobID  string
	Status job.Status
}

func (e *FilesNotReadyError) Error() string {
	return fmt.Sprintf("files for job %s not available while %s", e.JobID, e.Status)
}

// NotTerminalError reports a delete against a job that could still
// run.
type NotTerminalError struct {
	JobID  string
	Status job.Status
}

func (e *NotTerminalError) Error() string {
	return fmt.Sprintf("job %s cannot be deleted while %s", e.JobID, e.Status)
}

// NotRetryableError reports a retry against a job that has not failed.
type NotRetryableError struct {
	JobID  string
	Status job.Status
}

func (e *NotRetryableError) Error() string {
	return fmt.Sprintf("job %s cannot be retried while %s", e.JobID, e.Status)
}

// IsInvalidParameters checks if the error is an InvalidParametersError.
func IsInvalidParameters(err error) bool {
	var target *InvalidParametersError
	return errors.As(err, &target)
}

// IsFilesNotReady checks if the error is a FilesNotReadyError.
func IsFilesNotReady(err error) bool {
	var target *FilesNotReadyError
	return errors.As(err, &target)
}

// IsNotTerminal checks if the error is a NotTerminalError.
func IsNotTerminal(err error) bool {
	var target *NotTerminalError
	return errors.As(err, &target)
}

// IsNotRetryable checks if the error is a NotRetryableError.
func IsNotRetryable(err error) bool {
	var target *NotRetryableError
	return errors.As(err, &target)
}
