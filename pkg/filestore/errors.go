package filestore

import (
	"errors"
	"fmt"
)

// NotFoundError reports a missing job namespace or file.
type NotFoundError struct {
	JobID    string
	Filename string
}

func (e *NotFoundError) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("no stored files for job %s", e.JobID)
	}
	return fmt.Sprintf("file %q not found for job %s", e.Filename, e.JobID)
}

// InvalidFilenameError reports a filename rejected by sanitization.
// No filesystem path is ever derived from a rejected name.
type InvalidFilenameError struct {
	Filename string
	Reason   string
}

func (e *InvalidFilenameError) Error() string {
	return fmt.Sprintf("invalid filename %q: %s", e.Filename, e.Reason)
}

// QuotaExceededError reports that a store would push usage past a
// configured ceiling. Resource is "bytes" or "files".
type QuotaExceededError struct {
	Resource  string
	Used      int64
	Limit     int64
	Requested int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("storage quota exceeded: %s used %d of %d, requested %d more",
		e.Resource, e.Used, e.Limit, e.Requested)
}

// AlreadyExistsError reports a filename collision within a job's
// namespace. Filenames uniquely identify a file per job; outputs are
// never silently overwritten.
type AlreadyExistsError struct {
	JobID    string
	Filename string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("file %q already stored for job %s", e.Filename, e.JobID)
}

// IsNotFound checks if the error is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsInvalidFilename checks if the error is an InvalidFilenameError.
func IsInvalidFilename(err error) bool {
	var target *InvalidFilenameError
	return errors.As(err, &target)
}

// IsQuotaExceeded checks if the error is a QuotaExceededError.
func IsQuotaExceeded(err error) bool {
	var target *QuotaExceededError
	return errors.As(err, &target)
}

// IsAlreadyExists checks if the error is an AlreadyExistsError.
func IsAlreadyExists(err error) bool {
	var target *AlreadyExistsError
	return errors.As(err, &target)
}
