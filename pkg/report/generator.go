// Package report defines the generator capability contract the
// executor runs, and the registry that resolves a report identifier to
// a generator factory.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCancelled is returned by a generator that observed the cancel
// signal at one of its checkpoints and stopped. The executor maps it
// to a cancelled job rather than a failed one.
var ErrCancelled = errors.New("report generation cancelled")

// Progress is the callback a generator invokes at its own checkpoints.
// Percent is clamped into [0,100] downstream; step is a short
// human-readable label for the current phase.
type Progress func(percent int, step string)

// Output is one produced artifact: a filename, its raw bytes and an
// optional content type. The executor hands outputs to the file store;
// the generator never touches the filesystem itself.
type Output struct {
	Filename    string
	Data        []byte
	ContentType string
}

// ValidationError is one field-level argument problem. Validation
// returns values, never panics; an empty slice means the arguments are
// acceptable.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Metadata holds descriptive information about a generator type.
type Metadata struct {
	ID          string
	Name        string
	Description string
	Version     string
}

// Generator is the pluggable unit of work the executor invokes.
// Implementations must treat the cancel channel as a cooperative stop
// signal: check it at progress checkpoints and return ErrCancelled.
type Generator interface {
	// Metadata returns descriptive information about the generator.
	Metadata() Metadata

	// ValidateParameters checks the argument mapping before any work
	// starts. An empty result means valid.
	ValidateParameters(args map[string]any) []ValidationError

	// Generate produces the report files. It must respect ctx and the
	// cancel channel, and should call progress at natural checkpoints.
	Generate(ctx context.Context, args map[string]any, progress Progress, cancel <-chan struct{}) ([]Output, error)

	// EstimatedDuration returns an advisory runtime estimate used only
	// for client-facing ETAs, never for scheduling.
	EstimatedDuration(args map[string]any) time.Duration
}
