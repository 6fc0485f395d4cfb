// Package reports ships the builtin report generators. Each generator
// registers itself with the default registry at init time, the same
// way external generator packages are expected to.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/reportd/reportd/pkg/report"
)

func init() {
	report.Register("mock", func() report.Generator { return &MockGenerator{} })
}

// MockGenerator produces a small deterministic text file after an
// optional configurable delay. It exists for smoke tests, load drills
// and demos; the delay makes timeout and cancellation behavior easy to
// exercise end to end.
type MockGenerator struct{}

func (g *MockGenerator) Metadata() report.Metadata {
	return report.Metadata{
		ID:          "mock",
		Name:        "Mock Report",
		Description: "Deterministic test report with configurable delay",
		Version:     "1.0.0",
	}
}

func (g *MockGenerator) ValidateParameters(args map[string]any) []report.ValidationError {
	var errs []report.ValidationError
	if v, ok := args["delay"]; ok {
		if d := report.DurationArg(args, "delay", -1); d < 0 {
			errs = append(errs, report.ValidationError{
				Field:   "delay",
				Message: fmt.Sprintf("not a valid duration: %v", v),
			})
		}
	}
	if v, ok := args["fail"]; ok {
		if _, isBool := v.(bool); !isBool {
			errs = append(errs, report.ValidationError{Field: "fail", Message: "must be a boolean"})
		}
	}
	return errs
}

func (g *MockGenerator) Generate(ctx context.Context, args map[string]any, progress report.Progress, cancel <-chan struct{}) ([]report.Output, error) {
	delay := report.DurationArg(args, "delay", 0)
	steps := 4

	progress(0, "starting")
	for i := 1; i <= steps; i++ {
		if delay > 0 {
			select {
			case <-time.After(delay / time.Duration(steps)):
			case <-cancel:
				return nil, report.ErrCancelled
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		} else {
			select {
			case <-cancel:
				return nil, report.ErrCancelled
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		progress(i*100/steps, fmt.Sprintf("step %d of %d", i, steps))
	}

	if report.BoolArg(args, "fail", false) {
		return nil, fmt.Errorf("mock report failed as requested")
	}

	body := fmt.Sprintf("mock report generated at %s\nlabel: %s\n",
		time.Now().UTC().Format(time.RFC3339),
		report.StringArg(args, "label", "default"))

	return []report.Output{{
		Filename:    "mock-report.txt",
		Data:        []byte(body),
		ContentType: "text/plain",
	}}, nil
}

func (g *MockGenerator) EstimatedDuration(args map[string]any) time.Duration {
	if d := report.DurationArg(args, "delay", 0); d > 0 {
		return d
	}
	return time.Second
}
