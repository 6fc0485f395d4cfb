package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cast"

	"github.com/reportd/reportd/pkg/report"
)

func init() {
	report.Register("summary", func() report.Generator { return &SummaryGenerator{} })
}

// SummaryGenerator aggregates a numeric series into descriptive
// statistics, emitted as a CSV table and a plain-text digest.
type SummaryGenerator struct{}

func (g *SummaryGenerator) Metadata() report.Metadata {
	return report.Metadata{
		ID:          "summary",
		Name:        "Summary Statistics",
		Description: "Count, sum, min, max and mean over a numeric series",
		Version:     "1.0.0",
	}
}

func (g *SummaryGenerator) ValidateParameters(args map[string]any) []report.ValidationError {
	values, ok := args["values"]
	if !ok {
		return []report.ValidationError{{Field: "values", Message: "is required"}}
	}

	series, err := cast.ToSliceE(values)
	if err != nil {
		return []report.ValidationError{{Field: "values", Message: "must be a list of numbers"}}
	}
	if len(series) == 0 {
		return []report.ValidationError{{Field: "values", Message: "must not be empty"}}
	}

	var errs []report.ValidationError
	for i, v := range series {
		if !report.Numeric(v) {
			errs = append(errs, report.ValidationError{
				Field:   "values",
				Message: fmt.Sprintf("element %d is not numeric: %v", i, v),
			})
		}
	}
	return errs
}

func (g *SummaryGenerator) Generate(ctx context.Context, args map[string]any, progress report.Progress, cancel <-chan struct{}) ([]report.Output, error) {
	series, err := cast.ToSliceE(args["values"])
	if err != nil {
		return nil, fmt.Errorf("read values: %w", err)
	}
	title := report.StringArg(args, "title", "Summary")

	progress(10, "aggregating")

	var sum float64
	min, max := cast.ToFloat64(series[0]), cast.ToFloat64(series[0])
	for i, v := range series {
		if i%1000 == 0 {
			select {
			case <-cancel:
				return nil, report.ErrCancelled
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		f := cast.ToFloat64(v)
		sum += f
		if f < min {
			min = f
		}
		if f > max {
			max = f
		}
	}
	mean := sum / float64(len(series))

	progress(60, "rendering csv")

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	rows := [][]string{
		{"metric", "value"},
		{"count", strconv.Itoa(len(series))},
		{"sum", formatFloat(sum)},
		{"min", formatFloat(min)},
		{"max", formatFloat(max)},
		{"mean", formatFloat(mean)},
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("render csv: %w", err)
	}

	progress(85, "rendering digest")

	digest := fmt.Sprintf("%s\n\ncount: %d\nsum:   %s\nmin:   %s\nmax:   %s\nmean:  %s\n",
		title, len(series), formatFloat(sum), formatFloat(min), formatFloat(max), formatFloat(mean))

	return []report.Output{
		{Filename: "summary.csv", Data: buf.Bytes(), ContentType: "text/csv"},
		{Filename: "summary.txt", Data: []byte(digest), ContentType: "text/plain"},
	}, nil
}

func (g *SummaryGenerator) EstimatedDuration(args map[string]any) time.Duration {
	series, err := cast.ToSliceE(args["values"])
	if err != nil {
		return time.Second
	}
	// Rough linear estimate, floored at one second.
	est := time.Duration(len(series)) * time.Microsecond
	if est < time.Second {
		return time.Second
	}
	return est
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
