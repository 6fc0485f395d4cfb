package reports

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reportd/reportd/pkg/report"
)

func noProgress(int, string) {}

func TestBuiltinsRegistered(t *testing.T) {
	for _, id := range []string{"mock", "summary", "statement"} {
		require.True(t, report.Default().Known(id), "generator %q", id)
		gen, err := report.Default().Resolve(id)
		require.NoError(t, err)
		require.Equal(t, id, gen.Metadata().ID)
		require.Positive(t, gen.EstimatedDuration(nil))
	}
}

func TestMockGenerate(t *testing.T) {
	g := &MockGenerator{}
	require.Empty(t, g.ValidateParameters(map[string]any{"delay": "50ms"}))
	require.NotEmpty(t, g.ValidateParameters(map[string]any{"delay": "not-a-duration"}))
	require.NotEmpty(t, g.ValidateParameters(map[string]any{"fail": "yes"}))

	var steps []string
	progress := func(_ int, step string) { steps = append(steps, step) }

	outputs, err := g.Generate(context.Background(), map[string]any{"label": "demo"}, progress, nil)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	require.Equal(t, "mock-report.txt", outputs[0].Filename)
	require.Contains(t, string(outputs[0].Data), "label: demo")
	require.NotEmpty(t, steps)
}

func TestMockGenerateFailure(t *testing.T) {
	g := &MockGenerator{}
	_, err := g.Generate(context.Background(), map[string]any{"fail": true}, noProgress, nil)
	require.Error(t, err)
}

func TestMockGenerateCancelled(t *testing.T) {
	g := &MockGenerator{}
	cancel := make(chan struct{})
	close(cancel)

	_, err := g.Generate(context.Background(), map[string]any{"delay": "10s"}, noProgress, cancel)
	require.ErrorIs(t, err, report.ErrCancelled)
}

func TestSummaryValidate(t *testing.T) {
	g := &SummaryGenerator{}

	tests := []struct {
		name  string
		args  map[string]any
		valid bool
	}{
		{"missing values", map[string]any{}, false},
		{"not a list", map[string]any{"values": "abc"}, false},
		{"empty list", map[string]any{"values": []any{}}, false},
		{"non-numeric element", map[string]any{"values": []any{1, "two", 3}}, false},
		{"ints", map[string]any{"values": []any{1, 2, 3}}, true},
		{"json floats", map[string]any{"values": []any{1.5, 2.25}}, true},
		{"numeric strings", map[string]any{"values": []any{"1", "2"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := g.ValidateParameters(tt.args)
			if tt.valid {
				require.Empty(t, errs)
			} else {
				require.NotEmpty(t, errs)
			}
		})
	}
}

func TestSummaryGenerate(t *testing.T) {
	g := &SummaryGenerator{}
	args := map[string]any{"values": []any{1, 2, 3, 4}, "title": "Quarterly"}

	outputs, err := g.Generate(context.Background(), args, noProgress, nil)
	require.NoError(t, err)
	require.Len(t, outputs, 2)

	csvOut := string(outputs[0].Data)
	require.Equal(t, "summary.csv", outputs[0].Filename)
	require.Contains(t, csvOut, "count,4")
	require.Contains(t, csvOut, "sum,10")
	require.Contains(t, csvOut, "min,1")
	require.Contains(t, csvOut, "max,4")
	require.Contains(t, csvOut, "mean,2.5")

	digest := string(outputs[1].Data)
	require.True(t, strings.HasPrefix(digest, "Quarterly"))
	require.Contains(t, digest, "count: 4")
}

func TestStatementValidate(t *testing.T) {
	g := &StatementGenerator{}

	require.NotEmpty(t, g.ValidateParameters(map[string]any{}))
	require.NotEmpty(t, g.ValidateParameters(map[string]any{"account": "acct-1"}))
	require.NotEmpty(t, g.ValidateParameters(map[string]any{
		"account": "acct-1",
		"entries": []any{map[string]any{"amount": "not-a-number"}},
	}))
	require.Empty(t, g.ValidateParameters(map[string]any{
		"account": "acct-1",
		"entries": []any{map[string]any{"date": "2026-08-01", "description": "fee", "amount": 12.5}},
	}))
}

func TestStatementGenerate(t *testing.T) {
	g := &StatementGenerator{}
	args := map[string]any{
		"account": "acct-42",
		"period":  "2026-08",
		"entries": []any{
			map[string]any{"date": "2026-08-01", "description": "deposit", "amount": 100},
			map[string]any{"date": "2026-08-15", "description": "fee", "amount": -2.5},
		},
	}

	outputs, err := g.Generate(context.Background(), args, noProgress, nil)
	require.NoError(t, err)
	require.Len(t, outputs, 2)

	html := string(outputs[0].Data)
	require.Equal(t, "statement.html", outputs[0].Filename)
	require.Contains(t, html, "acct-42")
	require.Contains(t, html, "2026-08")
	require.Contains(t, html, "97.50")

	csvOut := string(outputs[1].Data)
	require.Equal(t, "statement.csv", outputs[1].Filename)
	require.Contains(t, csvOut, "date,description,amount")
	require.Contains(t, csvOut, "2026-08-15,fee,-2.50")
	require.Contains(t, csvOut, ",total,97.50")
}

func TestStatementCancelled(t *testing.T) {
	g := &StatementGenerator{}
	cancel := make(chan struct{})
	close(cancel)

	_, err := g.Generate(context.Background(), map[string]any{
		"account": "acct-1",
		"entries": []any{map[string]any{"amount": 1}},
	}, noProgress, cancel)
	require.ErrorIs(t, err, report.ErrCancelled)

	// A cancel raised mid-run never yields partial outputs.
	var d time.Duration = g.EstimatedDuration(nil)
	require.Positive(t, d)
}
