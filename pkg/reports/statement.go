package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"html/template"
	"time"

	"github.com/spf13/cast"

	"github.com/reportd/reportd/pkg/report"
)

func init() {
	report.Register("statement", func() report.Generator { return &StatementGenerator{} })
}

// StatementGenerator renders an account statement from a list of line
// entries, producing an HTML document for viewing and a CSV export of
// the same rows.
type StatementGenerator struct{}

type statementEntry struct {
	Date        string
	Description string
	Amount      float64
}

var statementTmpl = template.Must(template.New("statement").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Statement {{.Account}}</title></head>
<body>
<h1>Account Statement</h1>
<p>Account: {{.Account}}{{if .Period}} &middot; Period: {{.Period}}{{end}}</p>
<table border="1" cellspacing="0" cellpadding="4">
<tr><th>Date</th><th>Description</th><th>Amount</th></tr>
{{range .Entries}}<tr><td>{{.Date}}</td><td>{{.Description}}</td><td>{{printf "%.2f" .Amount}}</td></tr>
{{end}}<tr><td colspan="2"><b>Total</b></td><td><b>{{printf "%.2f" .Total}}</b></td></tr>
</table>
<p><small>Generated {{.GeneratedAt}}</small></p>
</body>
</html>
`))

func (g *StatementGenerator) Metadata() report.Metadata {
	return report.Metadata{
		ID:          "statement",
		Name:        "Account Statement",
		Description: "HTML and CSV statement rendered from line entries",
		Version:     "1.0.0",
	}
}

func (g *StatementGenerator) ValidateParameters(args map[string]any) []report.ValidationError {
	var errs []report.ValidationError

	if report.StringArg(args, "account", "") == "" {
		errs = append(errs, report.ValidationError{Field: "account", Message: "is required"})
	}

	raw, ok := args["entries"]
	if !ok {
		return append(errs, report.ValidationError{Field: "entries", Message: "is required"})
	}
	entries, err := cast.ToSliceE(raw)
	if err != nil {
		return append(errs, report.ValidationError{Field: "entries", Message: "must be a list"})
	}
	for i, e := range entries {
		m, err := cast.ToStringMapE(e)
		if err != nil {
			errs = append(errs, report.ValidationError{
				Field:   "entries",
				Message: fmt.Sprintf("element %d must be an object", i),
			})
			continue
		}
		if !report.Numeric(m["amount"]) {
			errs = append(errs, report.ValidationError{
				Field:   "entries",
				Message: fmt.Sprintf("element %d has a non-numeric amount", i),
			})
		}
	}
	return errs
}

func (g *StatementGenerator) Generate(ctx context.Context, args map[string]any, progress report.Progress, cancel <-chan struct{}) ([]report.Output, error) {
	raw, err := cast.ToSliceE(args["entries"])
	if err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}

	progress(10, "collecting entries")

	entries := make([]statementEntry, 0, len(raw))
	var total float64
	for i, e := range raw {
		if i%500 == 0 {
			select {
			case <-cancel:
				return nil, report.ErrCancelled
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		m, err := cast.ToStringMapE(e)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entry := statementEntry{
			Date:        cast.ToString(m["date"]),
			Description: cast.ToString(m["description"]),
			Amount:      cast.ToFloat64(m["amount"]),
		}
		total += entry.Amount
		entries = append(entries, entry)
	}

	progress(50, "rendering html")

	var html bytes.Buffer
	err = statementTmpl.Execute(&html, map[string]any{
		"Account":     report.StringArg(args, "account", ""),
		"Period":      report.StringArg(args, "period", ""),
		"Entries":     entries,
		"Total":       total,
		"GeneratedAt": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	progress(80, "rendering csv")

	var csvBuf bytes.Buffer
	w := csv.NewWriter(&csvBuf)
	rows := [][]string{{"date", "description", "amount"}}
	for _, e := range entries {
		rows = append(rows, []string{e.Date, e.Description, fmt.Sprintf("%.2f", e.Amount)})
	}
	rows = append(rows, []string{"", "total", fmt.Sprintf("%.2f", total)})
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("render csv: %w", err)
	}

	return []report.Output{
		{Filename: "statement.html", Data: html.Bytes(), ContentType: "text/html"},
		{Filename: "statement.csv", Data: csvBuf.Bytes(), ContentType: "text/csv"},
	}, nil
}

func (g *StatementGenerator) EstimatedDuration(args map[string]any) time.Duration {
	if entries, err := cast.ToSliceE(args["entries"]); err == nil && len(entries) > 2000 {
		return 2 * time.Second
	}
	return time.Second
}
