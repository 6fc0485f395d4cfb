// Package format renders CLI output with consistent styling.
package format

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/reportd/reportd/pkg/job"
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")). // Green
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")). // Red
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")) // Yellow

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("105")). // Purple
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")) // Gray
)

// Formatter writes styled output for CLI commands.
type Formatter struct {
	out io.Writer
	err io.Writer
}

// New creates a formatter over the given writers.
func New(out, err io.Writer) *Formatter {
	return &Formatter{out: out, err: err}
}

func (f *Formatter) Successf(format string, args ...any) {
	fmt.Fprintln(f.out, successStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

func (f *Formatter) Errorf(format string, args ...any) {
	fmt.Fprintln(f.err, errorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

func (f *Formatter) Warnf(format string, args ...any) {
	fmt.Fprintln(f.err, warnStyle.Render("! "+fmt.Sprintf(format, args...)))
}

func (f *Formatter) Header(text string) {
	fmt.Fprintln(f.out, headerStyle.Render(text))
}

func (f *Formatter) Dimf(format string, args ...any) {
	fmt.Fprintln(f.out, dimStyle.Render(fmt.Sprintf(format, args...)))
}

// Progress prints a single-line progress update.
func (f *Formatter) Progress(percent int, step string) {
	fmt.Fprintf(f.out, "  %3d%% %s\n", percent, dimStyle.Render(step))
}

// JobSummary prints the outcome of a finished job.
func (f *Formatter) JobSummary(j job.Job) {
	switch j.Status {
	case job.StatusCompleted:
		f.Successf("job %s completed in %s", j.ID, roundDuration(j.Resources.Duration))
	case job.StatusFailed:
		msg := "unknown error"
		if j.Err != nil {
			msg = j.Err.Message
		}
		f.Errorf("job %s failed: %s", j.ID, msg)
	case job.StatusCancelled:
		f.Warnf("job %s cancelled", j.ID)
	default:
		f.Dimf("job %s is %s", j.ID, j.Status)
	}

	if len(j.Files) > 0 {
		w := tabwriter.NewWriter(f.out, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "  FILE\tSIZE\tTYPE\tCHECKSUM")
		for _, file := range j.Files {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
				file.Filename, FormatBytes(file.Size), file.ContentType, shortChecksum(file.Checksum))
		}
		w.Flush()
	}
}

// FormatBytes renders a byte count in human units.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func shortChecksum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}

func roundDuration(d time.Duration) time.Duration {
	switch {
	case d > time.Second:
		return d.Round(10 * time.Millisecond)
	case d > time.Millisecond:
		return d.Round(10 * time.Microsecond)
	default:
		return d
	}
}

// Table prints rows under a header through a tabwriter.
func (f *Formatter) Table(header []string, rows [][]string) {
	w := tabwriter.NewWriter(f.out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}
