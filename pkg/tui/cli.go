// Package tui renders command results for the terminal.
// Plain streaming output, no interactive screens.
package tui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/behaviorflow/behaviorflow/pkg/interfaces"
	"github.com/behaviorflow/behaviorflow/pkg/modelstore"
	"github.com/behaviorflow/behaviorflow/pkg/writer"
)

var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	warning = lipgloss.Color("#FFAA00")
	white   = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(warning)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().PaddingRight(2)
)

const rule = "  ─────────────────────────────────────"

// ExtractReport summarizes one extraction run.
type ExtractReport struct {
	Input       string
	Output      string
	Sessions    int
	Models      int
	Vertices    int
	Transitions int
	Diagnostics int
	Stored      int
	Duration    time.Duration
}

// PrintExtractReport prints the result of an extraction.
func PrintExtractReport(w io.Writer, r *ExtractReport) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, successStyle.Render("  ✓ EXTRACTION COMPLETE"))
	fmt.Fprintln(w)
	if r.Input != "" {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Input:"), codeStyle.Render(filepath.Base(r.Input)))
	}
	if r.Output != "" {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Output:"), codeStyle.Render(r.Output))
	}
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Sessions:"), titleStyle.Render(formatNumber(int64(r.Sessions))))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Models:"), titleStyle.Render(formatNumber(int64(r.Models))))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Vertices:"), titleStyle.Render(formatNumber(int64(r.Vertices))))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Transitions:"), titleStyle.Render(formatNumber(int64(r.Transitions))))
	if r.Stored > 0 {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Stored:"), titleStyle.Render(formatNumber(int64(r.Stored))))
	}
	if r.Diagnostics > 0 {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Diagnostics:"), warningStyle.Render(formatNumber(int64(r.Diagnostics))))
	}
	if r.Duration > 0 {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(formatDuration(r.Duration)))
	}
	fmt.Fprintln(w)
}

// PrintDiagnostics lists up to limit diagnostics, grouped counts first.
// limit <= 0 lists all of them.
func PrintDiagnostics(w io.Writer, diags []interfaces.Diagnostic, limit int) {
	if len(diags) == 0 {
		return
	}

	counts := make(map[string]int)
	for _, d := range diags {
		counts[d.SessionID]++
	}
	sessions := make([]string, 0, len(counts))
	for s := range counts {
		sessions = append(sessions, s)
	}
	sort.Strings(sessions)

	fmt.Fprintln(w, accentStyle.Render("▸ DIAGNOSTICS"))
	fmt.Fprintf(w, "  %s\n", mutedStyle.Render(fmt.Sprintf("%d in %d sessions", len(diags), len(sessions))))
	fmt.Fprintln(w)

	if limit <= 0 || limit > len(diags) {
		limit = len(diags)
	}
	for _, d := range diags[:limit] {
		fmt.Fprintf(w, "  %s %s\n", warningStyle.Render("!"), d.Message())
	}
	if rest := len(diags) - limit; rest > 0 {
		fmt.Fprintf(w, "  %s\n", mutedStyle.Render(fmt.Sprintf("… %d more", rest)))
	}
	fmt.Fprintln(w)
}

// PrintSummary prints a models database summary.
func PrintSummary(w io.Writer, path string, s *writer.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", titleStyle.Render("MODELS"), mutedStyle.Render(path))
	fmt.Fprintln(w, mutedStyle.Render(rule))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Models:"), titleStyle.Render(formatNumber(s.Models)))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Vertices:"), titleStyle.Render(formatNumber(s.Vertices)))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Transitions:"), titleStyle.Render(formatNumber(s.Transitions)))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Traversals:"), titleStyle.Render(formatNumber(s.Traversals)))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Samples:"), titleStyle.Render(formatNumber(s.Samples)))
	fmt.Fprintln(w, mutedStyle.Render(rule))

	if len(s.Top) == 0 {
		fmt.Fprintln(w)
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, accentStyle.Render("▸ TOP TRANSITIONS"))
	rows := [][]string{{"SOURCE", "TARGET", "TRAVERSALS", "MODELS", "MEAN Δ"}}
	for _, t := range s.Top {
		mean := "-"
		if t.Samples > 0 {
			mean = fmt.Sprintf("%.1f", t.MeanDelta)
		}
		rows = append(rows, []string{
			t.Source,
			t.Target,
			fmt.Sprint(t.Traversals),
			fmt.Sprint(t.Models),
			mean,
		})
	}
	printTable(w, rows)
	fmt.Fprintln(w)
}

// PrintRecords lists stored models.
func PrintRecords(w io.Writer, records []*modelstore.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  No models stored."))
		return
	}

	rows := [][]string{{"ID", "SESSION", "VERTICES", "CREATED"}}
	for _, r := range records {
		rows = append(rows, []string{
			r.ID,
			r.SessionID,
			fmt.Sprint(len(r.Model.Vertices)),
			r.CreatedAt.Local().Format(time.DateTime),
		})
	}
	printTable(w, rows)
}

// printTable renders rows as left-aligned columns; the first row is the
// header.
func printTable(w io.Writer, rows [][]string) {
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if n := lipgloss.Width(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			style := cellStyle.Width(widths[i] + 2)
			if r == 0 {
				style = style.Foreground(muted)
			}
			cells[i] = style.Render(cell)
		}
		fmt.Fprintln(w, "  "+strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " "))
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// ShowProgress creates a progress bar on stderr.
func ShowProgress(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
