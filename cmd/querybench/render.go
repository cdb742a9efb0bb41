package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"querybench/internal/benchmark"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// isTerminal reports whether w is an interactive terminal.
var isTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func printSession(w io.Writer, s *benchmark.Session, unit benchmark.CVUnit) {
	fmt.Fprintln(w, titleStyle.Render(s.Spec.String()))
	status := fmt.Sprintf("%d/%d runs succeeded", len(s.Records), s.Requested)
	if s.Failures > 0 {
		status = failStyle.Render(fmt.Sprintf("%s, %d failed", status, s.Failures))
	}
	fmt.Fprintln(w, status)
	benchmark.WriteSummary(w, "Time (s)", s.Times(), unit)
	benchmark.WriteSummary(w, "Memory (MB)", s.Memories(), unit)
}

func writeReportTable(w io.Writer, r *benchmark.Report) error {
	fmt.Fprintln(w, titleStyle.Render("Comparison against "+r.Baseline.Source))
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tRUNS\tTIME MEAN (s)\tTIME DIFF\tTIME P\tMEMORY MEAN (MB)\tMEMORY DIFF\tMEMORY P")
	b := r.Baseline
	fmt.Fprintf(tw, "%s\t%d\t%.6f\tbaseline\t-\t%.6f\tbaseline\t-\n", b.Source, b.Time.Count, b.Time.Mean, b.Memory.Mean)
	for _, c := range r.Others {
		fmt.Fprintf(tw, "%s\t%d\t%.6f\t%+.2f%%\t%.3f\t%.6f\t%+.2f%%\t%.3f\n",
			c.Source, c.Time.Count, c.Time.Mean, c.TimeDiff, c.TimeP, c.Memory.Mean, c.MemoryDiff, c.MemoryP)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, p := range r.Skipped {
		fmt.Fprintln(w, mutedStyle.Render("Skipped (no data): "+p))
	}
	return nil
}

func reportMarkdown(r *benchmark.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Comparison against `%s`\n\n", r.Baseline.Source)
	sb.WriteString("| Source | Tool | Function | Mode | Runs | Time mean (s) | Time diff | Memory mean (MB) | Memory diff |\n")
	sb.WriteString("|---|---|---|---|---:|---:|---:|---:|---:|\n")
	b := r.Baseline
	fmt.Fprintf(&sb, "| %s | %s | %s | %s | %d | %.6f | baseline | %.6f | baseline |\n",
		b.Source, b.Tool, b.Function, b.Mode, b.Time.Count, b.Time.Mean, b.Memory.Mean)
	for _, c := range r.Others {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %d | %.6f | %+.2f%% (p=%.3f) | %.6f | %+.2f%% (p=%.3f) |\n",
			c.Source, c.Tool, c.Function, c.Mode, c.Time.Count, c.Time.Mean, c.TimeDiff, c.TimeP,
			c.Memory.Mean, c.MemoryDiff, c.MemoryP)
	}
	if len(r.Skipped) > 0 {
		sb.WriteString("\nSkipped (no data):\n\n")
		for _, p := range r.Skipped {
			fmt.Fprintf(&sb, "- `%s`\n", p)
		}
	}
	return sb.String()
}

// writeMarkdown renders md for a terminal and prints it raw otherwise.
func writeMarkdown(w io.Writer, md string) error {
	if isTerminal(w) {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(120),
		)
		if err == nil {
			if out, err := renderer.Render(md); err == nil {
				_, err = io.WriteString(w, out)
				return err
			}
		}
	}
	_, err := io.WriteString(w, md)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
