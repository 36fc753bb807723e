package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/verumIgnis/busmapgen/internal/job"
)

var (
	accentFg  = lipgloss.Color("#7C3AED")
	goodFg    = lipgloss.Color("#22C55E")
	warnFg    = lipgloss.Color("#F59E0B")
	dimFg     = lipgloss.Color("#6B7280")
	borderCol = lipgloss.Color("#243141")

	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(borderCol).Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Foreground(accentFg).Bold(true)
	keyStyle   = lipgloss.NewStyle().Foreground(dimFg)
	goodStyle  = lipgloss.NewStyle().Foreground(goodFg)
	warnStyle  = lipgloss.NewStyle().Foreground(warnFg)
)

// formatSummary renders the end-of-run table: totals first, then the rejection
// counts in reason order
func formatSummary(r *job.Report) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Bus map rendered"))
	b.WriteString("\n\n")
	row := func(key, value string) {
		fmt.Fprintf(&b, "%s %s\n", keyStyle.Render(fmt.Sprintf("%-24s", key)), value)
	}
	row("Output", goodStyle.Render(filepath.ToSlash(r.Path)))
	row("Canvas", fmt.Sprintf("%d x %d px", r.Width, r.Height))
	row("Routes", fmt.Sprintf("%d", r.Total))
	row("Drawn", goodStyle.Render(fmt.Sprintf("%d", r.Drawn)))
	if r.Frequency.Count > 0 {
		row("Frequency mean / sd", fmt.Sprintf("%.1f / %.1f (min %.0f, max %.0f)",
			r.Frequency.Mean, r.Frequency.StdDev(), r.Frequency.Min, r.Frequency.Max))
	}
	if r.RunID != "" {
		row("Run", r.RunID)
	}

	if reasons := r.Tally.Reasons(); len(reasons) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Skipped"))
		b.WriteString("\n")
		for _, reason := range reasons {
			row(string(reason), warnStyle.Render(fmt.Sprintf("%d", r.Tally.Count(reason))))
		}
	}

	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}
