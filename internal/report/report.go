// Package report renders locate results and metrics for terminals.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jackzampolin/headloc/internal/locator"
	"github.com/jackzampolin/headloc/internal/metrics"
)

var (
	// titleStyle for bold headers
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63"))

	// dimStyle for muted labels
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	foundStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	missingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	// boxStyle for summary boxes
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

const (
	headingWidth = 44
	textWidth    = 40
)

// Result writes a summary box, one row per heading and the diagnostics.
func Result(w io.Writer, res *locator.Result) {
	fmt.Fprintln(w, boxStyle.Render(summaryText(res)))
	fmt.Fprintln(w)

	fmt.Fprintln(w, titleStyle.Render("Headings"))
	for _, row := range res.Alignment() {
		fmt.Fprintln(w, alignmentLine(row))
	}

	if len(res.Diagnostics) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, titleStyle.Render("Diagnostics"))
		for _, d := range res.Diagnostics {
			fmt.Fprintf(w, "%s %s: %s\n", warnStyle.Render(string(d.Kind)), d.Heading, d.Message)
		}
	}
	if res.TracePath != "" {
		fmt.Fprintf(w, "\n%s %s\n", dimStyle.Render("Trace:"), res.TracePath)
	}
}

func summaryText(res *locator.Result) string {
	s := res.Stats
	status := foundStyle.Render("OK")
	if s.Unresolvable > 0 {
		status = warnStyle.Render(fmt.Sprintf("%d UNRESOLVED", s.Unresolvable))
	}
	name := res.DocumentID
	if name == "" {
		name = "document"
	}

	line1 := fmt.Sprintf("%s %d  %s %d  %s %d/%d  %s",
		dimStyle.Render("Lines:"), s.Lines,
		dimStyle.Render("Pages:"), s.Pages,
		dimStyle.Render("Resolved:"), s.Resolved, s.Headings,
		status,
	)
	line2 := fmt.Sprintf("%s %d  %s %d  %s %d  %s %d  %s %.3fs",
		dimStyle.Render("TOC lines:"), s.TOCLines,
		dimStyle.Render("Running:"), s.RunningLines,
		dimStyle.Render("Passes:"), s.Passes,
		dimStyle.Render("Corrections:"), s.Corrections,
		dimStyle.Render("Time:"), s.Duration.Seconds(),
	)
	content := titleStyle.Render(name) + "\n" + line1 + "\n" + line2
	if strategies := formatCounts(s.Strategies); strategies != "" {
		content += "\n" + dimStyle.Render("Strategies:") + " " + strategies
	}
	return content
}

func alignmentLine(row locator.AlignmentRow) string {
	indent := strings.Repeat("  ", max(row.Level-1, 0))
	label := lipgloss.NewStyle().Width(headingWidth).Render(truncate(indent+row.Heading, headingWidth))

	if !row.Found {
		where := "unassigned"
		if row.SectionKey != "" {
			where = "in " + row.SectionKey
		}
		return fmt.Sprintf("%s %s %s", missingStyle.Render("✗"), label, dimStyle.Render("not found, "+where))
	}
	loc := lipgloss.NewStyle().Width(16).Render(fmt.Sprintf("p%d L%d", row.Page, row.LineIndex))
	return fmt.Sprintf("%s %s %s %s %s",
		foundStyle.Render("✓"),
		label,
		loc,
		dimStyle.Render(fmt.Sprintf("%.2f %-15s", row.Score, row.Strategy)),
		truncate(row.LineText, textWidth),
	)
}

// Batch writes one line per batch item.
func Batch(w io.Writer, items []locator.BatchItem, names []string) {
	ok, failed := 0, 0
	for _, it := range items {
		name := fmt.Sprintf("#%d", it.Index)
		if it.Index < len(names) && names[it.Index] != "" {
			name = names[it.Index]
		}
		if it.Err != nil {
			failed++
			fmt.Fprintf(w, "%s %s %s\n", missingStyle.Render("✗"), name, dimStyle.Render(it.Err.Error()))
			continue
		}
		ok++
		s := it.Result.Stats
		mark := foundStyle.Render("✓")
		if s.Unresolvable > 0 {
			mark = warnStyle.Render("!")
		}
		fmt.Fprintf(w, "%s %s %d/%d headings %s\n", mark, name, s.Resolved, s.Headings,
			dimStyle.Render(fmt.Sprintf("(%.3fs)", s.Duration.Seconds())))
	}
	summary := fmt.Sprintf("%s %d  %s %d", dimStyle.Render("Succeeded:"), ok, dimStyle.Render("Failed:"), failed)
	fmt.Fprintln(w, boxStyle.Render(summary))
}

// Metrics writes an aggregate of recorded runs.
func Metrics(w io.Writer, sum *metrics.Summary, stats *metrics.DetailedStats, strategies map[string]int) {
	lines := []string{
		titleStyle.Render("Runs"),
		fmt.Sprintf("%s %d  %s %d  %s %d",
			dimStyle.Render("Total:"), sum.Count,
			dimStyle.Render("OK:"), sum.SuccessCount,
			dimStyle.Render("Errors:"), sum.ErrorCount),
		fmt.Sprintf("%s %d/%d (%.1f%%)  %s %d",
			dimStyle.Render("Resolved:"), sum.TotalResolved, sum.TotalHeadings, sum.ResolutionRate*100,
			dimStyle.Render("Corrections:"), sum.TotalCorrections),
	}
	if stats != nil && stats.SuccessCount > 0 {
		lines = append(lines,
			fmt.Sprintf("%s p50 %.3fs  p95 %.3fs  max %.3fs",
				dimStyle.Render("Latency:"), stats.LatencyP50, stats.LatencyP95, stats.LatencyMax),
		)
		if stats.CacheHits+stats.CacheMisses > 0 {
			lines = append(lines, fmt.Sprintf("%s %d hits, %d misses (%.1f%%)",
				dimStyle.Render("Embedding cache:"), stats.CacheHits, stats.CacheMisses, stats.CacheHitRate*100))
		}
	}
	if s := formatCounts(strategies); s != "" {
		lines = append(lines, dimStyle.Render("Strategies:")+" "+s)
	}
	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}

// formatCounts renders counts as "a=1 b=2" in key order.
func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k, v := range counts {
		if v > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
