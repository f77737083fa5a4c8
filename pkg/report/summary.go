package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/lineprof/lineprof/pkg/profiler"
)

// SummaryOptions configures the terminal summary.
type SummaryOptions struct {
	// CommandLine, when set, is echoed under the title.
	CommandLine string
	// TopLines caps the hottest-lines table.
	TopLines int
}

// DefaultSummaryOptions returns the summary defaults.
func DefaultSummaryOptions() SummaryOptions {
	return SummaryOptions{TopLines: 10}
}

type hotLine struct {
	unit     *profiler.UnitStats
	callable *profiler.Callable
	line     int
	hits     int64
	duration time.Duration
}

// Summary renders a styled terminal digest: per-unit totals and the
// hottest individual lines across the whole dataset.
func Summary(w io.Writer, ds *profiler.Dataset, opts SummaryOptions) error {
	if opts.TopLines <= 0 {
		opts.TopLines = DefaultSummaryOptions().TopLines
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		MarginBottom(1)
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("62")).
		Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	hotStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warmStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)

	s := &sink{w: w}
	s.printf("%s\n", titleStyle.Render("Line Profile Summary"))
	s.printf("%s\n", strings.Repeat("═", 60))
	if opts.CommandLine != "" {
		s.printf("%s\n", dimStyle.Render("Command line: "+opts.CommandLine))
	}
	s.printf("Total duration: %s across %d writer(s)\n\n",
		formatDuration(ds.TotalTime), ds.Writers)

	if len(ds.Units) == 0 {
		s.printf("%s\n", dimStyle.Render("No activity recorded."))
		return s.err
	}

	total := ds.TotalTime.Seconds()
	shareCell := func(d time.Duration) string {
		pct := percent(d.Seconds(), total)
		cell := fmt.Sprintf("%6.2f%%", pct)
		switch {
		case pct >= 20:
			return hotStyle.Render(cell)
		case pct >= 5:
			return warmStyle.Render(cell)
		default:
			return cell
		}
	}

	unitRows := make([][]string, len(ds.Units))
	for i, u := range ds.Units {
		unitRows[i] = []string{
			u.Name,
			humanize.Comma(u.TotalHits),
			formatDuration(u.TotalTime),
			shareCell(u.TotalTime),
		}
	}
	unitTable := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("UNIT", "HITS", "TIME", "SHARE").
		Rows(unitRows...)
	s.printf("%s\n", unitTable)

	hottest := hottestLines(ds, opts.TopLines)
	if len(hottest) > 0 {
		s.printf("\n%s\n", titleStyle.Render("Hottest Lines"))
		rows := make([][]string, len(hottest))
		for i, hl := range hottest {
			name := ""
			if hl.callable != nil {
				name = hl.callable.Name
			}
			rows[i] = []string{
				fmt.Sprintf("%s:%d", hl.unit.Name, hl.line),
				name,
				humanize.Comma(hl.hits),
				formatDuration(hl.duration),
				shareCell(hl.duration),
			}
		}
		hotTable := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			}).
			Headers("LOCATION", "FUNCTION", "HITS", "TIME", "SHARE").
			Rows(rows...)
		s.printf("%s\n", hotTable)
	}
	return s.err
}

// hottestLines ranks every line of every unit by duration, then hits.
func hottestLines(ds *profiler.Dataset, limit int) []hotLine {
	var all []hotLine
	for _, u := range ds.Units {
		for _, ls := range u.Lines {
			all = append(all, hotLine{
				unit:     u,
				callable: ds.Callable(ls.Callable),
				line:     ls.Line,
				hits:     ls.Hits,
				duration: ls.Time,
			})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].duration != all[j].duration {
			return all[i].duration > all[j].duration
		}
		return all[i].hits > all[j].hits
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

// formatDuration trims sub-microsecond noise from long durations while
// keeping short ones exact.
func formatDuration(d time.Duration) string {
	if d >= time.Second {
		return d.Round(time.Millisecond).String()
	}
	if d >= time.Millisecond {
		return d.Round(time.Microsecond).String()
	}
	return d.String()
}
