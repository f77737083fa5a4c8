package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/lineprof/lineprof/pkg/profiler"
)

var (
	annotateHeader = fmt.Sprintf("%6s|%10s|%13s|%13s|%7s|Source code",
		"Line #", "Hits", "Time", "Time per hit", "%")
	annotateRule = strings.Map(func(r rune) rune {
		if r == '|' {
			return '+'
		}
		return '-'
	}, annotateHeader)
)

// Annotate writes every unit's source interleaved with per-line hit
// counts, durations in seconds and time share, one block per unit in
// decreasing total time order. Call lines are followed by their
// outgoing call edges.
func Annotate(w io.Writer, ds *profiler.Dataset, opts Options) error {
	s := &sink{w: w}
	total := ds.TotalTime.Seconds()
	if opts.CommandLine != "" {
		s.printf("Command line: %s\n", opts.CommandLine)
	}
	s.printf("Total duration: %.6gs\n", total)
	if total == 0 {
		return s.err
	}

	for _, u := range ds.Units {
		s.printf("File: %s\n", u.Name)
		s.printf("File duration: %.6gs (%.2f%%)\n",
			u.TotalTime.Seconds(), percent(u.TotalTime.Seconds(), total))
		s.printf("%s\n", annotateHeader)
		s.printf("%s\n", annotateRule)
		for _, li := range unitLines(ds, u) {
			// Units without retrievable source render only their active
			// lines; gaps inside known source still show as zero rows.
			if !li.haveText && li.hits == 0 && len(li.calls) == 0 {
				continue
			}
			perHit := 0.0
			if li.hits > 0 {
				perHit = li.duration / float64(li.hits)
			}
			s.printf("%6d|%10d|%13.6g|%13.6g|%6.2f%%|%s\n",
				li.lineno, li.hits, li.duration, perHit,
				percent(li.duration, total), strings.TrimRight(li.text, " \t\r\n"))
			for _, call := range li.calls {
				calleeLine, calleeName := 0, "?"
				if callee := ds.Callable(call.Callee); callee != nil {
					calleeLine, calleeName = callee.FirstLine, callee.Name
				}
				d := call.Time.Seconds()
				s.printf("(call)|%10d|%13.6g|%13.6g|%6.2f%%|# %s:%d %s\n",
					call.Count, d, d/float64(call.Count),
					percent(d, total),
					ds.UnitName(call.CalleeUnit), calleeLine, calleeName)
			}
		}
	}
	return s.err
}
