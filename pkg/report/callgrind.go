package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/lineprof/lineprof/pkg/profiler"
)

// callgrindLine is the cost of one source line within one fn= section:
// hit count, exclusive microseconds and the rendered call records
// originating from it.
type callgrindLine struct {
	hits  int64
	us    int64
	calls []string
}

// Callgrind writes the dataset in the callgrind file format, readable
// by kcachegrind and compatible viewers. Events are hit count,
// microseconds and microseconds per hit; call edges carry inclusive
// durations, so line hit costs stay exclusive.
func Callgrind(w io.Writer, ds *profiler.Dataset, opts Options) error {
	s := &sink{w: w}
	convert := pathConverter(opts.RelativePaths)

	s.printf("# callgrind format\n")
	s.printf("version: 1\n")
	s.printf("creator: lineprof\n")
	s.printf("event: usphit :microseconds/hit\n")
	s.printf("events: hits microseconds usphit\n")
	if opts.CommandLine != "" {
		s.printf("cmd: %s\n", opts.CommandLine)
	}

	for _, u := range ds.Units {
		printable := convert(u.Name)
		s.printf("fl=%s\n", printable)

		// Dispatch costs per callable first, then emit each fn= section
		// uninterrupted. A callable defined and immediately called on the
		// same line must not split the surrounding section, or viewers
		// attribute the call to the wrong function.
		sections := make(map[string]map[int]*callgrindLine)
		var order []string
		at := func(label string, line int) *callgrindLine {
			byLine, ok := sections[label]
			if !ok {
				byLine = make(map[int]*callgrindLine)
				sections[label] = byLine
				order = append(order, label)
			}
			cost, ok := byLine[line]
			if !ok {
				cost = &callgrindLine{}
				byLine[line] = cost
			}
			return cost
		}

		for _, ls := range u.Lines {
			// Anonymous callables share the unit-path label; their costs
			// collapse into one row per line.
			cost := at(funcLabel(ds.Callable(ls.Callable), printable), ls.Line)
			cost.hits += ls.Hits
			cost.us += ls.Time.Microseconds()
		}
		for _, call := range u.Calls {
			cost := at(funcLabel(ds.Callable(call.Caller), printable), call.Line)
			calleePath := convert(ds.UnitName(call.CalleeUnit))
			calleeLine := 0
			callee := ds.Callable(call.Callee)
			if callee != nil {
				calleeLine = callee.FirstLine
			}
			callUS := call.Time.Microseconds()
			cost.calls = append(cost.calls,
				fmt.Sprintf("cfl=%s", calleePath),
				fmt.Sprintf("cfn=%s", funcLabel(callee, calleePath)),
				fmt.Sprintf("calls=%d %d", call.Count, calleeLine),
				fmt.Sprintf("%d %d %d %d", call.Line, call.Count, callUS, callUS/call.Count),
			)
		}

		for _, label := range order {
			s.printf("fn=%s\n", label)
			byLine := sections[label]
			linenos := make([]int, 0, len(byLine))
			for lineno := range byLine {
				linenos = append(linenos, lineno)
			}
			sort.Ints(linenos)
			for _, lineno := range linenos {
				cost := byLine[lineno]
				if cost.hits > 0 {
					s.printf("%d %d %d %d\n", lineno, cost.hits, cost.us, cost.us/cost.hits)
				}
				for _, call := range cost.calls {
					s.printf("%s\n", call)
				}
			}
		}
	}
	return s.err
}
