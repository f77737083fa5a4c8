package profiler

import (
	"fmt"
	"time"
)

// Issue describes one violated dataset invariant.
type Issue struct {
	Check  string
	Detail string
}

func (i Issue) String() string {
	return i.Check + ": " + i.Detail
}

// Verify checks the structural invariants every correctly merged dataset
// satisfies and returns one issue per violation. An empty result means
// the dataset is consistent.
func Verify(ds *Dataset) []Issue {
	var issues []Issue

	seen := make(map[string]UnitID, len(ds.Units))
	for _, unit := range ds.Units {
		if prev, ok := seen[unit.Name]; ok {
			issues = append(issues, Issue{
				Check:  fmt.Sprintf("unit %q unique name", unit.Name),
				Detail: fmt.Sprintf("shared by units %d and %d", prev, unit.ID),
			})
		}
		seen[unit.Name] = unit.ID

		var hits int64
		var ns int64
		for _, line := range unit.Lines {
			if line.Hits < 0 || line.Time < 0 {
				issues = append(issues, Issue{
					Check:  fmt.Sprintf("unit %q line %d non-negative", unit.Name, line.Line),
					Detail: fmt.Sprintf("hits=%d time=%v", line.Hits, line.Time),
				})
			}
			hits += line.Hits
			ns += int64(line.Time)
		}
		if hits != unit.TotalHits || ns != int64(unit.TotalTime) {
			issues = append(issues, Issue{
				Check: fmt.Sprintf("unit %q total consistency", unit.Name),
				Detail: fmt.Sprintf("lines sum to hits=%d time=%v, unit reports hits=%d time=%v",
					hits, time.Duration(ns), unit.TotalHits, unit.TotalTime),
			})
		}

		for _, call := range unit.Calls {
			if call.Count < 0 || call.Time < 0 {
				issues = append(issues, Issue{
					Check:  fmt.Sprintf("unit %q call at line %d non-negative", unit.Name, call.Line),
					Detail: fmt.Sprintf("count=%d time=%v", call.Count, call.Time),
				})
			}
			callee := ds.Callable(call.Callee)
			if callee == nil {
				issues = append(issues, Issue{
					Check:  fmt.Sprintf("unit %q call at line %d callee resolution", unit.Name, call.Line),
					Detail: fmt.Sprintf("callee handle %d unknown", call.Callee),
				})
			} else if callee.Unit != call.CalleeUnit {
				issues = append(issues, Issue{
					Check:  fmt.Sprintf("unit %q call at line %d callee unit", unit.Name, call.Line),
					Detail: fmt.Sprintf("edge records unit %d, callee belongs to unit %d", call.CalleeUnit, callee.Unit),
				})
			}
		}

		// With a single writer context, unit time cannot exceed observed
		// wall time. Concurrent writers can, so the check only applies to
		// single-writer datasets.
		if ds.Writers == 1 && ds.TotalTime > 0 && unit.TotalTime > ds.TotalTime {
			issues = append(issues, Issue{
				Check:  fmt.Sprintf("unit %q within total time", unit.Name),
				Detail: fmt.Sprintf("unit time %v exceeds total %v", unit.TotalTime, ds.TotalTime),
			})
		}
	}
	return issues
}
