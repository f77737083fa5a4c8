package profiler

import (
	"fmt"
	"sort"
	"time"
)

// LineStats is the merged timing of one line for one callable.
type LineStats struct {
	Line     int           `json:"line"`
	Callable CallableID    `json:"callable"`
	Hits     int64         `json:"hits"`
	Time     time.Duration `json:"time_ns"`
}

// CallStats is the merged timing of one call edge.
type CallStats struct {
	Line       int           `json:"line"`
	Caller     CallableID    `json:"caller"`
	Callee     CallableID    `json:"callee"`
	CalleeUnit UnitID        `json:"callee_unit"`
	Count      int64         `json:"count"`
	Time       time.Duration `json:"time_ns"`
}

// UnitStats is the merged timing of one unit across all writer contexts.
type UnitStats struct {
	ID        UnitID        `json:"id"`
	Name      string        `json:"name"`
	TotalTime time.Duration `json:"total_time_ns"`
	TotalHits int64         `json:"total_hits"`
	Lines     []LineStats   `json:"lines"`
	Calls     []CallStats   `json:"calls,omitempty"`
	Source    SourceReader  `json:"-"`

	lineTotals map[int]lineCell
}

// HitStatsFor returns the hit count and duration of one line, summed
// across callables.
func (u *UnitStats) HitStatsFor(line int) (int64, time.Duration) {
	cell := u.lineTotals[line]
	return cell.hits, time.Duration(cell.ns)
}

// LastLine returns the highest line carrying a hit or originating a call.
func (u *UnitStats) LastLine() int {
	last := 0
	for line := range u.lineTotals {
		if line > last {
			last = line
		}
	}
	for _, call := range u.Calls {
		if call.Line > last {
			last = call.Line
		}
	}
	return last
}

// CallsByLine groups the unit's call edges by originating line.
func (u *UnitStats) CallsByLine() map[int][]CallStats {
	result := make(map[int][]CallStats)
	for _, call := range u.Calls {
		result[call.Line] = append(result[call.Line], call)
	}
	return result
}

// Dataset is the read-only consolidated output of the merge engine.
// Units are ordered by total time descending, then total hits
// descending, then name; per-unit slices are ordered as well, so equal
// inputs always merge to byte-identical renderings.
type Dataset struct {
	TotalTime time.Duration `json:"total_time_ns"`
	Units     []*UnitStats  `json:"units"`

	// Writers is the number of accumulator contexts that contributed.
	Writers int `json:"writers"`

	callables []*Callable
	names     map[UnitID]string
}

// Callable resolves a callable handle against the merge-time snapshot.
func (d *Dataset) Callable(id CallableID) *Callable {
	if int(id) >= len(d.callables) {
		return nil
	}
	return d.callables[id]
}

// Callables returns the merge-time callable snapshot.
func (d *Dataset) Callables() []*Callable {
	return d.callables
}

// UnitName returns the disambiguated display name of a unit.
func (d *Dataset) UnitName(id UnitID) string {
	return d.names[id]
}

// Unit returns the stats of one unit, or nil if it accumulated nothing.
func (d *Dataset) Unit(id UnitID) *UnitStats {
	for _, u := range d.Units {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// mergeTimings consolidates all accumulators registered with reg into a
// Dataset with the given total observed time.
func mergeTimings(reg *Registry, totalNS int64) *Dataset {
	snap := reg.snapshot()
	ds := &Dataset{
		TotalTime: time.Duration(totalNS),
		callables: snap.callables,
		names:     make(map[UnitID]string, len(snap.units)),
	}

	// Resolve display name collisions before any cross-references are
	// rendered: the lowest handle keeps the bare name, later homonyms get
	// _0, _1, ... suffixes in handle order.
	taken := make(map[string]bool, len(snap.units))
	for _, unit := range snap.units {
		name := unit.Name
		if taken[name] {
			for i := 0; ; i++ {
				candidate := fmt.Sprintf("%s_%d", unit.Name, i)
				if !taken[candidate] {
					name = candidate
					break
				}
			}
		}
		taken[name] = true
		ds.names[unit.ID] = name
	}

	for _, unit := range snap.units {
		contexts := snap.timings[unit.ID]
		if len(contexts) == 0 {
			continue
		}
		ds.Writers += len(contexts)

		stats := &UnitStats{
			ID:         unit.ID,
			Name:       ds.names[unit.ID],
			Source:     snap.sources[unit.ID],
			lineTotals: make(map[int]lineCell),
		}

		lines := make(map[int]map[CallableID]*lineCell)
		calls := make(map[callKey]*callCell)
		for _, ut := range contexts {
			for line, byCallable := range ut.lines {
				merged, ok := lines[line]
				if !ok {
					merged = make(map[CallableID]*lineCell, len(byCallable))
					lines[line] = merged
				}
				for callable, cell := range byCallable {
					target, ok := merged[callable]
					if !ok {
						target = &lineCell{}
						merged[callable] = target
					}
					target.hits += cell.hits
					target.ns += cell.ns
				}
			}
			for key, cell := range ut.calls {
				target, ok := calls[key]
				if !ok {
					target = &callCell{}
					calls[key] = target
				}
				target.count += cell.count
				target.ns += cell.ns
			}
		}

		for line, byCallable := range lines {
			total := stats.lineTotals[line]
			for callable, cell := range byCallable {
				stats.Lines = append(stats.Lines, LineStats{
					Line:     line,
					Callable: callable,
					Hits:     cell.hits,
					Time:     time.Duration(cell.ns),
				})
				total.hits += cell.hits
				total.ns += cell.ns
			}
			stats.lineTotals[line] = total
			stats.TotalHits += total.hits
			stats.TotalTime += time.Duration(total.ns)
		}
		sort.Slice(stats.Lines, func(i, j int) bool {
			if stats.Lines[i].Line != stats.Lines[j].Line {
				return stats.Lines[i].Line < stats.Lines[j].Line
			}
			return stats.Lines[i].Callable < stats.Lines[j].Callable
		})

		for key, cell := range calls {
			calleeUnit := UnitID(0)
			if c := ds.Callable(key.callee); c != nil {
				calleeUnit = c.Unit
			}
			stats.Calls = append(stats.Calls, CallStats{
				Line:       key.line,
				Caller:     key.caller,
				Callee:     key.callee,
				CalleeUnit: calleeUnit,
				Count:      cell.count,
				Time:       time.Duration(cell.ns),
			})
		}
		sort.Slice(stats.Calls, func(i, j int) bool {
			a, b := stats.Calls[i], stats.Calls[j]
			if a.Line != b.Line {
				return a.Line < b.Line
			}
			if a.Caller != b.Caller {
				return a.Caller < b.Caller
			}
			return a.Callee < b.Callee
		})

		ds.Units = append(ds.Units, stats)
	}

	sort.Slice(ds.Units, func(i, j int) bool {
		a, b := ds.Units[i], ds.Units[j]
		if a.TotalTime != b.TotalTime {
			return a.TotalTime > b.TotalTime
		}
		if a.TotalHits != b.TotalHits {
			return a.TotalHits > b.TotalHits
		}
		return a.Name < b.Name
	})
	return ds
}
