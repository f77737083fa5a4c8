package profiler

// lineCell accumulates executions of one line by one callable.
type lineCell struct {
	hits int64
	ns   int64
}

// callKey identifies a call edge: the calling callable, the line the call
// was made from, and the callee.
type callKey struct {
	caller CallableID
	line   int
	callee CallableID
}

// callCell accumulates returns through one call edge.
type callCell struct {
	count int64
	ns    int64
}

// UnitTiming accumulates line and call timing for one unit within one
// writer context. It is written by exactly one goroutine and takes no
// locks; Merge reads it after writers stop.
type UnitTiming struct {
	unit  UnitID
	lines map[int]map[CallableID]*lineCell
	calls map[callKey]*callCell
}

func newUnitTiming(unit UnitID) *UnitTiming {
	return &UnitTiming{
		unit:  unit,
		lines: make(map[int]map[CallableID]*lineCell),
		calls: make(map[callKey]*callCell),
	}
}

// AddHit records one execution of line by callable taking ns nanoseconds.
// Zero durations are valid; the statistic engine commits only those.
func (u *UnitTiming) AddHit(callable CallableID, line int, ns int64) {
	byCallable, ok := u.lines[line]
	if !ok {
		byCallable = make(map[CallableID]*lineCell, 1)
		u.lines[line] = byCallable
	}
	cell, ok := byCallable[callable]
	if !ok {
		cell = &lineCell{}
		byCallable[callable] = cell
	}
	cell.hits++
	cell.ns += ns
}

// AddCall records one return of callee, invoked by caller from line,
// taking ns nanoseconds.
func (u *UnitTiming) AddCall(caller CallableID, line int, callee CallableID, ns int64) {
	key := callKey{caller: caller, line: line, callee: callee}
	cell, ok := u.calls[key]
	if !ok {
		cell = &callCell{}
		u.calls[key] = cell
	}
	cell.count++
	cell.ns += ns
}

// totals returns the accumulated hit count and duration across all lines.
func (u *UnitTiming) totals() (hits, ns int64) {
	for _, byCallable := range u.lines {
		for _, cell := range byCallable {
			hits += cell.hits
			ns += cell.ns
		}
	}
	return hits, ns
}
