package profiler

import "github.com/sirupsen/logrus"

// frame is one tracker stack entry.
type frame struct {
	sc scope

	// start is when the frame was entered or the stack was reset.
	start int64

	// discount is time spent in deeper invocations reached through the
	// same call pair, subtracted from this frame's call duration on leave
	// so a recursive edge totals the span of its outermost invocation.
	discount int64

	// line is the line currently executing.
	line int

	// lineStart is when the current line started or resumed.
	lineStart int64

	// carried is line time accumulated before the last suspension.
	carried int64
}

// callPair identifies an in-flight caller/callee combination.
type callPair struct {
	caller CallableID
	callee CallableID
}

// Tracker consumes the enter, step and leave events of one thread of
// execution. A tracker is owned by exactly one goroutine and shares no
// mutable state with other trackers; its accumulators stay registered
// with the profile after Close so Merge still sees them.
//
// The stack bottom is a sentinel frame with no callable. It keeps resume
// bookkeeping uniform for root frames and makes a leave that would pop it
// detectable as an underflow.
type Tracker struct {
	p     *Profile
	name  string
	cache scopeCache

	// seen is the profile state generation the stack was built under. A
	// newer generation means the profile was re-enabled; the stack resets
	// before the event applies.
	seen uint64
	dead bool

	stack   []*frame
	pending map[callPair][]*frame
}

// NewTracker returns a tracker for one thread of execution. The name
// labels the thread in warnings and in the per-event log.
func (p *Profile) NewTracker(name string) *Tracker {
	tr := &Tracker{
		p:     p,
		name:  name,
		cache: newScopeCache(p.reg),
	}
	tr.reset(p.clock())
	p.addTracker(1)
	return tr
}

// reset drops all in-flight frames, leaving only the sentinel.
func (tr *Tracker) reset(at int64) {
	tr.stack = append(tr.stack[:0], &frame{start: at, lineStart: at})
	tr.pending = make(map[callPair][]*frame)
}

// gate reports whether the event should apply, resetting the stack when
// the profile was re-enabled since the last event. Reading the enable
// state without further synchronization is intentional: a stale read
// around an enable/disable edge drops or admits at most the events in
// flight.
func (tr *Tracker) gate(at int64) bool {
	if tr.dead {
		return false
	}
	state := tr.p.state.Load()
	if state&1 == 0 {
		return false
	}
	if state != tr.seen {
		tr.reset(at)
		tr.seen = state
	}
	return true
}

// Enter records a call into callable whose body starts at line, observed
// at time "at" (profile clock nanoseconds).
func (tr *Tracker) Enter(callable CallableID, line int, at int64) {
	if !tr.gate(at) {
		return
	}
	sc := tr.cache.resolve(callable)
	if tr.p.events != nil {
		tr.p.events.log(tr.name, len(tr.stack), "enter", sc, line)
	}
	caller := tr.stack[len(tr.stack)-1]
	// Suspend the caller's line clock until the callee returns.
	caller.carried = at - caller.lineStart + caller.carried
	callee := &frame{sc: sc, start: at, line: line, lineStart: at}
	if caller.sc.callable != nil {
		pair := callPair{caller: caller.sc.callable.ID, callee: callable}
		tr.pending[pair] = append(tr.pending[pair], callee)
	}
	tr.stack = append(tr.stack, callee)
}

// Step records that execution moved to line within the current frame and
// commits the previous line's hit.
func (tr *Tracker) Step(line int, at int64) {
	if !tr.gate(at) {
		return
	}
	top := tr.stack[len(tr.stack)-1]
	if top.sc.callable == nil {
		tr.underflow("step")
		return
	}
	if tr.p.events != nil {
		tr.p.events.log(tr.name, len(tr.stack), "step", top.sc, line)
	}
	top.sc.timing.AddHit(top.sc.callable.ID, top.line, at-top.lineStart+top.carried)
	top.line = line
	top.lineStart = at
	top.carried = 0
}

// Leave records the return of the current frame: it commits the hit for
// the frame's current line, resumes the caller's line clock and commits
// the call edge.
func (tr *Tracker) Leave(at int64) {
	if !tr.gate(at) {
		return
	}
	top := tr.stack[len(tr.stack)-1]
	if top.sc.callable == nil {
		tr.underflow("leave")
		return
	}
	if tr.p.events != nil {
		tr.p.events.log(tr.name, len(tr.stack), "leave", top.sc, top.line)
	}
	top.sc.timing.AddHit(top.sc.callable.ID, top.line, at-top.lineStart+top.carried)
	tr.stack = tr.stack[:len(tr.stack)-1]
	caller := tr.stack[len(tr.stack)-1]
	caller.lineStart = at
	if caller.sc.callable == nil {
		// Root frame: no caller to attribute a call edge to.
		return
	}
	callDuration := at - top.start
	pair := callPair{caller: caller.sc.callable.ID, callee: top.sc.callable.ID}
	marks := tr.pending[pair]
	// The frame being popped is always the most recent marker for its pair.
	marks = marks[:len(marks)-1]
	tr.pending[pair] = marks
	if len(marks) > 0 {
		// The callee is also live further up the stack through the same
		// pair; move this span onto that invocation's discount.
		marks[len(marks)-1].discount += callDuration
	}
	caller.sc.timing.AddCall(caller.sc.callable.ID, caller.line, top.sc.callable.ID, callDuration-top.discount)
}

// Depth returns the number of frames on the stack, excluding the sentinel.
func (tr *Tracker) Depth() int {
	return len(tr.stack) - 1
}

// Dead reports whether the tracker disabled itself after an underflow.
func (tr *Tracker) Dead() bool {
	return tr.dead
}

// Close releases the tracker from its profile. Accumulated timing stays
// visible to Merge.
func (tr *Tracker) Close() {
	if tr.p == nil {
		return
	}
	tr.p.addTracker(-1)
	tr.p = nil
	tr.dead = true
}

// underflow marks the tracker dead after more leaves than enters. Other
// trackers and the profile itself keep running.
func (tr *Tracker) underflow(op string) {
	tr.dead = true
	tr.p.log.WithFields(logrus.Fields{
		"thread": tr.name,
		"op":     op,
	}).Warn("Profiling stack underflow, disabling thread")
}
