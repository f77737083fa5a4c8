package profiler

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// EventLog writes one line per profiling event, indented by stack depth.
// It exists to debug event sources and tracker wiring, not to measure
// anything; its own cost is part of profiling overhead.
type EventLog struct {
	mu    sync.Mutex
	w     io.Writer
	clock Clock
	start int64
}

func newEventLog(w io.Writer, clock Clock) *EventLog {
	return &EventLog{
		w:     w,
		clock: clock,
		start: clock(),
	}
}

func (e *EventLog) log(thread string, depth int, kind string, sc scope, line int) {
	name := "?"
	rel := 0
	unit := "?"
	if sc.callable != nil {
		name = sc.callable.Name
		rel = line - sc.callable.FirstLine
		unit = sc.unitName
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.w, "%10.6f%s%s %s:%d %s+%d [%s]\n",
		float64(e.clock()-e.start)/1e9,
		strings.Repeat(" ", depth),
		kind, unit, line, name, rel, thread)
}
