// Package profiler provides deterministic and statistic line-granularity
// execution timing aggregation across the threads of a traced program.
package profiler

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Clock returns a monotonic timestamp in nanoseconds.
type Clock func() int64

var processStart = time.Now()

func defaultClock() int64 {
	return int64(time.Since(processStart))
}

// Options configures a Profile or a StatisticProfile.
type Options struct {
	// Logger receives warnings and diagnostics. Nil falls back to a
	// default logger at warn level.
	Logger *logrus.Logger

	// Clock overrides the timestamp source. Defaults to a monotonic
	// clock anchored at process start.
	Clock Clock

	// Verbose enables the per-event log on TraceWriter.
	Verbose bool

	// TraceWriter is the per-event log destination. Defaults to stderr.
	TraceWriter io.Writer

	// UnitNamer rewrites raw unit names from the event source before
	// interning. Embedding hosts use it to synthesize display names for
	// dynamic code or to strip host-specific path prefixes. Nil keeps
	// names unchanged.
	UnitNamer func(name string) string
}

func (o Options) logger() *logrus.Logger {
	if o.Logger == nil {
		logger := logrus.New()
		logger.SetLevel(logrus.WarnLevel)
		return logger
	}
	return o.Logger
}

func (o Options) clock() Clock {
	if o.Clock == nil {
		return defaultClock
	}
	return o.Clock
}

// Profile aggregates deterministic enter/step/leave timing. Create one
// Tracker per thread of execution and feed events through it; Merge
// consolidates all trackers into a Dataset.
type Profile struct {
	reg    *Registry
	log    *logrus.Logger
	clock  Clock
	events *EventLog

	// state is odd while enabled and increments on every transition, so
	// its value doubles as the enable generation trackers key off.
	state atomic.Uint64

	mu        sync.Mutex
	enabledAt int64
	totalNS   int64
	trackers  int
}

// New creates a disabled Profile.
func New(opts Options) *Profile {
	p := &Profile{
		reg:   NewRegistry(),
		log:   opts.logger(),
		clock: opts.clock(),
	}
	if opts.UnitNamer != nil {
		p.reg.SetNamer(opts.UnitNamer)
	}
	if opts.Verbose {
		w := opts.TraceWriter
		if w == nil {
			w = os.Stderr
		}
		p.events = newEventLog(w, p.clock)
	}
	return p
}

// Registry returns the profile's unit registry.
func (p *Profile) Registry() *Registry {
	return p.reg
}

// Now returns the current profile clock reading in nanoseconds.
func (p *Profile) Now() int64 {
	return p.clock()
}

// Enabled reports whether events are currently being accumulated.
func (p *Profile) Enabled() bool {
	return p.state.Load()&1 == 1
}

// Enable starts accumulating events. Enabling an enabled profile logs a
// warning and changes nothing.
func (p *Profile) Enable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Load()&1 == 1 {
		p.log.Warn("Duplicate enable call")
		return
	}
	p.enabledAt = p.clock()
	p.state.Add(1)
}

// Disable stops accumulating events and adds the elapsed enabled span to
// the profile's total time. Disabling a disabled profile logs a warning
// and changes nothing.
func (p *Profile) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Load()&1 == 0 {
		p.log.Warn("Duplicate disable call")
		return
	}
	p.state.Add(1)
	p.totalNS += p.clock() - p.enabledAt
}

// TotalTime returns the accumulated duration of completed enabled spans.
func (p *Profile) TotalTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.totalNS)
}

// Trackers returns the number of live trackers.
func (p *Profile) Trackers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trackers
}

func (p *Profile) addTracker(delta int) {
	p.mu.Lock()
	p.trackers += delta
	p.mu.Unlock()
}

// Merge consolidates every tracker's accumulated timing into a Dataset.
// Exact totals require the profile to be disabled first; merging while
// trackers still write yields a best-effort snapshot.
func (p *Profile) Merge() *Dataset {
	p.mu.Lock()
	total := p.totalNS
	p.mu.Unlock()
	return mergeTimings(p.reg, total)
}
