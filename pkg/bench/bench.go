// Package bench measures the profiler's own per-event overhead with
// synthetic workloads, so users can judge how much instrumentation the
// traced program can afford.
package bench

import (
	"fmt"
	"io"
	"math"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/lineprof/lineprof/pkg/profiler"
)

// Options configures a benchmark run.
type Options struct {
	// Events is the number of profiler events issued per iteration.
	Events int
	// Iterations is how many times each scenario runs.
	Iterations int
	// Warmup iterations are discarded.
	Warmup int
	// Depth is the synthetic call stack depth.
	Depth int
}

// DefaultOptions returns the benchmark defaults.
func DefaultOptions() Options {
	return Options{
		Events:     100_000,
		Iterations: 10,
		Warmup:     2,
		Depth:      8,
	}
}

// Result holds the per-event cost distribution of one scenario.
type Result struct {
	Operation string
	PerEvent  []time.Duration
	P50       time.Duration
	P95       time.Duration
	P99       time.Duration
}

// EventsPerSecond derives sustained throughput from the median cost.
func (r Result) EventsPerSecond() float64 {
	if r.P50 <= 0 {
		return 0
	}
	return float64(time.Second) / float64(r.P50)
}

// Overhead holds the tool's own resource usage after a run.
type Overhead struct {
	AllocBytes uint64
	AllocCount uint64
	GCPauses   uint32
}

var (
	benchTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	benchHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	benchDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type scenario struct {
	name string
	run  func(opts Options) time.Duration
}

// Run benchmarks the deterministic event path and the statistic
// sampling path, returning one result per scenario.
func Run(opts Options) []Result {
	if opts.Events <= 0 {
		opts.Events = DefaultOptions().Events
	}
	if opts.Iterations <= 0 {
		opts.Iterations = DefaultOptions().Iterations
	}
	if opts.Depth <= 0 {
		opts.Depth = DefaultOptions().Depth
	}

	scenarios := []scenario{
		{name: "enter/leave", run: benchEnterLeave},
		{name: "step", run: benchStep},
		{name: "sample", run: benchSample},
	}

	var results []Result
	for _, sc := range scenarios {
		for i := 0; i < opts.Warmup; i++ {
			sc.run(opts)
		}
		perEvent := make([]time.Duration, opts.Iterations)
		for i := 0; i < opts.Iterations; i++ {
			perEvent[i] = sc.run(opts)
		}
		sort.Slice(perEvent, func(i, j int) bool {
			return perEvent[i] < perEvent[j]
		})
		results = append(results, Result{
			Operation: sc.name,
			PerEvent:  perEvent,
			P50:       percentile(perEvent, 0.50),
			P95:       percentile(perEvent, 0.95),
			P99:       percentile(perEvent, 0.99),
		})
	}
	return results
}

func quietProfileOptions() profiler.Options {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return profiler.Options{Logger: logger}
}

// benchWorkload builds a profile with one unit and depth callables.
func benchWorkload(depth int) (*profiler.Profile, []profiler.CallableID) {
	p := profiler.New(quietProfileOptions())
	reg := p.Registry()
	unit := reg.GetOrCreateUnit("bench/workload.lua")
	fns := make([]profiler.CallableID, depth)
	for i := range fns {
		fns[i] = reg.GetOrCreateCallable(unit, fmt.Sprintf("fn%d", i), i*10+1)
	}
	p.Enable()
	return p, fns
}

func benchEnterLeave(opts Options) time.Duration {
	p, fns := benchWorkload(opts.Depth)
	tr := p.NewTracker("bench")
	events := 0
	start := time.Now()
	for events < opts.Events {
		for i := 0; i < opts.Depth && events < opts.Events; i++ {
			tr.Enter(fns[i], i*10+1, p.Now())
			events++
		}
		for tr.Depth() > 0 && events < opts.Events {
			tr.Leave(p.Now())
			events++
		}
	}
	return time.Since(start) / time.Duration(opts.Events)
}

func benchStep(opts Options) time.Duration {
	p, fns := benchWorkload(opts.Depth)
	tr := p.NewTracker("bench")
	tr.Enter(fns[0], 1, p.Now())
	start := time.Now()
	for i := 0; i < opts.Events; i++ {
		tr.Step(2+i%16, p.Now())
	}
	return time.Since(start) / time.Duration(opts.Events)
}

func benchSample(opts Options) time.Duration {
	s := profiler.NewStatistic(quietProfileOptions())
	reg := s.Registry()
	unit := reg.GetOrCreateUnit("bench/workload.lua")
	stack := make([]profiler.StackSite, opts.Depth)
	for i := range stack {
		fn := reg.GetOrCreateCallable(unit, fmt.Sprintf("fn%d", i), i*10+1)
		stack[i] = profiler.StackSite{Callable: fn, Line: i*10 + 3}
	}
	start := time.Now()
	for i := 0; i < opts.Events; i++ {
		s.Sample(stack)
	}
	return time.Since(start) / time.Duration(opts.Events)
}

// MeasureOverhead snapshots the process allocation counters.
func MeasureOverhead() Overhead {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Overhead{
		AllocBytes: m.TotalAlloc,
		AllocCount: m.Mallocs,
		GCPauses:   m.NumGC,
	}
}

// RenderResults writes a styled digest of benchmark results.
func RenderResults(w io.Writer, results []Result, overhead Overhead) {
	fmt.Fprintln(w, benchTitle.Render("Profiler Overhead Benchmark"))
	fmt.Fprintln(w, benchDim.Render(strings.Repeat("═", 70)))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s %s %s %s\n",
		benchHeader.Render("OPERATION      "),
		benchHeader.Render("P50/EVENT  "),
		benchHeader.Render("P95/EVENT  "),
		benchHeader.Render("P99/EVENT  "),
		benchHeader.Render("EVENTS/SEC"))
	fmt.Fprintln(w, "  "+benchDim.Render(strings.Repeat("─", 70)))

	for _, r := range results {
		fmt.Fprintf(w, "  %-16s %-12v %-12v %-12v %s\n",
			r.Operation, r.P50, r.P95, r.P99,
			humanize.Comma(int64(r.EventsPerSecond())))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, benchTitle.Render("Tool Overhead"))
	fmt.Fprintln(w, benchDim.Render(strings.Repeat("─", 40)))
	fmt.Fprintf(w, "  Memory allocated: %s\n", lipgloss.NewStyle().Bold(true).Render(humanize.IBytes(overhead.AllocBytes)))
	fmt.Fprintf(w, "  Allocations:      %s\n", lipgloss.NewStyle().Bold(true).Render(humanize.Comma(int64(overhead.AllocCount))))
	fmt.Fprintf(w, "  GC pauses:        %s\n", lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d", overhead.GCPauses)))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
