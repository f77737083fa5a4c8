package trace

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lineprof/lineprof/pkg/profiler"
)

// ReplayOptions tunes how a trace stream is fed into a profile.
type ReplayOptions struct {
	// Logger receives replay diagnostics; nil falls back to a default
	// logger at warn level.
	Logger *logrus.Logger
	// Threads restricts replay to the listed thread ids; empty replays
	// every thread in the stream.
	Threads []int64
	// Buffer is the per-thread event channel capacity; zero means 1024.
	Buffer int
}

func (o ReplayOptions) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return log
}

func (o ReplayOptions) buffer() int {
	if o.Buffer > 0 {
		return o.Buffer
	}
	return 1024
}

// Summary describes what a replay consumed from a stream.
type Summary struct {
	// Records is the total number of records decoded, declarations
	// included.
	Records int64
	// Threads is the number of distinct threads that produced events.
	Threads int
	// Samples is the number of sample records applied.
	Samples int64
	// Skipped counts records dropped by thread filtering, by mode
	// mismatch, or because their kind is unknown.
	Skipped int64
	// Span is the distance between the earliest and latest event
	// timestamps, the observed duration of the recorded run.
	Span time.Duration
	// Meta holds the stream's key/value annotations, last value wins.
	Meta map[string]string

	spanSet    bool
	minT, maxT int64
}

func (s *Summary) observe(t int64) {
	if !s.spanSet {
		s.minT, s.maxT, s.spanSet = t, t, true
		return
	}
	if t < s.minT {
		s.minT = t
	}
	if t > s.maxT {
		s.maxT = t
	}
}

func (s *Summary) finish() {
	if s.spanSet {
		s.Span = time.Duration(s.maxT - s.minT)
	}
}

// declTable remaps stream-local unit and function ids onto registry
// handles. Every unit declaration mints a fresh identity, so two
// streams merged into one registry keep their homonym units apart.
type declTable struct {
	reg   *profiler.Registry
	units map[uint32]profiler.UnitID
	funcs map[uint32]profiler.CallableID
}

func newDeclTable(reg *profiler.Registry) declTable {
	return declTable{
		reg:   reg,
		units: make(map[uint32]profiler.UnitID),
		funcs: make(map[uint32]profiler.CallableID),
	}
}

func (d *declTable) declare(rec Record, line int) error {
	switch rec.Kind {
	case KindUnit:
		if prev, ok := d.units[rec.Unit]; ok {
			if d.reg.Unit(prev).Name != rec.Name {
				return fmt.Errorf("cannot replay trace line %d: unit id %d redeclared as %q", line, rec.Unit, rec.Name)
			}
			return nil
		}
		d.units[rec.Unit] = d.reg.CreateUnit(rec.Name)
	case KindFunc:
		unit, ok := d.units[rec.Unit]
		if !ok {
			return fmt.Errorf("cannot replay trace line %d: function %q references unknown unit id %d", line, rec.Name, rec.Unit)
		}
		id := d.reg.GetOrCreateCallable(unit, rec.Name, rec.Line)
		if prev, ok := d.funcs[rec.Func]; ok && prev != id {
			return fmt.Errorf("cannot replay trace line %d: function id %d redeclared as %q", line, rec.Func, rec.Name)
		}
		d.funcs[rec.Func] = id
	}
	return nil
}

func (d *declTable) callable(id uint32) (profiler.CallableID, bool) {
	cid, ok := d.funcs[id]
	return cid, ok
}

const (
	evEnter = iota
	evStep
	evLeave
)

type threadEvent struct {
	kind int
	fn   profiler.CallableID
	line int
	t    int64
}

// Replay feeds a deterministic trace stream into p, driving one tracker
// per recorded thread from its own goroutine so stack discipline is
// checked exactly as it was recorded. Sample records are counted as
// skipped. The profile must be enabled before replay; the observed
// duration of the recorded run is returned in the summary rather than
// accumulated on the profile.
func Replay(ctx context.Context, r *Reader, p *profiler.Profile, opts ReplayOptions) (*Summary, error) {
	if !p.Enabled() {
		return nil, fmt.Errorf("cannot replay into a disabled profile")
	}
	log := opts.logger()
	only := threadFilter(opts.Threads)
	decl := newDeclTable(p.Registry())
	sum := &Summary{Meta: make(map[string]string)}

	g, ctx := errgroup.WithContext(ctx)
	channels := make(map[int64]chan threadEvent)

	g.Go(func() error {
		defer func() {
			for _, ch := range channels {
				close(ch)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			rec, err := r.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			sum.Records++
			switch rec.Kind {
			case KindUnit, KindFunc:
				if err := decl.declare(rec, r.Line()); err != nil {
					return err
				}
			case KindMeta:
				sum.Meta[rec.Key] = rec.Value
			case KindEnter, KindStep, KindLeave:
				sum.observe(rec.Time)
				if only != nil && !only[rec.Thread] {
					sum.Skipped++
					continue
				}
				ev := threadEvent{line: rec.Line, t: rec.Time}
				switch rec.Kind {
				case KindEnter:
					fn, ok := decl.callable(rec.Func)
					if !ok {
						return fmt.Errorf("cannot replay trace line %d: unknown function id %d", r.Line(), rec.Func)
					}
					ev.kind, ev.fn = evEnter, fn
				case KindStep:
					ev.kind = evStep
				case KindLeave:
					ev.kind = evLeave
				}
				ch, ok := channels[rec.Thread]
				if !ok {
					ch = make(chan threadEvent, opts.buffer())
					channels[rec.Thread] = ch
					g.Go(runThread(p, rec.Thread, ch))
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			case KindSample:
				sum.observe(rec.Time)
				sum.Skipped++
			default:
				sum.Skipped++
				log.WithField("kind", rec.Kind).Debug("Skipping unknown trace record kind")
			}
		}
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	sum.Threads = len(channels)
	sum.finish()
	return sum, nil
}

func runThread(p *profiler.Profile, tid int64, ch <-chan threadEvent) func() error {
	return func() error {
		tr := p.NewTracker(fmt.Sprintf("thread-%d", tid))
		defer tr.Close()
		for ev := range ch {
			switch ev.kind {
			case evEnter:
				tr.Enter(ev.fn, ev.line, ev.t)
			case evStep:
				tr.Step(ev.line, ev.t)
			case evLeave:
				tr.Leave(ev.t)
			}
		}
		return nil
	}
}

// ReplayStatistic feeds the sample records of a trace stream into s,
// applying them from the calling goroutine. Deterministic event records
// are counted as skipped.
func ReplayStatistic(ctx context.Context, r *Reader, s *profiler.StatisticProfile, opts ReplayOptions) (*Summary, error) {
	log := opts.logger()
	only := threadFilter(opts.Threads)
	decl := newDeclTable(s.Registry())
	sum := &Summary{Meta: make(map[string]string)}
	threads := make(map[int64]struct{})

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		sum.Records++
		switch rec.Kind {
		case KindUnit, KindFunc:
			if err := decl.declare(rec, r.Line()); err != nil {
				return nil, err
			}
		case KindMeta:
			sum.Meta[rec.Key] = rec.Value
		case KindSample:
			sum.observe(rec.Time)
			if only != nil && !only[rec.Thread] {
				sum.Skipped++
				continue
			}
			threads[rec.Thread] = struct{}{}
			sites := make([]profiler.StackSite, len(rec.Stack))
			for i, fr := range rec.Stack {
				fn, ok := decl.callable(fr.Func)
				if !ok {
					return nil, fmt.Errorf("cannot replay trace line %d: unknown function id %d", r.Line(), fr.Func)
				}
				sites[i] = profiler.StackSite{Callable: fn, Line: fr.Line}
			}
			s.Sample(sites)
			sum.Samples++
		case KindEnter, KindStep, KindLeave:
			sum.observe(rec.Time)
			sum.Skipped++
		default:
			sum.Skipped++
			log.WithField("kind", rec.Kind).Debug("Skipping unknown trace record kind")
		}
	}
	sum.Threads = len(threads)
	sum.finish()
	return sum, nil
}

func threadFilter(ids []int64) map[int64]bool {
	if len(ids) == 0 {
		return nil
	}
	only := make(map[int64]bool, len(ids))
	for _, id := range ids {
		only[id] = true
	}
	return only
}
