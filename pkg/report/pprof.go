package report

import (
	"fmt"
	"io"
	"time"

	"github.com/google/pprof/profile"

	"github.com/lineprof/lineprof/pkg/profiler"
)

// Pprof writes the dataset as a gzip-compressed pprof protobuf with two
// sample types: line hits as a count and exclusive line time in
// nanoseconds. Every (callable, line) pair becomes one flat sample, so
// pprof tooling aggregates by function and renders line granularity
// under -lines.
func Pprof(w io.Writer, ds *profiler.Dataset, opts Options) error {
	p := buildProfile(ds, opts)
	if err := p.CheckValid(); err != nil {
		return fmt.Errorf("cannot assemble pprof profile: %w", err)
	}
	if err := p.Write(w); err != nil {
		return fmt.Errorf("cannot write pprof profile: %w", err)
	}
	return nil
}

type locationKey struct {
	callable profiler.CallableID
	line     int
}

func buildProfile(ds *profiler.Dataset, opts Options) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "hits", Unit: "count"},
			{Type: "time", Unit: "nanoseconds"},
		},
		DefaultSampleType: "time",
		TimeNanos:         time.Now().UnixNano(),
		DurationNanos:     ds.TotalTime.Nanoseconds(),
		PeriodType:        &profile.ValueType{Type: "time", Unit: "nanoseconds"},
		Period:            1,
	}
	if opts.CommandLine != "" {
		p.Comments = append(p.Comments, "command line: "+opts.CommandLine)
	}

	functions := make(map[profiler.CallableID]*profile.Function)
	function := func(id profiler.CallableID) *profile.Function {
		if fn, ok := functions[id]; ok {
			return fn
		}
		c := ds.Callable(id)
		fn := &profile.Function{ID: uint64(len(p.Function) + 1)}
		if c != nil {
			fn.Name = c.Name
			fn.SystemName = c.Name
			fn.Filename = ds.UnitName(c.Unit)
			fn.StartLine = int64(c.FirstLine)
			if fn.Name == "" {
				fn.Name = fn.Filename
				fn.SystemName = fn.Filename
			}
		}
		p.Function = append(p.Function, fn)
		functions[id] = fn
		return fn
	}

	locations := make(map[locationKey]*profile.Location)
	location := func(id profiler.CallableID, line int) *profile.Location {
		key := locationKey{callable: id, line: line}
		if loc, ok := locations[key]; ok {
			return loc
		}
		loc := &profile.Location{
			ID:   uint64(len(p.Location) + 1),
			Line: []profile.Line{{Function: function(id), Line: int64(line)}},
		}
		p.Location = append(p.Location, loc)
		locations[key] = loc
		return loc
	}

	for _, u := range ds.Units {
		for _, ls := range u.Lines {
			p.Sample = append(p.Sample, &profile.Sample{
				Location: []*profile.Location{location(ls.Callable, ls.Line)},
				Value:    []int64{ls.Hits, ls.Time.Nanoseconds()},
			})
		}
	}
	return p
}
