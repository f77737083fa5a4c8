// Package report renders merged datasets into the supported output
// formats: annotated source, callgrind, pprof protobuf, terminal
// summary and JSON.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/lineprof/lineprof/pkg/profiler"
)

// Options are shared across the text renderers.
type Options struct {
	// CommandLine, when set, is echoed into the output header as the
	// command that produced the profile.
	CommandLine string
	// RelativePaths strips absolute components from unit paths in
	// callgrind output, so viewers resolve sources against their own
	// tree.
	RelativePaths bool
}

// sink wraps a writer with a sticky error so renderers can format
// freely and report the first failure once.
type sink struct {
	w   io.Writer
	err error
}

func (s *sink) printf(format string, args ...interface{}) {
	if s.err != nil {
		return
	}
	if _, err := fmt.Fprintf(s.w, format, args...); err != nil {
		s.err = fmt.Errorf("cannot write report: %w", err)
	}
}

// funcLabel names a callable for callgrind and annotate cross
// references: "name:firstline", or the unit path when the callable is
// anonymous.
func funcLabel(c *profiler.Callable, unitPath string) string {
	if c == nil || c.Name == "" {
		return unitPath
	}
	return fmt.Sprintf("%s:%d", c.Name, c.FirstLine)
}

// RelPath strips volume and leading separators from a unit path,
// normalizing separators to "/" for viewer compatibility.
func RelPath(name string) string {
	name = filepath.ToSlash(name)
	if vol := filepath.VolumeName(name); vol != "" {
		name = name[len(vol):]
	}
	return strings.TrimLeft(name, "/")
}

func pathConverter(relative bool) func(string) string {
	if relative {
		return RelPath
	}
	return filepath.ToSlash
}

func percent(value, scale float64) float64 {
	if scale == 0 {
		return 0
	}
	return value * 100 / scale
}

// lineInfo is one renderable line of a unit: its source text when
// known, the callable that owns it, aggregated hits and the calls
// originating from it.
type lineInfo struct {
	lineno   int
	callable *profiler.Callable
	hits     int64
	duration float64
	text     string
	haveText bool
	calls    []profiler.CallStats
}

// unitLines walks a unit from line 1 past the end of its statistics,
// pairing source text with aggregated timings. Lines beyond both the
// source text and the recorded activity terminate the walk, so units
// whose stats outrun their source still render fully.
func unitLines(ds *profiler.Dataset, u *profiler.UnitStats) []lineInfo {
	callsByLine := u.CallsByLine()
	owner := make(map[int]*profiler.Callable)
	for _, ls := range u.Lines {
		if _, ok := owner[ls.Line]; !ok {
			owner[ls.Line] = ds.Callable(ls.Callable)
		}
	}

	lastStatLine := u.LastLine()
	var out []lineInfo
	for lineno := 1; ; lineno++ {
		text, haveText := "", false
		if u.Source != nil {
			text, haveText = u.Source.Line(lineno)
		}
		hits, duration := u.HitStatsFor(lineno)
		calls := callsByLine[lineno]
		if !haveText && lineno > lastStatLine {
			break
		}
		callable := owner[lineno]
		if callable == nil && len(calls) > 0 {
			callable = ds.Callable(calls[0].Caller)
		}
		out = append(out, lineInfo{
			lineno:   lineno,
			callable: callable,
			hits:     hits,
			duration: duration.Seconds(),
			text:     text,
			haveText: haveText,
			calls:    calls,
		})
	}
	return out
}
