package report

import (
	"fmt"

	"github.com/grafana/regexp"

	"github.com/lineprof/lineprof/pkg/profiler"
)

// Filter selects units by name. Exclude patterns drop matching units,
// include patterns override exclusions. Providing only include patterns
// implies excluding everything else, and patterns match anywhere in the
// unit name.
type Filter struct {
	exclude []*regexp.Regexp
	include []*regexp.Regexp
}

// NewFilter compiles unit name patterns into a filter. A nil filter is
// returned when there is nothing to filter on.
func NewFilter(exclude, include []string) (*Filter, error) {
	if len(include) > 0 && len(exclude) == 0 {
		// Includes alone mean "only these": exclude everything first.
		exclude = []string{""}
	}
	if len(exclude) == 0 {
		return nil, nil
	}
	f := &Filter{}
	for _, pattern := range exclude {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("cannot compile exclude pattern %q: %w", pattern, err)
		}
		f.exclude = append(f.exclude, re)
	}
	for _, pattern := range include {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("cannot compile include pattern %q: %w", pattern, err)
		}
		f.include = append(f.include, re)
	}
	return f, nil
}

// Keep reports whether a unit name survives the filter.
func (f *Filter) Keep(name string) bool {
	if f == nil {
		return true
	}
	excluded := false
	for _, re := range f.exclude {
		if re.MatchString(name) {
			excluded = true
			break
		}
	}
	if !excluded {
		return true
	}
	for _, re := range f.include {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// Apply returns a dataset holding only the units that survive the
// filter; the original dataset is left untouched. Total time is
// preserved, so percentages still relate to the whole recorded run.
func (f *Filter) Apply(ds *profiler.Dataset) *profiler.Dataset {
	if f == nil {
		return ds
	}
	filtered := *ds
	filtered.Units = nil
	for _, u := range ds.Units {
		if f.Keep(u.Name) {
			filtered.Units = append(filtered.Units, u)
		}
	}
	return &filtered
}
