package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/lineprof/lineprof/pkg/profiler"
)

type jsonCallable struct {
	ID        profiler.CallableID `json:"id"`
	Unit      string              `json:"unit"`
	Name      string              `json:"name"`
	FirstLine int                 `json:"first_line"`
}

type jsonDocument struct {
	CommandLine string                `json:"command_line,omitempty"`
	TotalTimeNS int64                 `json:"total_time_ns"`
	Writers     int                   `json:"writers"`
	Units       []*profiler.UnitStats `json:"units"`
	Callables   []jsonCallable        `json:"callables"`
}

// JSON writes the dataset as indented JSON, with a callable index so
// consumers can resolve the handles referenced by lines and calls.
func JSON(w io.Writer, ds *profiler.Dataset, opts Options) error {
	doc := jsonDocument{
		CommandLine: opts.CommandLine,
		TotalTimeNS: ds.TotalTime.Nanoseconds(),
		Writers:     ds.Writers,
		Units:       ds.Units,
	}
	for _, c := range ds.Callables() {
		doc.Callables = append(doc.Callables, jsonCallable{
			ID:        c.ID,
			Unit:      ds.UnitName(c.Unit),
			Name:      c.Name,
			FirstLine: c.FirstLine,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("cannot encode dataset: %w", err)
	}
	return nil
}
