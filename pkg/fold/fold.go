// Package fold converts trace streams into folded stack lines and
// renders them as flame graph SVGs. Folded output is one line per
// distinct stack, "unit:func;unit:func;... weight", root frame first,
// the format flame graph tooling exchanges.
package fold

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/lineprof/lineprof/pkg/trace"
)

type threadState struct {
	stack []string
	lastT int64
	timed bool
}

func (ts *threadState) attribute(stacks map[string]int64, t int64) {
	if ts.timed && len(ts.stack) > 0 && t > ts.lastT {
		stacks[strings.Join(ts.stack, ";")] += t - ts.lastT
	}
	ts.lastT = t
	ts.timed = true
}

// Fold aggregates a trace stream into folded stacks on w. Deterministic
// events weigh stacks by elapsed nanoseconds, sample records weigh them
// by occurrence count; a stream mixing both folds both weights.
func Fold(r *trace.Reader, w io.Writer) error {
	units := make(map[uint32]string)
	labels := make(map[uint32]string)
	threads := make(map[int64]*threadState)
	stacks := make(map[string]int64)

	state := func(tid int64) *threadState {
		ts, ok := threads[tid]
		if !ok {
			ts = &threadState{}
			threads[tid] = ts
		}
		return ts
	}

	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		switch rec.Kind {
		case trace.KindUnit:
			units[rec.Unit] = rec.Name
		case trace.KindFunc:
			unit, ok := units[rec.Unit]
			if !ok {
				return fmt.Errorf("cannot fold trace line %d: function %q references unknown unit id %d", r.Line(), rec.Name, rec.Unit)
			}
			labels[rec.Func] = unit + ":" + rec.Name
		case trace.KindEnter:
			label, ok := labels[rec.Func]
			if !ok {
				return fmt.Errorf("cannot fold trace line %d: unknown function id %d", r.Line(), rec.Func)
			}
			ts := state(rec.Thread)
			ts.attribute(stacks, rec.Time)
			ts.stack = append(ts.stack, label)
		case trace.KindStep:
			state(rec.Thread).attribute(stacks, rec.Time)
		case trace.KindLeave:
			ts := state(rec.Thread)
			if len(ts.stack) == 0 {
				return fmt.Errorf("cannot fold trace line %d: stack underflow on thread %d", r.Line(), rec.Thread)
			}
			ts.attribute(stacks, rec.Time)
			ts.stack = ts.stack[:len(ts.stack)-1]
		case trace.KindSample:
			key, err := sampleKey(rec.Stack, labels)
			if err != nil {
				return fmt.Errorf("cannot fold trace line %d: %w", r.Line(), err)
			}
			if key != "" {
				stacks[key]++
			}
		}
	}

	return writeFolded(w, stacks)
}

// sampleKey joins a sample stack into a folded key, reversing the
// innermost-first record order into root-first.
func sampleKey(sites []trace.Site, labels map[uint32]string) (string, error) {
	if len(sites) == 0 {
		return "", nil
	}
	frames := make([]string, len(sites))
	for i, site := range sites {
		label, ok := labels[site.Func]
		if !ok {
			return "", fmt.Errorf("unknown function id %d", site.Func)
		}
		frames[len(sites)-1-i] = label
	}
	return strings.Join(frames, ";"), nil
}

func writeFolded(w io.Writer, stacks map[string]int64) error {
	keys := make([]string, 0, len(stacks))
	for k := range stacks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s %d\n", k, stacks[k]); err != nil {
			return fmt.Errorf("cannot write folded stacks: %w", err)
		}
	}
	return nil
}
