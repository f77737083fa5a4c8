package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lineFor returns the merged stats of one line, summed across callables.
func lineFor(t *testing.T, ds *Dataset, unit UnitID, line int) (int64, time.Duration) {
	t.Helper()
	u := ds.Unit(unit)
	require.NotNil(t, u, "unit %d has no stats", unit)
	return u.HitStatsFor(line)
}

// callFor returns the merged stats of one call edge.
func callFor(t *testing.T, ds *Dataset, unit UnitID, line int, callee CallableID) (int64, time.Duration) {
	t.Helper()
	u := ds.Unit(unit)
	require.NotNil(t, u, "unit %d has no stats", unit)
	for _, call := range u.Calls {
		if call.Line == line && call.Callee == callee {
			return call.Count, call.Time
		}
	}
	t.Fatalf("no call edge at %d:%d -> %d", unit, line, callee)
	return 0, 0
}

func TestTracker_SingleFrameTiming(t *testing.T) {
	p, clk, _ := newTestProfile(t)
	reg := p.Registry()
	unit := reg.GetOrCreateUnit("main.lua")
	run := reg.GetOrCreateCallable(unit, "run", 1)

	clk.Set(0)
	p.Enable()
	tr := p.NewTracker("main")

	tr.Enter(run, 1, 0)
	tr.Step(2, 5)
	tr.Step(3, 7)
	tr.Leave(10)

	clk.Set(10)
	p.Disable()
	ds := p.Merge()

	hits, d := lineFor(t, ds, unit, 1)
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, 5*time.Nanosecond, d)
	hits, d = lineFor(t, ds, unit, 2)
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, 2*time.Nanosecond, d)
	hits, d = lineFor(t, ds, unit, 3)
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, 3*time.Nanosecond, d)

	u := ds.Unit(unit)
	assert.Equal(t, int64(3), u.TotalHits)
	assert.Equal(t, 10*time.Nanosecond, u.TotalTime)
	// Root frames have no caller, so no call edge is recorded.
	assert.Empty(t, u.Calls)
	assert.Equal(t, 10*time.Nanosecond, ds.TotalTime)
}

func TestTracker_LoopHitsCountEveryIteration(t *testing.T) {
	p, clk, _ := newTestProfile(t)
	reg := p.Registry()
	unit := reg.GetOrCreateUnit("loop.lua")
	run := reg.GetOrCreateCallable(unit, "run", 1)

	clk.Set(0)
	p.Enable()
	tr := p.NewTracker("main")

	// A three-line body looping 100 times, 1ns per line.
	now := int64(0)
	tr.Enter(run, 1, now)
	for i := 0; i < 100; i++ {
		now++
		tr.Step(2, now)
		now++
		tr.Step(3, now)
		now++
		if i < 99 {
			tr.Step(1, now)
		} else {
			tr.Leave(now)
		}
	}

	clk.Set(now)
	p.Disable()
	ds := p.Merge()

	for _, line := range []int{1, 2, 3} {
		hits, d := lineFor(t, ds, unit, line)
		assert.Equal(t, int64(100), hits, "line %d", line)
		assert.Equal(t, 100*time.Nanosecond, d, "line %d", line)
	}
	u := ds.Unit(unit)
	assert.Empty(t, u.Calls)
	assert.Equal(t, 300*time.Nanosecond, u.TotalTime)
	assert.Equal(t, ds.TotalTime, u.TotalTime)
}

func TestTracker_CallerLineExcludesCalleeSpan(t *testing.T) {
	p, clk, _ := newTestProfile(t)
	reg := p.Registry()
	unit := reg.GetOrCreateUnit("main.lua")
	outer := reg.GetOrCreateCallable(unit, "outer", 1)
	inner := reg.GetOrCreateCallable(unit, "inner", 20)

	clk.Set(0)
	p.Enable()
	tr := p.NewTracker("main")

	tr.Enter(outer, 1, 0)
	tr.Step(2, 10)       // line 1 ran 10ns
	tr.Enter(inner, 20, 15)
	tr.Step(21, 18)      // line 20 ran 3ns
	tr.Leave(25)         // line 21 ran 7ns, inner span 10ns
	tr.Step(3, 30)       // line 2: 15ns wall minus the 10ns callee span
	tr.Leave(32)

	clk.Set(32)
	p.Disable()
	ds := p.Merge()

	_, l2 := lineFor(t, ds, unit, 2)
	assert.Equal(t, 10*time.Nanosecond, l2)
	count, d := callFor(t, ds, unit, 2, inner)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 10*time.Nanosecond, d)

	// Line durations are exclusive, so they sum to the root span.
	_, l1 := lineFor(t, ds, unit, 1)
	_, l3 := lineFor(t, ds, unit, 3)
	_, l20 := lineFor(t, ds, unit, 20)
	_, l21 := lineFor(t, ds, unit, 21)
	assert.Equal(t, 32*time.Nanosecond, l1+l2+l3+l20+l21)
}

func TestTracker_RepeatedCallsAccumulate(t *testing.T) {
	p, clk, _ := newTestProfile(t)
	reg := p.Registry()
	unit := reg.GetOrCreateUnit("main.lua")
	outer := reg.GetOrCreateCallable(unit, "outer", 1)
	inner := reg.GetOrCreateCallable(unit, "inner", 20)

	clk.Set(0)
	p.Enable()
	tr := p.NewTracker("main")

	tr.Enter(outer, 1, 0)
	tr.Step(2, 1)
	tr.Enter(inner, 20, 2)
	tr.Leave(5)
	tr.Enter(inner, 20, 6)
	tr.Leave(10)
	tr.Leave(12)

	clk.Set(12)
	p.Disable()
	ds := p.Merge()

	count, d := callFor(t, ds, unit, 2, inner)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 7*time.Nanosecond, d)
	hits, _ := lineFor(t, ds, unit, 20)
	assert.Equal(t, int64(2), hits)
}

func TestTracker_RecursiveEdgeTotalsOutermostSpan(t *testing.T) {
	p, clk, _ := newTestProfile(t)
	reg := p.Registry()
	unit := reg.GetOrCreateUnit("fib.lua")
	f := reg.GetOrCreateCallable(unit, "fib", 1)
	main := reg.GetOrCreateCallable(unit, "main", 10)

	clk.Set(0)
	p.Enable()
	tr := p.NewTracker("main")

	tr.Enter(main, 10, 0)
	tr.Step(11, 0)
	tr.Enter(f, 1, 10) // depth 1, span will be 10..22
	tr.Step(2, 12)
	tr.Enter(f, 1, 15) // depth 2, span 15..20
	tr.Step(2, 16)
	tr.Enter(f, 1, 17) // depth 3, span 17..19
	tr.Step(2, 18)
	tr.Leave(19)
	tr.Leave(20)
	tr.Leave(22)
	tr.Leave(25)

	clk.Set(30)
	p.Disable()
	ds := p.Merge()

	// The self-recursive edge counts every invocation but its duration
	// telescopes to the outermost nested span.
	count, d := callFor(t, ds, unit, 2, f)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 5*time.Nanosecond, d)

	// The call from main sees the whole outermost span.
	count, d = callFor(t, ds, unit, 11, f)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 12*time.Nanosecond, d)

	hits, d := lineFor(t, ds, unit, 1)
	assert.Equal(t, int64(3), hits)
	assert.Equal(t, 4*time.Nanosecond, d)
	hits, d = lineFor(t, ds, unit, 2)
	assert.Equal(t, int64(3), hits)
	assert.Equal(t, 8*time.Nanosecond, d)
	hits, d = lineFor(t, ds, unit, 11)
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, 13*time.Nanosecond, d)
}

func TestTracker_UnderflowDisablesOnlyThatThread(t *testing.T) {
	p, clk, hook := newTestProfile(t)
	reg := p.Registry()
	unit := reg.GetOrCreateUnit("main.lua")
	run := reg.GetOrCreateCallable(unit, "run", 1)

	clk.Set(0)
	p.Enable()
	bad := p.NewTracker("bad")
	good := p.NewTracker("good")

	bad.Leave(1)
	assert.True(t, bad.Dead())
	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "underflow")
	assert.Equal(t, "bad", hook.LastEntry().Data["thread"])

	// Later events on the dead tracker are dropped.
	bad.Enter(run, 1, 2)
	bad.Leave(3)

	// Other trackers and the profile itself keep working.
	assert.True(t, p.Enabled())
	good.Enter(run, 1, 0)
	good.Leave(5)

	clk.Set(5)
	p.Disable()
	ds := p.Merge()
	hits, _ := lineFor(t, ds, unit, 1)
	assert.Equal(t, int64(1), hits)
}

func TestTracker_DisabledProfileDropsEvents(t *testing.T) {
	p, clk, _ := newTestProfile(t)
	reg := p.Registry()
	unit := reg.GetOrCreateUnit("main.lua")
	run := reg.GetOrCreateCallable(unit, "run", 1)

	clk.Set(0)
	p.Enable()
	tr := p.NewTracker("main")
	tr.Enter(run, 1, 0)
	tr.Leave(5)
	clk.Set(5)
	p.Disable()

	// Dropped: the profile is disabled.
	tr.Enter(run, 1, 6)
	tr.Leave(9)

	ds := p.Merge()
	hits, d := lineFor(t, ds, unit, 1)
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, 5*time.Nanosecond, d)
}

func TestTracker_ReenableResetsStack(t *testing.T) {
	p, clk, _ := newTestProfile(t)
	reg := p.Registry()
	unit := reg.GetOrCreateUnit("main.lua")
	run := reg.GetOrCreateCallable(unit, "run", 1)

	clk.Set(0)
	p.Enable()
	tr := p.NewTracker("main")
	tr.Enter(run, 1, 0)
	clk.Set(3)
	p.Disable()

	// The frame entered above is abandoned by the disable.
	clk.Set(100)
	p.Enable()
	tr.Enter(run, 1, 100)
	tr.Leave(104)
	clk.Set(104)
	p.Disable()

	ds := p.Merge()
	hits, d := lineFor(t, ds, unit, 1)
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, 4*time.Nanosecond, d)
	assert.False(t, tr.Dead())
	assert.Equal(t, 7*time.Nanosecond, ds.TotalTime)
}

func TestTracker_DepthExcludesSentinel(t *testing.T) {
	p, _, _ := newTestProfile(t)
	reg := p.Registry()
	unit := reg.GetOrCreateUnit("main.lua")
	run := reg.GetOrCreateCallable(unit, "run", 1)

	p.Enable()
	tr := p.NewTracker("main")
	assert.Equal(t, 0, tr.Depth())
	tr.Enter(run, 1, 0)
	assert.Equal(t, 1, tr.Depth())
	tr.Enter(run, 1, 1)
	assert.Equal(t, 2, tr.Depth())
	tr.Leave(2)
	tr.Leave(3)
	assert.Equal(t, 0, tr.Depth())
}
