package report

import (
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/lineprof/lineprof/pkg/profiler"
)

// demoDataset builds a two-unit dataset with a known 20ms total: run in
// main.lua spends 5ms, 2ms and 4ms on its three lines and calls helper
// once for 4ms; helper in lib.lua spends 1ms and 3ms. lib.lua has no
// retrievable source.
func demoDataset(t *testing.T) *profiler.Dataset {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	now := int64(0)
	p := profiler.New(profiler.Options{
		Logger: logger,
		Clock:  func() int64 { return now },
	})

	reg := p.Registry()
	main := reg.GetOrCreateUnit("demo/main.lua")
	lib := reg.GetOrCreateUnit("demo/lib.lua")
	run := reg.GetOrCreateCallable(main, "run", 1)
	helper := reg.GetOrCreateCallable(lib, "helper", 10)
	reg.SetSource(main, profiler.NewStringSource("function run()\n  local x = 1\n  helper()\nend\n"))

	p.Enable()
	tr := p.NewTracker("main")
	tr.Enter(run, 1, 0)
	tr.Step(2, 5_000_000)
	tr.Step(3, 7_000_000)
	tr.Enter(helper, 10, 8_000_000)
	tr.Step(11, 9_000_000)
	tr.Leave(12_000_000)
	tr.Leave(15_000_000)
	now = 20_000_000
	p.Disable()

	return p.Merge()
}

// absolutePathDataset records one unit under an absolute path, for
// exercising path conversion.
func absolutePathDataset(t *testing.T) *profiler.Dataset {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	p := profiler.New(profiler.Options{
		Logger: logger,
		Clock:  func() int64 { return 0 },
	})

	reg := p.Registry()
	unit := reg.GetOrCreateUnit("/srv/app/main.lua")
	run := reg.GetOrCreateCallable(unit, "run", 1)

	p.Enable()
	tr := p.NewTracker("main")
	tr.Enter(run, 1, 0)
	tr.Leave(5_000_000)
	p.Disable()

	return p.Merge()
}
