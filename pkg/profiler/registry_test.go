package profiler

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_InternsUnitsByName(t *testing.T) {
	reg := NewRegistry()

	a := reg.GetOrCreateUnit("scripts/main.lua")
	b := reg.GetOrCreateUnit("scripts/util.lua")
	again := reg.GetOrCreateUnit("scripts/main.lua")

	assert.Equal(t, a, again)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, reg.UnitCount())
	assert.Equal(t, "scripts/main.lua", reg.Unit(a).Name)
}

func TestRegistry_CreateUnitMintsDistinctIdentities(t *testing.T) {
	reg := NewRegistry()

	a := reg.CreateUnit("main.lua")
	b := reg.CreateUnit("main.lua")

	assert.NotEqual(t, a, b)
	assert.Equal(t, "main.lua", reg.Unit(a).Name)
	assert.Equal(t, "main.lua", reg.Unit(b).Name)
	// Interning by name resolves to the first registered identity.
	assert.Equal(t, a, reg.GetOrCreateUnit("main.lua"))
}

func TestRegistry_InternsCallablesByTriple(t *testing.T) {
	reg := NewRegistry()
	unit := reg.GetOrCreateUnit("main.lua")

	f := reg.GetOrCreateCallable(unit, "handle", 10)
	same := reg.GetOrCreateCallable(unit, "handle", 10)
	otherLine := reg.GetOrCreateCallable(unit, "handle", 42)
	otherUnit := reg.GetOrCreateCallable(reg.GetOrCreateUnit("util.lua"), "handle", 10)

	assert.Equal(t, f, same)
	assert.NotEqual(t, f, otherLine)
	assert.NotEqual(t, f, otherUnit)

	c := reg.Callable(f)
	assert.Equal(t, unit, c.Unit)
	assert.Equal(t, "handle", c.Name)
	assert.Equal(t, 10, c.FirstLine)
}

func TestRegistry_EmptyNameIsValid(t *testing.T) {
	reg := NewRegistry()

	id := reg.GetOrCreateUnit("")
	assert.Equal(t, id, reg.GetOrCreateUnit(""))
	assert.Equal(t, "", reg.Unit(id).Name)
}

func TestRegistry_ConcurrentInterningIsStable(t *testing.T) {
	reg := NewRegistry()
	const goroutines = 16
	const names = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < names; i++ {
				name := fmt.Sprintf("unit-%d.lua", i)
				unit := reg.GetOrCreateUnit(name)
				reg.GetOrCreateCallable(unit, "run", i+1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, names, reg.UnitCount())
	require.Equal(t, names, reg.CallableCount())
	for i := 0; i < names; i++ {
		name := fmt.Sprintf("unit-%d.lua", i)
		unit := reg.GetOrCreateUnit(name)
		assert.Equal(t, name, reg.Unit(unit).Name)
	}
}

func TestRegistry_NamerRewritesBeforeInterning(t *testing.T) {
	reg := NewRegistry()
	reg.SetNamer(func(name string) string {
		return strings.TrimPrefix(name, "/srv/app/")
	})

	a := reg.GetOrCreateUnit("/srv/app/main.lua")
	assert.Equal(t, "main.lua", reg.Unit(a).Name)

	// Raw spellings that resolve to the same name intern together.
	assert.Equal(t, a, reg.GetOrCreateUnit("main.lua"))

	fresh := reg.CreateUnit("/srv/app/main.lua")
	assert.NotEqual(t, a, fresh)
	assert.Equal(t, "main.lua", reg.Unit(fresh).Name)
}

func TestProfile_UnitNamerOption(t *testing.T) {
	p := New(Options{UnitNamer: func(name string) string {
		return "app:" + name
	}})
	unit := p.Registry().GetOrCreateUnit("main.lua")
	assert.Equal(t, "app:main.lua", p.Registry().Unit(unit).Name)

	s := NewStatistic(Options{UnitNamer: func(name string) string {
		return "app:" + name
	}})
	unit = s.Registry().GetOrCreateUnit("main.lua")
	assert.Equal(t, "app:main.lua", s.Registry().Unit(unit).Name)
}

func TestRegistry_SetSource(t *testing.T) {
	reg := NewRegistry()
	unit := reg.GetOrCreateUnit("main.lua")

	assert.Nil(t, reg.Source(unit))

	src := NewStringSource("print(1)\nprint(2)\n")
	reg.SetSource(unit, src)
	got := reg.Source(unit)
	require.NotNil(t, got)
	line, ok := got.Line(2)
	assert.True(t, ok)
	assert.Equal(t, "print(2)", line)
}
