package profiler

import "sync"

// UnitID is the interned handle of a unit. Handles are dense, stable and
// never reused within a registry.
type UnitID uint32

// CallableID is the interned handle of a callable.
type CallableID uint32

// Unit is a named namespace of executable lines: a source file, a module,
// a script.
type Unit struct {
	ID   UnitID
	Name string
}

// Callable is a named executable region within a unit.
type Callable struct {
	ID        CallableID
	Unit      UnitID
	Name      string
	FirstLine int
}

type callableKey struct {
	unit      UnitID
	name      string
	firstLine int
}

// Registry interns units and callables and keeps track of every
// accumulator registered against each unit. Registration paths take the
// registry mutex; callers are expected to cache returned handles.
type Registry struct {
	mu        sync.Mutex
	namer     func(string) string
	unitID    map[string]UnitID
	units     []*Unit
	callID    map[callableKey]CallableID
	callables []*Callable
	timings   map[UnitID][]*UnitTiming
	sources   map[UnitID]SourceReader
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		unitID:  make(map[string]UnitID),
		callID:  make(map[callableKey]CallableID),
		timings: make(map[UnitID][]*UnitTiming),
		sources: make(map[UnitID]SourceReader),
	}
}

// SetNamer installs a name resolution hook applied before interning.
// Embedding hosts use it to rewrite raw names from the event source,
// like virtual paths or synthesized names for dynamically compiled
// code. Nil keeps names unchanged. Install the hook before registering
// units; earlier registrations keep their raw names.
func (r *Registry) SetNamer(namer func(string) string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.namer = namer
}

func (r *Registry) resolveName(name string) string {
	if r.namer == nil {
		return name
	}
	return r.namer(name)
}

// GetOrCreateUnit returns the handle for name, registering the unit on
// first use. Equal names always intern to the same handle; names that
// the namer hook maps together intern together.
func (r *Registry) GetOrCreateUnit(name string) UnitID {
	r.mu.Lock()
	defer r.mu.Unlock()
	name = r.resolveName(name)
	if id, ok := r.unitID[name]; ok {
		return id
	}
	return r.createUnit(name)
}

// CreateUnit registers a unit under a fresh handle even when the name is
// already taken. Distinct script instances sharing a file name stay
// distinct this way; Merge disambiguates their display names.
func (r *Registry) CreateUnit(name string) UnitID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createUnit(r.resolveName(name))
}

func (r *Registry) createUnit(name string) UnitID {
	id := UnitID(len(r.units))
	r.units = append(r.units, &Unit{ID: id, Name: name})
	if _, ok := r.unitID[name]; !ok {
		r.unitID[name] = id
	}
	return id
}

// GetOrCreateCallable returns the handle for the (unit, name, firstLine)
// triple, registering the callable on first use.
func (r *Registry) GetOrCreateCallable(unit UnitID, name string, firstLine int) CallableID {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := callableKey{unit: unit, name: name, firstLine: firstLine}
	if id, ok := r.callID[key]; ok {
		return id
	}
	id := CallableID(len(r.callables))
	r.callables = append(r.callables, &Callable{
		ID:        id,
		Unit:      unit,
		Name:      name,
		FirstLine: firstLine,
	})
	r.callID[key] = id
	return id
}

// Unit resolves a handle issued by this registry.
func (r *Registry) Unit(id UnitID) *Unit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.units[id]
}

// Callable resolves a handle issued by this registry.
func (r *Registry) Callable(id CallableID) *Callable {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.callables[id]
}

// SetSource attaches a source accessor to a unit. Units without a source
// still aggregate timing; they just render without source text.
func (r *Registry) SetSource(id UnitID, src SourceReader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[id] = src
}

// Source returns the source accessor attached to a unit, or nil.
func (r *Registry) Source(id UnitID) SourceReader {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sources[id]
}

// UnitCount returns the number of registered units.
func (r *Registry) UnitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.units)
}

// CallableCount returns the number of registered callables.
func (r *Registry) CallableCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.callables)
}

// attach records an accumulator as one of the writer contexts of a unit.
func (r *Registry) attach(id UnitID, ut *UnitTiming) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timings[id] = append(r.timings[id], ut)
}

type registrySnapshot struct {
	units     []*Unit
	callables []*Callable
	timings   map[UnitID][]*UnitTiming
	sources   map[UnitID]SourceReader
}

// snapshot copies the registry's bookkeeping so the merge engine can walk
// accumulators without holding the registry mutex.
func (r *Registry) snapshot() registrySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := registrySnapshot{
		units:     append([]*Unit(nil), r.units...),
		callables: append([]*Callable(nil), r.callables...),
		timings:   make(map[UnitID][]*UnitTiming, len(r.timings)),
		sources:   make(map[UnitID]SourceReader, len(r.sources)),
	}
	for id, list := range r.timings {
		snap.timings[id] = append([]*UnitTiming(nil), list...)
	}
	for id, src := range r.sources {
		snap.sources[id] = src
	}
	return snap
}

// scope is the cached resolution of one callable: its metadata, its
// unit's display name and the writer's accumulator for its unit.
type scope struct {
	callable *Callable
	unitName string
	timing   *UnitTiming
}

// scopeCache memoises callable resolution and per-unit accumulator
// creation for one writer context, so repeated events skip the registry
// mutex after the first touch.
type scopeCache struct {
	reg     *Registry
	scopes  map[CallableID]scope
	timings map[UnitID]*UnitTiming
}

func newScopeCache(reg *Registry) scopeCache {
	return scopeCache{
		reg:     reg,
		scopes:  make(map[CallableID]scope),
		timings: make(map[UnitID]*UnitTiming),
	}
}

func (c *scopeCache) resolve(id CallableID) scope {
	if sc, ok := c.scopes[id]; ok {
		return sc
	}
	callable := c.reg.Callable(id)
	timing, ok := c.timings[callable.Unit]
	if !ok {
		timing = newUnitTiming(callable.Unit)
		c.timings[callable.Unit] = timing
		c.reg.attach(callable.Unit, timing)
	}
	sc := scope{
		callable: callable,
		unitName: c.reg.Unit(callable.Unit).Name,
		timing:   timing,
	}
	c.scopes[id] = sc
	return sc
}
