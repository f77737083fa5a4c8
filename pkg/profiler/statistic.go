package profiler

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// StackSite is one frame of a sampled stack: the callable executing and
// its current line.
type StackSite struct {
	Callable CallableID
	Line     int
}

// StatisticProfile aggregates periodic stack samples. Samples commit
// zero-duration hits and call edges; rendering weights sites by hit
// count instead of measured time.
//
// All samples must come from a single writer context. The Sampler's
// goroutine is that context in live use; trace replay feeds samples from
// its demultiplexing goroutine.
type StatisticProfile struct {
	reg   *Registry
	log   *logrus.Logger
	cache scopeCache

	mu      sync.Mutex
	totalNS int64
}

// NewStatistic creates an empty statistic profile.
func NewStatistic(opts Options) *StatisticProfile {
	reg := NewRegistry()
	if opts.UnitNamer != nil {
		reg.SetNamer(opts.UnitNamer)
	}
	return &StatisticProfile{
		reg:   reg,
		log:   opts.logger(),
		cache: newScopeCache(reg),
	}
}

// Registry returns the profile's unit registry.
func (s *StatisticProfile) Registry() *Registry {
	return s.reg
}

// Sample commits one observation of a stack, innermost site first: a
// zero-duration hit for the innermost line and a zero-duration call edge
// for each caller/callee pair walking outward.
func (s *StatisticProfile) Sample(stack []StackSite) {
	if len(stack) == 0 {
		return
	}
	inner := stack[0]
	sc := s.cache.resolve(inner.Callable)
	sc.timing.AddHit(inner.Callable, inner.Line, 0)
	callee := inner.Callable
	for _, site := range stack[1:] {
		caller := s.cache.resolve(site.Callable)
		caller.timing.AddCall(site.Callable, site.Line, callee, 0)
		callee = site.Callable
	}
}

// TotalTime returns the accumulated duration of completed sampling
// sessions.
func (s *StatisticProfile) TotalTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.totalNS)
}

func (s *StatisticProfile) addSession(d time.Duration) {
	s.mu.Lock()
	s.totalNS += int64(d)
	s.mu.Unlock()
}

func (s *StatisticProfile) resetTotal() {
	s.mu.Lock()
	s.totalNS = 0
	s.mu.Unlock()
}

// Merge consolidates accumulated samples into a Dataset.
func (s *StatisticProfile) Merge() *Dataset {
	s.mu.Lock()
	total := s.totalNS
	s.mu.Unlock()
	return mergeTimings(s.reg, total)
}
