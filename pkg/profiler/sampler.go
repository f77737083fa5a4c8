package profiler

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ThreadStack is the stack of one thread as observed by a StackSource.
type ThreadStack struct {
	// ID is the host's identifier for the thread.
	ID int64

	// Name labels the thread in reports and logs.
	Name string

	// Sites lists the stack innermost-first.
	Sites []StackSite
}

// StackSource exposes the live stacks of a host's threads to a Sampler.
// Implementations must not report the goroutine calling Stacks.
type StackSource interface {
	Stacks() []ThreadStack
}

// SamplerOptions configures a Sampler.
type SamplerOptions struct {
	// Period is the time between consecutive samples. Smaller periods
	// cost more overhead but become meaningful sooner.
	Period time.Duration

	// Single restricts sampling to the thread identified by Creator.
	Single bool

	// Creator is the thread the sampler was created for, matched against
	// ThreadStack.ID when Single is set.
	Creator int64
}

// DefaultSamplerOptions returns sampler defaults.
func DefaultSamplerOptions() SamplerOptions {
	return SamplerOptions{
		Period: time.Millisecond,
	}
}

type samplerState int32

const (
	samplerIdle samplerState = iota
	samplerRunning
	samplerStopping
)

func (s samplerState) String() string {
	switch s {
	case samplerIdle:
		return "idle"
	case samplerRunning:
		return "running"
	case samplerStopping:
		return "stopping"
	}
	return "unknown"
}

// Sampler periodically feeds a StackSource's stacks into a
// StatisticProfile. Its lifecycle is Idle, Running, Stopping, Idle; Stop
// returns once the sampling goroutine has exited, which takes at most
// about one period.
type Sampler struct {
	prof   *StatisticProfile
	source StackSource
	opts   SamplerOptions
	log    *logrus.Logger

	state     atomic.Int32
	stopCh    chan struct{}
	done      chan struct{}
	startedAt time.Time
	clean     bool
}

// NewSampler creates an idle sampler. A non-positive period falls back
// to the default. Creating a sampler resets the profile's total time so
// session spans accumulate from zero.
func NewSampler(prof *StatisticProfile, source StackSource, opts SamplerOptions) *Sampler {
	if opts.Period <= 0 {
		opts.Period = DefaultSamplerOptions().Period
	}
	prof.resetTotal()
	return &Sampler{
		prof:   prof,
		source: source,
		opts:   opts,
		log:    prof.log,
	}
}

// Profile returns the profile samples accumulate into.
func (s *Sampler) Profile() *StatisticProfile {
	return s.prof
}

// State returns the sampler's lifecycle state.
func (s *Sampler) State() string {
	return samplerState(s.state.Load()).String()
}

// CleanExit reports whether the last session ended through Stop rather
// than a sampling failure.
func (s *Sampler) CleanExit() bool {
	return s.clean
}

// Start begins a sampling session. Starting a running sampler logs a
// warning and changes nothing.
func (s *Sampler) Start() {
	if !s.state.CompareAndSwap(int32(samplerIdle), int32(samplerRunning)) {
		s.log.Warn("Duplicate sampler start call")
		return
	}
	s.clean = false
	s.startedAt = time.Now()
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stopCh, s.done)
}

// Stop ends the session, waits for the sampling goroutine to exit and
// adds the session span to the profile's total time. Stopping an idle
// sampler logs a warning and changes nothing.
func (s *Sampler) Stop() {
	if !s.state.CompareAndSwap(int32(samplerRunning), int32(samplerStopping)) {
		s.log.Warn("Duplicate sampler stop call")
		return
	}
	elapsed := time.Since(s.startedAt)
	close(s.stopCh)
	<-s.done
	s.prof.addSession(elapsed)
	s.state.Store(int32(samplerIdle))
}

func (s *Sampler) run(stopCh, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("Stack source failed, sampling aborted")
		}
	}()
	s.sampleOnce()
	ticker := time.NewTicker(s.opts.Period)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			s.clean = true
			return
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

func (s *Sampler) sampleOnce() {
	for _, stack := range s.source.Stacks() {
		if s.opts.Single && stack.ID != s.opts.Creator {
			continue
		}
		s.prof.Sample(stack.Sites)
	}
}
