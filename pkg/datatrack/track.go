package datatrack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// errGoexit marks an invocation ended by runtime.Goexit.
var errGoexit = errors.New("goroutine exited")

// TrackOption configures one instrumentation site.
type TrackOption func(*site)

// WithTimeThreshold alerts when an invocation runs longer than d.
func WithTimeThreshold(d time.Duration) TrackOption {
	return func(s *site) {
		s.thresholds.Time = d
		s.explicit = true
	}
}

// WithMemoryThreshold alerts when resident memory grows by more than mb
// megabytes during an invocation.
func WithMemoryThreshold(mb float64) TrackOption {
	return func(s *site) {
		s.thresholds.MemoryMB = mb
		s.explicit = true
	}
}

// WithThresholds sets both thresholds. Thresholds{} disables alerts for the
// site regardless of the configured defaults.
func WithThresholds(th Thresholds) TrackOption {
	return func(s *site) {
		s.thresholds = th
		s.explicit = true
	}
}

// WithContext sets the context handed to sinks and alert channels by
// wrappers that take no context of their own.
func WithContext(ctx context.Context) TrackOption {
	return func(s *site) {
		if ctx != nil {
			s.ctx = ctx
		}
	}
}

// site is one instrumented subject with its options.
type site struct {
	mon        *Monitor
	name       string
	thresholds Thresholds
	explicit   bool
	ctx        context.Context
}

func (m *Monitor) newSite(name string, opts []TrackOption) *site {
	s := &site{mon: m, name: name, ctx: context.Background()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *site) effectiveThresholds() Thresholds {
	if s.explicit {
		return s.thresholds
	}
	return s.mon.DefaultThresholds()
}

// invocation holds the entry snapshot of one call. It is never shared.
type invocation struct {
	site        *site
	id          string
	start       time.Time
	startMemory uint64
	startCPU    time.Duration
	memoryKnown bool
}

func (s *site) begin() *invocation {
	m := s.mon
	m.registry.SetActiveCount(int(m.inFlight.Add(1)))

	inv := &invocation{site: s, id: uuid.NewString()}
	snap, err := m.sampler.Sample()
	if err != nil {
		m.warnSnapshot(s.name, err)
	} else {
		inv.startMemory = snap.RSS
		inv.memoryKnown = true
	}
	inv.startCPU = snap.CPUTime
	inv.start = time.Now()
	return inv
}

// finish builds the Measurement, runs the sinks and the threshold check.
// Nothing raised here reaches the caller.
func (inv *invocation) finish(ctx context.Context, err error) (meas Measurement) {
	end := time.Now()
	s := inv.site
	m := s.mon

	meas = Measurement{
		ID:       inv.id,
		Subject:  s.name,
		Start:    inv.start,
		End:      end,
		InFlight: int(m.inFlight.Add(-1)),
		Outcome:  outcomeOf(err),
	}

	snap, serr := m.sampler.Sample()
	switch {
	case serr != nil:
		m.warnSnapshot(s.name, serr)
	case inv.memoryKnown:
		meas.StartMemory = inv.startMemory
		meas.EndMemory = snap.RSS
		meas.MemoryKnown = true
	}
	if snap.CPUTime > inv.startCPU && inv.startCPU > 0 {
		meas.CPUTime = snap.CPUTime - inv.startCPU
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("measurement finalization panicked",
				"subject", s.name, "panic", fmt.Sprint(r))
		}
	}()
	m.fanOut(ctx, meas)
	m.raise(ctx, Evaluate(meas, s.effectiveThresholds()))
	return meas
}

// call runs fn exactly once as one invocation. The error from fn is
// returned unchanged; a panic is recorded and then re-raised.
func (s *site) call(ctx context.Context, fn func() error) error {
	inv := s.begin()
	completed := false
	defer func() {
		if completed {
			return
		}
		r := recover()
		if r == nil {
			inv.finish(ctx, errGoexit)
			return
		}
		inv.finish(ctx, &PanicError{Value: r})
		panic(r)
	}()

	err := fn()
	completed = true
	inv.finish(ctx, err)
	return err
}

func (m *Monitor) warnSnapshot(subject string, err error) {
	if m.rssWarned.CompareAndSwap(false, true) {
		m.logger.Warn("memory snapshot failed, reporting unknown memory delta",
			"subject", subject, "error", err)
		return
	}
	m.logger.Debug("memory snapshot failed", "subject", subject, "error", err)
}

// Track returns fn wrapped as subject name. Each call of the returned
// function is one measured invocation.
func (m *Monitor) Track(name string, fn func() error, opts ...TrackOption) func() error {
	s := m.newSite(name, opts)
	return func() error {
		return s.call(s.ctx, fn)
	}
}

// TrackContext is Track for functions taking a context. The call's context
// is also passed to the sinks and alert channel.
func (m *Monitor) TrackContext(name string, fn func(context.Context) error, opts ...TrackOption) func(context.Context) error {
	s := m.newSite(name, opts)
	return func(ctx context.Context) error {
		return s.call(ctx, func() error { return fn(ctx) })
	}
}

// Run measures a single call of fn.
func (m *Monitor) Run(name string, fn func() error, opts ...TrackOption) error {
	s := m.newSite(name, opts)
	return s.call(s.ctx, fn)
}

// RunContext measures a single call of fn with ctx.
func (m *Monitor) RunContext(ctx context.Context, name string, fn func(context.Context) error, opts ...TrackOption) error {
	s := m.newSite(name, opts)
	return s.call(ctx, func() error { return fn(ctx) })
}

// Wrap returns fn wrapped as subject name, passing its value through.
func Wrap[T any](m *Monitor, name string, fn func() (T, error), opts ...TrackOption) func() (T, error) {
	s := m.newSite(name, opts)
	return func() (T, error) {
		var out T
		err := s.call(s.ctx, func() error {
			var err error
			out, err = fn()
			return err
		})
		return out, err
	}
}
