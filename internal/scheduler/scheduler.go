package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every scheduled trigger. Failures inside a tick are
// the tick's own business; nothing propagates back to the scheduler.
type TickFunc func(ctx context.Context)

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
}

// Scheduler fires ticks on a fixed wall-clock cadence, independent of how
// long the previous tick took. Overlapping ticks are skipped, not queued.
type Scheduler struct {
	opts      Options
	logger    zerolog.Logger
	inFlight  atomic.Bool
	tickGroup sync.WaitGroup
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, triggering the tick function on every interval until ctx is
// cancelled. On cancellation it stops triggering, waits for any in-flight
// tick to drain, and returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.tickGroup.Wait()
			return ctx.Err()
		case fired := <-ticker.C:
			s.trigger(ctx, tick, fired)
		}
	}
}

// trigger starts a tick unless the previous one is still running, in which
// case the trigger is dropped entirely.
func (s *Scheduler) trigger(ctx context.Context, tick TickFunc, fired time.Time) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Warn().Time("fired_at", fired).Msg("previous tick still running; skipping trigger")
		return
	}

	// The tick runs detached from the run loop's cancellation: shutdown must
	// let an in-flight fetch or write finish, never abort it mid-way.
	tickCtx := context.WithoutCancel(ctx)

	s.tickGroup.Add(1)
	go func() {
		defer s.tickGroup.Done()
		defer s.inFlight.Store(false)

		s.logger.Debug().Time("fired_at", fired).Msg("executing scheduled tick")
		tick(tickCtx)
	}()
}
