// Package tick drives a function at a fixed frame rate, standing in for
// the host simulation's frame loop.
package tick

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/simbridge/internal/monitoring"
	"github.com/banshee-data/simbridge/internal/timeutil"
)

// DefaultInterval is one frame at 60 Hz.
const DefaultInterval = time.Second / 60

// Loop calls a function once per tick.
type Loop struct {
	Interval time.Duration
	Clock    timeutil.Clock

	ticks  atomic.Uint64
	panics atomic.Uint64
}

// Run calls fn once per tick until ctx is cancelled. A panic in fn is
// logged and the loop carries on with the next tick.
func (l *Loop) Run(ctx context.Context, fn func()) {
	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	clock := l.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	monitoring.Opsf("tick loop running every %v", interval)
	for {
		select {
		case <-ctx.Done():
			monitoring.Opsf("tick loop stopped after %d ticks", l.ticks.Load())
			return
		case <-ticker.C():
			l.tick(fn)
		}
	}
}

func (l *Loop) tick(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			monitoring.Diagf("tick %d recovered from panic: %v", l.ticks.Load(), r)
		}
	}()
	l.ticks.Add(1)
	fn()
}

// Ticks returns the number of ticks run so far.
func (l *Loop) Ticks() uint64 {
	return l.ticks.Load()
}

// Panics returns the number of ticks that panicked.
func (l *Loop) Panics() uint64 {
	return l.panics.Load()
}
