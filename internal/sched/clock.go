// Package sched provides the wall-clock types.Clock implementation and a
// restartable periodic task. The delivery pipeline's sender loop, dedup
// sweep, and circuit-breaker cooldown all run on this scheduler so they can
// be driven by a manual clock in tests.
package sched

import (
	"time"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// RealClock implements types.Clock using the time package.
type RealClock struct{}

// Compile-time assertion that RealClock implements Clock.
var _ types.Clock = RealClock{}

// NewRealClock creates a wall clock.
func NewRealClock() RealClock {
	return RealClock{}
}

// Now returns the current wall time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// After returns a channel firing once after d.
func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// NewTicker returns a ticker firing every d.
func (RealClock) NewTicker(d time.Duration) types.Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

// NewTimer returns a one-shot timer firing after d.
func (RealClock) NewTimer(d time.Duration) types.Timer {
	return &realTimer{t: time.NewTimer(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.t.C }
func (rt *realTicker) Stop()               { rt.t.Stop() }

type realTimer struct {
	t *time.Timer
}

func (rt *realTimer) C() <-chan time.Time { return rt.t.C }
func (rt *realTimer) Stop() bool          { return rt.t.Stop() }
