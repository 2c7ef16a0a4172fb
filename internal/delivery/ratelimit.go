package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// RateLimiter is a sliding-window limiter for event intake.
//
// The window is recomputed on every check by discarding timestamps older
// than the window; there is no background sweep. Wait blocks the caller
// until the window has room, so intake applies backpressure instead of
// dropping events.
type RateLimiter struct {
	max     int
	window  time.Duration
	clock   types.Clock
	metrics types.ReporterMetrics

	mu     sync.Mutex
	stamps []time.Time
}

// NewRateLimiter creates a sliding-window rate limiter.
//
// Parameters:
//   - maxRequests: Admissions allowed per window
//   - window: Window length
//   - clock: Time source, also used for the wait timer
//   - metrics: Metrics collector for wait durations
//
// Returns:
//   - *RateLimiter: A new limiter, safe for concurrent use
func NewRateLimiter(maxRequests int, window time.Duration, clock types.Clock, metrics types.ReporterMetrics) *RateLimiter {
	return &RateLimiter{
		max:     maxRequests,
		window:  window,
		clock:   clock,
		metrics: metrics,
	}
}

// Wait blocks until the window has room, then records the admission.
//
// Waiting is timer-driven: the caller sleeps until the oldest recorded
// timestamp leaves the window, then re-checks. Cancelling the context aborts
// the wait.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - error: The context error when cancelled, nil once admitted
func (l *RateLimiter) Wait(ctx context.Context) error {
	started := l.clock.Now()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.clock.Now()
		l.pruneLocked(now)

		if len(l.stamps) < l.max {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()

			l.metrics.RecordRateLimitWait(now.Sub(started).Seconds())

			return nil
		}

		// Sleep until the oldest admission leaves the window.
		wakeAt := l.stamps[0].Add(l.window)
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(wakeAt.Sub(now)):
		}
	}
}

// pruneLocked discards timestamps older than the window. Caller holds l.mu.
func (l *RateLimiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

// Pending returns the number of admissions currently inside the window.
func (l *RateLimiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(l.clock.Now())

	return len(l.stamps)
}
