package types

import "time"

// Clock abstracts the time source so schedulers, the rate limiter, the
// deduplicator, and the circuit breaker can be driven by a manual clock in
// tests. The default implementation delegates to the time package.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once, after d.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a ticker firing every d.
	NewTicker(d time.Duration) Ticker

	// NewTimer returns a one-shot timer firing after d.
	NewTimer(d time.Duration) Timer
}

// Ticker is a stoppable periodic tick source.
type Ticker interface {
	// C returns the tick channel.
	C() <-chan time.Time

	// Stop halts the ticker. It does not close the channel.
	Stop()
}

// Timer is a stoppable one-shot tick source.
type Timer interface {
	// C returns the fire channel.
	C() <-chan time.Time

	// Stop halts the timer, reporting whether it was still pending.
	Stop() bool
}
