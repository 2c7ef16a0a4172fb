package testing

import (
	"sync"
	"time"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// ManualClock implements types.Clock with virtual time that only moves when
// the test calls Advance. Tickers, timers, and After channels fire
// synchronously inside Advance, which makes rate-limiter windows, dedup
// expiry, breaker cooldowns, and scheduler ticks fully deterministic.
type ManualClock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     time.Time
	waiters []*manualWaiter
	tickers []*manualTicker
}

// Compile-time assertion that ManualClock implements Clock.
var _ types.Clock = (*ManualClock)(nil)

// NewManualClock creates a manual clock starting at the given instant.
//
// Parameters:
//   - start: The initial Now(); a fixed instant keeps test output stable
//
// Returns:
//   - *ManualClock: A new manual clock
func NewManualClock(start time.Time) *ManualClock {
	c := &ManualClock{now: start}
	c.cond = sync.NewCond(&c.mu)

	return c
}

// Now returns the current virtual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// After returns a channel that fires once virtual time passes d.
func (c *ManualClock) After(d time.Duration) <-chan time.Time {
	return c.addWaiter(d).ch
}

// NewTimer returns a one-shot timer on virtual time.
func (c *ManualClock) NewTimer(d time.Duration) types.Timer {
	return &manualTimer{clock: c, w: c.addWaiter(d)}
}

// NewTicker returns a ticker on virtual time. Like time.Ticker, pending
// ticks coalesce: advancing several intervals at once delivers at most one
// buffered tick per receive.
func (c *ManualClock) NewTicker(d time.Duration) types.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	tk := &manualTicker{
		clock:    c,
		interval: d,
		next:     c.now.Add(d),
		ch:       make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, tk)
	c.cond.Broadcast()

	return tk
}

// Advance moves virtual time forward by d, firing every due waiter and
// ticker in order.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.now.Add(d)

	for _, w := range c.waiters {
		if w.fired || w.stopped || w.at.After(target) {
			continue
		}
		w.fired = true
		select {
		case w.ch <- w.at:
		default:
		}
	}

	for _, tk := range c.tickers {
		for !tk.stopped && !tk.next.After(target) {
			select {
			case tk.ch <- tk.next:
			default:
			}
			tk.next = tk.next.Add(tk.interval)
		}
	}

	c.now = target
}

// BlockUntil blocks until at least n timers, tickers, or After channels are
// waiting on the clock. Use it to let a background goroutine register its
// timer before advancing past it.
func (c *ManualClock) BlockUntil(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.activeLocked() < n {
		c.cond.Wait()
	}
}

func (c *ManualClock) activeLocked() int {
	active := 0
	for _, w := range c.waiters {
		if !w.fired && !w.stopped {
			active++
		}
	}
	for _, tk := range c.tickers {
		if !tk.stopped {
			active++
		}
	}

	return active
}

func (c *ManualClock) addWaiter(d time.Duration) *manualWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := &manualWaiter{at: c.now.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		w.fired = true
		w.ch <- c.now
	}
	c.waiters = append(c.waiters, w)
	c.cond.Broadcast()

	return w
}

type manualWaiter struct {
	at      time.Time
	ch      chan time.Time
	fired   bool
	stopped bool
}

type manualTimer struct {
	clock *ManualClock
	w     *manualWaiter
}

func (t *manualTimer) C() <-chan time.Time { return t.w.ch }

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.w.fired || t.w.stopped {
		return false
	}
	t.w.stopped = true

	return true
}

type manualTicker struct {
	clock    *ManualClock
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  bool
}

func (tk *manualTicker) C() <-chan time.Time { return tk.ch }

func (tk *manualTicker) Stop() {
	tk.clock.mu.Lock()
	defer tk.clock.mu.Unlock()

	tk.stopped = true
}
