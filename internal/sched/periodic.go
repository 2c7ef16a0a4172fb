package sched

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// Common errors for scheduler operations.
var (
	ErrNotStarted     = errors.New("periodic task not started")
	ErrAlreadyStarted = errors.New("periodic task already started")
)

// Periodic runs a function at a fixed interval on a background goroutine.
//
// Unlike a bare time.Ticker loop, a Periodic can be stopped and started
// again any number of times: the circuit breaker cancels the sender task and
// restarts it after its cooldown, and suspend/resume does the same across
// host lifecycle transitions. The task function receives the context passed
// to Start; ticks stop when that context is cancelled.
type Periodic struct {
	name     string
	clock    types.Clock
	interval time.Duration
	fn       func(context.Context)
	logger   types.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPeriodic creates a periodic task.
//
// Parameters:
//   - name: Task name used in log messages
//   - clock: Time source driving the tick interval
//   - interval: Time between invocations of fn
//   - fn: The task body; invoked on the scheduler goroutine, so it must
//     return promptly or honor ctx cancellation
//   - logger: Logger for lifecycle messages
//
// Returns:
//   - *Periodic: New periodic task, not yet started
func NewPeriodic(name string, clock types.Clock, interval time.Duration, fn func(context.Context), logger types.Logger) *Periodic {
	return &Periodic{
		name:     name,
		clock:    clock,
		interval: interval,
		fn:       fn,
		logger:   logger,
	}
}

// Start begins ticking in the background.
//
// The ticker is created before Start returns, so a manual clock advanced
// immediately afterwards will fire it.
//
// Returns:
//   - error: ErrAlreadyStarted if already running
func (p *Periodic) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrAlreadyStarted
	}

	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	ticker := p.clock.NewTicker(p.interval)
	go p.loop(ctx, ticker, p.stopCh, p.doneCh)

	p.logger.Debug("periodic task started", "task", p.name, "interval", p.interval)

	return nil
}

// Stop halts ticking and blocks until the task goroutine exits.
//
// Returns:
//   - error: ErrNotStarted if not running
func (p *Periodic) Stop() error {
	p.mu.Lock()

	if !p.running {
		p.mu.Unlock()
		return ErrNotStarted
	}

	p.running = false
	close(p.stopCh)
	doneCh := p.doneCh

	p.mu.Unlock()

	<-doneCh

	p.logger.Debug("periodic task stopped", "task", p.name)

	return nil
}

// Running reports whether the task is currently scheduled.
func (p *Periodic) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.running
}

func (p *Periodic) loop(ctx context.Context, ticker types.Ticker, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
			p.fn(ctx)
		}
	}
}
