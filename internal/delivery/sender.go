package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eladnissenberg/variant-shopify-setup/internal/retry"
	"github.com/eladnissenberg/variant-shopify-setup/internal/sched"
	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// SenderConfig configures the batch sender.
type SenderConfig struct {
	// Queue is the pending event buffer to drain.
	Queue *Queue

	// Transport delivers event batches to the collector.
	Transport types.Transport

	// Retrier wraps each delivery in the retry policy.
	Retrier *retry.Executor

	// Interval is the tick period of the send task.
	Interval time.Duration

	// BatchSize is the maximum number of events per delivery.
	BatchSize int

	// FailureCeiling is the consecutive-failure count that opens the
	// circuit breaker.
	FailureCeiling int

	// Cooldown is how long the breaker stays open before the send task is
	// restarted with a reset counter.
	Cooldown time.Duration

	Clock   types.Clock
	Logger  types.Logger
	Metrics types.SenderMetrics
	Hooks   *types.Hooks
}

// Sender drains the queue on a fixed schedule and delivers batches to the
// collector.
//
// Each tick sends at most one batch of the oldest events. A batch is removed
// from the queue only after the transport confirms it, so a failed delivery
// leaves the queue untouched and the same batch is retried on the next tick,
// preserving FIFO order and at-least-once semantics.
//
// Consecutive failures reaching the ceiling open the circuit breaker: the
// send task is cancelled and automatically restarted after the cooldown with
// the counter reset, so a down collector is probed once per cooldown instead
// of every tick.
type Sender struct {
	queue     *Queue
	transport types.Transport
	retrier   *retry.Executor
	batchSize int
	ceiling   int
	cooldown  time.Duration

	clock   types.Clock
	logger  types.Logger
	metrics types.SenderMetrics
	hooks   *types.Hooks

	task *sched.Periodic

	// sendMu serializes deliveries between the tick path and Flush.
	sendMu sync.Mutex

	// lifeMu serializes task stop/start transitions, including the breaker's
	// background restart.
	lifeMu sync.Mutex

	mu          sync.Mutex
	failures    int
	breakerOpen bool
	cooldownCh  chan struct{} // non-nil while a cooldown restart is armed
}

// NewSender creates a batch sender. The send task does not tick until Start.
//
// Parameters:
//   - cfg: Sender configuration; all fields are required
//
// Returns:
//   - *Sender: A new sender
func NewSender(cfg *SenderConfig) *Sender {
	s := &Sender{
		queue:     cfg.Queue,
		transport: cfg.Transport,
		retrier:   cfg.Retrier,
		batchSize: cfg.BatchSize,
		ceiling:   cfg.FailureCeiling,
		cooldown:  cfg.Cooldown,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		hooks:     cfg.Hooks,
	}
	s.task = sched.NewPeriodic("batch-sender", cfg.Clock, cfg.Interval, s.tick, cfg.Logger)

	return s
}

// Start begins the send task from a clean state: failure counter zero,
// breaker closed, any pending cooldown restart cancelled.
//
// Starting an already running sender is a no-op, so resuming is idempotent
// even when it races the breaker's automatic restart.
//
// Parameters:
//   - ctx: Lifecycle context; cancelling it stops ticking and aborts
//     in-flight deliveries
func (s *Sender) Start(ctx context.Context) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	s.cancelCooldownLocked()
	s.failures = 0
	s.setBreakerLocked(ctx, false)
	s.mu.Unlock()

	if err := s.task.Start(ctx); err != nil && !errors.Is(err, sched.ErrAlreadyStarted) {
		s.logger.Error("send task start failed", "error", err)
	}
}

// Stop halts the send task and cancels any pending breaker restart. An
// in-flight delivery finishes first.
func (s *Sender) Stop() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	s.cancelCooldownLocked()
	s.setBreakerLocked(context.Background(), false)
	s.mu.Unlock()

	if err := s.task.Stop(); err != nil && !errors.Is(err, sched.ErrNotStarted) {
		s.logger.Error("send task stop failed", "error", err)
	}
}

// Running reports whether the send task is scheduled. False while the
// breaker cooldown is pending.
func (s *Sender) Running() bool {
	return s.task.Running()
}

// BreakerOpen reports whether the circuit breaker is currently open.
func (s *Sender) BreakerOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.breakerOpen
}

// Flush synchronously drains the queue, ignoring the tick schedule and the
// breaker. Delivery failures stop the drain and leave the rest queued.
//
// Parameters:
//   - ctx: Context for delivery calls
//
// Returns:
//   - error: The first delivery error, or nil once the queue is empty
func (s *Sender) Flush(ctx context.Context) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	for s.queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.deliver(ctx); err != nil {
			return err
		}
	}

	return nil
}

// tick is the periodic task body: skip when a send is in flight or the
// queue is empty, open the breaker when failures reached the ceiling,
// otherwise deliver one batch.
func (s *Sender) tick(ctx context.Context) {
	if !s.sendMu.TryLock() {
		return
	}
	defer s.sendMu.Unlock()

	if s.queue.Len() == 0 {
		return
	}

	s.mu.Lock()
	if s.breakerOpen {
		s.mu.Unlock()
		return
	}
	if s.failures >= s.ceiling {
		s.openBreakerLocked(ctx)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	_ = s.deliver(ctx)
}

// deliver sends one batch of the oldest events. On success the batch is
// removed and the failure counter reset; on failure the counter grows and
// the queue is left untouched. Caller holds s.sendMu.
func (s *Sender) deliver(ctx context.Context) error {
	batch := s.queue.Batch(s.batchSize)
	if len(batch) == 0 {
		return nil
	}

	started := s.clock.Now()
	err := s.retrier.Do(ctx, "deliver batch", func(attemptCtx context.Context) error {
		return s.transport.Send(attemptCtx, batch)
	})
	if err != nil {
		s.mu.Lock()
		s.failures++
		failures := s.failures
		s.mu.Unlock()

		s.metrics.RecordBatchFailure()
		s.logger.Warn("batch delivery failed",
			"events", len(batch),
			"consecutive_failures", failures,
			"error", err,
		)

		if hook := s.hooks.OnError; hook != nil {
			go func() {
				if hookErr := hook(ctx, err); hookErr != nil {
					s.logger.Error("error hook failed", "error", hookErr)
				}
			}()
		}

		return err
	}

	s.queue.RemoveBatch(len(batch))

	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()

	elapsed := s.clock.Now().Sub(started).Seconds()
	s.metrics.RecordBatchSent(len(batch), elapsed)
	s.logger.Debug("batch delivered", "events", len(batch), "remaining", s.queue.Len())

	if hook := s.hooks.OnBatchDelivered; hook != nil {
		delivered := len(batch)
		go func() {
			if hookErr := hook(ctx, delivered); hookErr != nil {
				s.logger.Error("batch delivered hook failed", "error", hookErr)
			}
		}()
	}

	return nil
}

// openBreakerLocked opens the circuit breaker and schedules the automatic
// restart. Caller holds s.mu.
func (s *Sender) openBreakerLocked(ctx context.Context) {
	s.setBreakerLocked(ctx, true)
	s.logger.Warn("circuit breaker open, pausing sends", "cooldown", s.cooldown)

	cancel := make(chan struct{})
	s.cooldownCh = cancel
	go s.cooldownRestart(ctx, cancel)
}

// cooldownRestart stops the send task, waits out the cooldown, and restarts
// from a clean state. A concurrent Start or Stop cancels the restart.
func (s *Sender) cooldownRestart(ctx context.Context, cancel chan struct{}) {
	s.lifeMu.Lock()
	s.mu.Lock()
	armed := s.cooldownCh == cancel
	s.mu.Unlock()
	if !armed {
		s.lifeMu.Unlock()
		return
	}
	if err := s.task.Stop(); err != nil && !errors.Is(err, sched.ErrNotStarted) {
		s.logger.Error("send task stop failed", "error", err)
	}
	s.lifeMu.Unlock()

	timer := s.clock.NewTimer(s.cooldown)
	defer timer.Stop()

	select {
	case <-cancel:
		return
	case <-ctx.Done():
		return
	case <-timer.C():
	}

	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	if s.cooldownCh != cancel {
		s.mu.Unlock()
		return
	}
	s.cooldownCh = nil
	s.failures = 0
	s.setBreakerLocked(ctx, false)
	s.mu.Unlock()

	s.logger.Info("circuit breaker cooldown elapsed, resuming sends")
	if err := s.task.Start(ctx); err != nil && !errors.Is(err, sched.ErrAlreadyStarted) {
		s.logger.Error("send task restart failed", "error", err)
	}
}

// cancelCooldownLocked aborts a pending breaker restart. Caller holds s.mu.
func (s *Sender) cancelCooldownLocked() {
	if s.cooldownCh != nil {
		close(s.cooldownCh)
		s.cooldownCh = nil
	}
}

// setBreakerLocked transitions the breaker state, recording the gauge and
// firing the state-change hook on actual transitions. Caller holds s.mu.
func (s *Sender) setBreakerLocked(ctx context.Context, open bool) {
	if s.breakerOpen == open {
		return
	}
	s.breakerOpen = open
	s.metrics.SetBreakerOpen(open)

	if hook := s.hooks.OnBreakerStateChange; hook != nil {
		go func() {
			if err := hook(ctx, open); err != nil {
				s.logger.Error("breaker state hook failed", "error", err)
			}
		}()
	}
}
