// Package retry provides the bounded retry executor used for collector
// delivery calls.
package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// Config controls the retry behavior of an Executor.
type Config struct {
	// Attempts is the total number of tries, including the first.
	Attempts uint

	// BaseDelay is the delay before the first retry; subsequent delays
	// double.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay, jitter included.
	MaxDelay time.Duration

	// MaxJitter is the upper bound of the uniform jitter added to every
	// delay. Zero disables jitter.
	MaxJitter time.Duration

	// AttemptTimeout bounds each individual attempt. Zero means attempts
	// share the caller's deadline only.
	AttemptTimeout time.Duration
}

// Executor retries an operation with exponential backoff and a per-attempt
// timeout.
//
// The delay before retry n is min(base*2^n + jitter, max), with jitter drawn
// uniformly from [0, MaxJitter). Each attempt runs under its own deadline;
// an attempt that outlives it counts as failed and the next attempt starts
// fresh. Cancelling the caller's context aborts both attempts and backoff
// sleeps.
type Executor struct {
	cfg    Config
	logger types.Logger
}

// New creates a retry executor.
//
// Parameters:
//   - cfg: Retry behavior; Attempts must be at least 1
//   - logger: Logger for per-retry debug messages
//
// Returns:
//   - *Executor: A new executor
func New(cfg Config, logger types.Logger) *Executor {
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}

	return &Executor{cfg: cfg, logger: logger}
}

// Do runs op, retrying failures until success, attempt exhaustion, or ctx
// cancellation.
//
// Parameters:
//   - ctx: Caller context; cancellation aborts retries immediately
//   - name: Operation name used in log messages
//   - op: The attempt body; receives the per-attempt context
//
// Returns:
//   - error: nil on success, otherwise the error of the last attempt
func (e *Executor) Do(ctx context.Context, name string, op func(context.Context) error) error {
	delayType := retry.DelayType(retry.BackOffDelay)
	if e.cfg.MaxJitter > 0 {
		delayType = retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay))
	}

	return retry.Do(
		func() error {
			attemptCtx := ctx
			if e.cfg.AttemptTimeout > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.AttemptTimeout)
				defer cancel()
			}

			return op(attemptCtx)
		},
		retry.Attempts(e.cfg.Attempts),
		retry.Delay(e.cfg.BaseDelay),
		retry.MaxDelay(e.cfg.MaxDelay),
		retry.MaxJitter(e.cfg.MaxJitter),
		delayType,
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			e.logger.Debug("attempt failed, retrying",
				"op", name,
				"attempt", attempt,
				"error", err,
			)
		}),
	)
}
