package types

import "context"

// Hooks defines callbacks for Client lifecycle events.
//
// All hooks are optional and called asynchronously in background goroutines
// to avoid blocking the assignment and delivery paths. Hooks receive the
// client's lifecycle context which will be cancelled during shutdown.
//
// IMPORTANT: Hook execution behavior:
//   - Hooks run concurrently and may not complete before Stop() returns
//   - The context passed to hooks is cancelled when the client stops
//   - Hook errors are logged but don't fail client operations
//
// Best practices for hook implementation:
//   - Complete quickly (< 1 second recommended)
//   - Respect context cancellation
//   - Don't block on long I/O operations
//   - Make hooks idempotent (may be called multiple times)
//   - Handle errors gracefully (return error for logging)
type Hooks struct {
	// OnAssignment is called when a new assignment is stored, after
	// exposure attribution has been recalculated.
	OnAssignment func(ctx context.Context, assignment Assignment) error

	// OnBatchDelivered is called after a batch of events is accepted by
	// the collector.
	OnBatchDelivered func(ctx context.Context, delivered int) error

	// OnBreakerStateChange is called when the delivery circuit breaker
	// opens or closes.
	OnBreakerStateChange func(ctx context.Context, open bool) error

	// OnError is called when a recoverable error occurs.
	OnError func(ctx context.Context, err error) error
}
