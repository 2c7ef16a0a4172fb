// Package delivery implements the reliable event delivery pipeline: a FIFO
// queue with snapshot persistence, a sliding-window rate limiter, an event
// deduplicator, and a batch sender with a circuit breaker.
package delivery

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// Queue is the FIFO buffer of pending events.
//
// The queue lives in memory; Persist writes a snapshot to durable storage
// and Adopt reclaims one. Batches are read non-destructively and removed
// only after a confirmed send, which is what makes delivery at-least-once:
// a crash between send and remove re-delivers the batch.
type Queue struct {
	store   types.Store
	prefix  string
	logger  types.Logger
	metrics types.ReporterMetrics

	mu      sync.Mutex
	events  []types.Event
	adopted bool
}

// NewQueue creates an empty queue.
//
// Parameters:
//   - store: Durable store for queue snapshots
//   - prefix: Storage key prefix shared with the rest of the client
//   - logger: Logger for storage failures
//   - metrics: Metrics collector for queue depth
//
// Returns:
//   - *Queue: A new empty queue; call Adopt to reclaim a persisted snapshot
func NewQueue(store types.Store, prefix string, logger types.Logger, metrics types.ReporterMetrics) *Queue {
	return &Queue{
		store:   store,
		prefix:  prefix,
		logger:  logger,
		metrics: metrics,
	}
}

// Adopt reclaims a previously persisted queue snapshot and clears the
// persisted copy, so a snapshot is adopted at most once. Later calls are
// no-ops.
//
// Adopted events are placed ahead of anything already queued: they were
// enqueued first.
//
// Parameters:
//   - ctx: Context for storage operations
//
// Returns:
//   - int: Number of events adopted
func (q *Queue) Adopt(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.adopted {
		return 0
	}
	q.adopted = true

	key := types.StorageKey(q.prefix, types.KeyPendingEvents)
	raw, err := q.store.Get(ctx, key)
	if err != nil {
		if !types.IsNotFound(err) {
			q.logger.Warn("queue snapshot read failed", "error", err)
		}
		return 0
	}

	var snapshot []types.Event
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		q.logger.Warn("queue snapshot corrupt, discarding", "error", err)
	} else {
		q.events = append(snapshot, q.events...)
		q.metrics.SetQueueDepth(len(q.events))
	}

	if err := q.store.Delete(ctx, key); err != nil {
		q.logger.Warn("queue snapshot clear failed", "error", err)
	}

	if len(snapshot) > 0 {
		q.logger.Debug("adopted persisted queue snapshot", "events", len(snapshot))
	}

	return len(snapshot)
}

// Add appends an event to the tail of the queue.
func (q *Queue) Add(e types.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.events = append(q.events, e)
	q.metrics.SetQueueDepth(len(q.events))
}

// Batch returns a copy of up to n oldest events without removing them.
//
// Parameters:
//   - n: Maximum batch size
//
// Returns:
//   - []types.Event: The batch, nil when the queue is empty
func (q *Queue) Batch(n int) []types.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 || n <= 0 {
		return nil
	}
	if n > len(q.events) {
		n = len(q.events)
	}

	batch := make([]types.Event, n)
	copy(batch, q.events[:n])

	return batch
}

// RemoveBatch drops the n oldest events, after a confirmed send.
//
// Parameters:
//   - n: Number of events to drop
func (q *Queue) RemoveBatch(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 {
		return
	}
	if n > len(q.events) {
		n = len(q.events)
	}

	q.events = q.events[n:]
	q.metrics.SetQueueDepth(len(q.events))
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.events)
}

// Persist writes the queue snapshot to durable storage. It only writes when
// the queue is non-empty; failures are logged and the in-memory queue stays
// authoritative.
//
// Parameters:
//   - ctx: Context for storage operations
func (q *Queue) Persist(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return
	}

	raw, err := json.Marshal(q.events)
	if err != nil {
		q.logger.Error("queue snapshot marshal failed", "error", err)
		return
	}

	key := types.StorageKey(q.prefix, types.KeyPendingEvents)
	if err := q.store.Set(ctx, key, raw); err != nil {
		q.logger.Warn("queue snapshot write failed", "error", err)
		return
	}

	q.logger.Debug("queue snapshot persisted", "events", len(q.events))
}
