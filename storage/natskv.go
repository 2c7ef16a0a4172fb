package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// NATSKV is a types.Store backed by a NATS JetStream KeyValue bucket.
//
// Storage keys use "." separators, which are valid KV key characters, so
// client keys map onto bucket keys unchanged.
type NATSKV struct {
	kv jetstream.KeyValue
}

// Compile-time assertion that NATSKV implements Store.
var _ types.Store = (*NATSKV)(nil)

// NewNATSKV wraps an existing KeyValue bucket.
//
// Parameters:
//   - kv: The bucket to store visitor state in
//
// Returns:
//   - *NATSKV: A store writing to the bucket
func NewNATSKV(kv jetstream.KeyValue) *NATSKV {
	return &NATSKV{kv: kv}
}

// EnsureNATSKV creates or opens the configured bucket and wraps it.
//
// Handles the create/exists race when multiple processes bootstrap the same
// bucket concurrently, retrying transient errors with exponential backoff
// (10ms, 20ms, 40ms).
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - config: KV bucket configuration
//
// Returns:
//   - *NATSKV: A store writing to the created or opened bucket
//   - error: Any error that persisted through all retries
//
// Example:
//
//	store, err := storage.EnsureNATSKV(ctx, js, jetstream.KeyValueConfig{
//	    Bucket: "visitor-state",
//	    TTL:    45 * 24 * time.Hour,
//	})
func EnsureNATSKV(ctx context.Context, js jetstream.JetStream, config jetstream.KeyValueConfig) (*NATSKV, error) {
	const maxRetries = 3

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		kv, err := js.CreateKeyValue(ctx, config)
		if err == nil {
			return NewNATSKV(kv), nil
		}

		// If the bucket already exists, just open it.
		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, err := js.KeyValue(ctx, config.Bucket)
			if err == nil {
				return NewNATSKV(kv), nil
			}
			lastErr = fmt.Errorf("bucket exists but failed to open: %w", err)
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("context cancelled during KV bucket creation: %w", ctx.Err())
		}

		if attempt < maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * 10 * time.Millisecond //nolint:gosec // attempt is bounded by maxRetries, no overflow risk
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("failed to create/open KV bucket %s after %d attempts: %w",
		config.Bucket, maxRetries, lastErr)
}

// Get returns the value stored under key.
func (s *NATSKV) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, types.ErrKeyNotFound
		}
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}

	return entry.Value(), nil
}

// Set stores value under key.
func (s *NATSKV) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}

	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *NATSKV) Delete(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}

	return nil
}
