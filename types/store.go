package types

import "context"

// Storage key names, joined under the configured prefix by StorageKey.
// The separator is "." because NATS KeyValue keys cannot contain ":".
const (
	// KeyAssignments holds the full assignment map, TestID → Assignment.
	KeyAssignments = "assignments"

	// KeyActiveTests holds the reduced pixel projection, TestID → PixelRecord.
	KeyActiveTests = "active_tests"

	// KeyPendingEvents holds the queue snapshot persisted on suspend/stop.
	KeyPendingEvents = "pending_events"

	// KeyUserID, KeySessionID and KeyLastActivity hold the identity state.
	KeyUserID       = "user_id"
	KeySessionID    = "session_id"
	KeyLastActivity = "last_activity"
)

// StorageKey joins a key name under a prefix.
func StorageKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// Store is the durable storage integration point.
//
// Implementations must be safe for concurrent use. Values are opaque JSON
// blobs owned by the caller. A Get for an absent key returns an error
// matching ErrKeyNotFound via errors.Is.
//
// Store failures never fail client operations: every component logs the
// error and proceeds with its in-memory state.
type Store interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
