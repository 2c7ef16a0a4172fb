package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the variant library.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// All components should use these sentinel errors for known error conditions
// and wrap external errors with context using fmt.Errorf("%s: %w", msg, err).

// Client errors - Public API errors returned by the Client.
var (
	// ErrConfigRequired is returned when the configuration is nil or invalid.
	ErrConfigRequired = errors.New("config is required")

	// ErrStoreRequired is returned when the primary store is nil.
	ErrStoreRequired = errors.New("store is required")

	// ErrAlreadyStarted is returned when Start is called on an already running client.
	ErrAlreadyStarted = errors.New("client already started")

	// ErrNotStarted is returned when operations require a started client.
	ErrNotStarted = errors.New("client not started")

	// ErrInvalidCatalog is returned when the experiment catalog fails validation.
	ErrInvalidCatalog = errors.New("invalid catalog")
)

// Storage errors.
var (
	// ErrKeyNotFound is returned by Store.Get for an absent key.
	// Implementations translate their backend's not-found condition to
	// this sentinel so callers need only one errors.Is check.
	ErrKeyNotFound = errors.New("key not found")
)

// Delivery errors.
var (
	// ErrDeliveryFailed is returned (wrapped, with status or cause) when the
	// collector rejects a batch or is unreachable. Transient: the batch
	// stays queued and is retried.
	ErrDeliveryFailed = errors.New("event delivery failed")
)

// ValidationError reports required fields missing from an event or
// assignment handed to the client. Fatal to the single call and never
// retried; the payload is not queued.
type ValidationError struct {
	// Op is the rejecting operation, e.g. "track_assignment".
	Op string

	// Missing lists the absent required fields.
	Missing []string
}

// NewValidationError creates a ValidationError for the given operation.
func NewValidationError(op string, missing ...string) *ValidationError {
	return &ValidationError{Op: op, Missing: missing}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("%s: validation failed", e.Op)
	}
	return fmt.Sprintf("%s: missing required fields: %s", e.Op, strings.Join(e.Missing, ", "))
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is (or wraps) ErrKeyNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}
