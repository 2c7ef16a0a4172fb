package variant

import "github.com/eladnissenberg/variant-shopify-setup/types"

// Sentinel errors returned by the Client.
//
// These are aliases of the definitions in the types subpackage so that
// internal packages can return them without importing the root package.
// errors.Is works against either name.
var (
	// ErrConfigRequired is returned when the configuration is nil.
	ErrConfigRequired = types.ErrConfigRequired

	// ErrStoreRequired is returned when the primary store is nil.
	ErrStoreRequired = types.ErrStoreRequired

	// ErrAlreadyStarted is returned when Start is called on an already running client.
	ErrAlreadyStarted = types.ErrAlreadyStarted

	// ErrNotStarted is returned when an operation requires a started client.
	ErrNotStarted = types.ErrNotStarted

	// ErrInvalidCatalog is returned when the experiment catalog fails validation.
	ErrInvalidCatalog = types.ErrInvalidCatalog

	// ErrKeyNotFound is returned by Store implementations for an absent key.
	ErrKeyNotFound = types.ErrKeyNotFound

	// ErrDeliveryFailed is returned (wrapped) when the collector rejects a
	// batch or is unreachable.
	ErrDeliveryFailed = types.ErrDeliveryFailed
)
