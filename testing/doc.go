// Package testing provides test utilities for the variant library.
//
// This package offers helpers for setting up test environments: a manual
// clock for driving schedulers deterministically, a testing.T-backed logger,
// and an embedded NATS server for storage integration tests. It follows Go's
// convention of providing testing utilities in a dedicated package (similar
// to net/http/httptest).
//
// Key utilities:
//   - NewManualClock: Virtual clock advanced explicitly by the test
//   - NewTestLogger: types.Logger that writes to testing.T
//   - StartEmbeddedNATS: In-process NATS server with JetStream
//   - CreateJetStreamKV: Convenience wrapper for KV bucket creation
//
// Example usage:
//
//	import (
//	    "testing"
//	    varianttest "github.com/eladnissenberg/variant-shopify-setup/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    clock := varianttest.NewManualClock(time.Now())
//	    _, nc := varianttest.StartEmbeddedNATS(t)
//	    // ...
//	}
package testing
