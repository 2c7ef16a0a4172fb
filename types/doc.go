// Package types provides core type definitions and interfaces for the variant library.
//
// This package contains shared types that are used across multiple packages in
// the variant library. By keeping these types in a separate leaf package, we
// avoid import cycles between the main variant package and its internal
// implementations.
//
// Key types:
//   - Assignment: a visitor's binding to one experiment variant
//   - Event: one analytics envelope queued for delivery
//   - TestDefinition, Catalog: inbound experiment configuration
//   - Identity: resolved user and session identifiers
//   - Store, Transport, Sink: pluggable integration points
//   - Clock, Ticker, Timer: injectable time source
//   - Logger, MetricsCollector, Hooks: observability surfaces
package types
