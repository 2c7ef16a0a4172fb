// Package metrics provides types.MetricsCollector implementations: a no-op
// collector and a Prometheus-backed collector.
package metrics

import "github.com/eladnissenberg/variant-shopify-setup/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A new no-op metrics collector instance
//
// Example:
//
//	collector := metrics.NewNop()
//	client, err := variant.New(&cfg, store, cat, variant.WithMetrics(collector))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// IdentityMetrics implementation

// RecordIdentityResolved discards the identity resolution metric.
func (n *NopMetrics) RecordIdentityResolved(_ /* source */ string) {
	// No-op
}

// RecordSessionRotated discards the session rotation metric.
func (n *NopMetrics) RecordSessionRotated() {
	// No-op
}

// AssignmentMetrics implementation

// RecordAssignment discards the assignment metric.
func (n *NopMetrics) RecordAssignment(_ /* mode */ string) {
	// No-op
}

// RecordBucketingRun discards the bucketing run metric.
func (n *NopMetrics) RecordBucketingRun(_ /* created */ int) {
	// No-op
}

// RecordAssignmentsPurged discards the purge metric.
func (n *NopMetrics) RecordAssignmentsPurged(_ /* count */ int) {
	// No-op
}

// SetActiveAssignments discards the active assignment gauge.
func (n *NopMetrics) SetActiveAssignments(_ /* count */ int) {
	// No-op
}

// ReporterMetrics implementation

// RecordEventQueued discards the queued event metric.
func (n *NopMetrics) RecordEventQueued(_ /* eventName */ string) {
	// No-op
}

// RecordEventDeduplicated discards the deduplication metric.
func (n *NopMetrics) RecordEventDeduplicated() {
	// No-op
}

// RecordValidationFailure discards the validation failure metric.
func (n *NopMetrics) RecordValidationFailure(_ /* op */ string) {
	// No-op
}

// RecordRateLimitWait discards the rate limit wait metric.
func (n *NopMetrics) RecordRateLimitWait(_ /* duration */ float64) {
	// No-op
}

// SetQueueDepth discards the queue depth gauge.
func (n *NopMetrics) SetQueueDepth(_ /* depth */ int) {
	// No-op
}

// SenderMetrics implementation

// RecordBatchSent discards the batch delivery metric.
func (n *NopMetrics) RecordBatchSent(_ /* size */ int, _ /* duration */ float64) {
	// No-op
}

// RecordBatchFailure discards the batch failure metric.
func (n *NopMetrics) RecordBatchFailure() {
	// No-op
}

// SetBreakerOpen discards the breaker state gauge.
func (n *NopMetrics) SetBreakerOpen(_ /* open */ bool) {
	// No-op
}
