package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods may be called from internal goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	IdentityMetrics
	AssignmentMetrics
	ReporterMetrics
	SenderMetrics
}

// IdentityMetrics defines metrics for identity resolution.
type IdentityMetrics interface {
	// RecordIdentityResolved records how the durable user id was obtained.
	//
	// Parameters:
	//   - source: Resolution source ("store", "mirror", "generated")
	RecordIdentityResolved(source string)

	// RecordSessionRotated records a session id rotation after inactivity.
	RecordSessionRotated()
}

// AssignmentMetrics defines metrics for the assignment engine.
type AssignmentMetrics interface {
	// RecordAssignment records a newly stored assignment.
	//
	// Parameters:
	//   - mode: Assignment mode ("forced-0", "forced", "pure-control",
	//     "probabilistic", "excluded")
	RecordAssignment(mode string)

	// RecordBucketingRun records one bucketing pass over the catalog.
	//
	// Parameters:
	//   - created: Number of new assignments the pass produced
	RecordBucketingRun(created int)

	// RecordAssignmentsPurged records expired assignments removed by cleanup.
	RecordAssignmentsPurged(count int)

	// SetActiveAssignments sets the current valid assignment count (gauge metric).
	SetActiveAssignments(count int)
}

// ReporterMetrics defines metrics for event intake.
type ReporterMetrics interface {
	// RecordEventQueued records an event accepted into the pending queue.
	//
	// Parameters:
	//   - eventName: The event's name, e.g. "test_assignment"
	RecordEventQueued(eventName string)

	// RecordEventDeduplicated records an event suppressed by the deduplicator.
	RecordEventDeduplicated()

	// RecordValidationFailure records an event or assignment rejected by
	// validation.
	//
	// Parameters:
	//   - op: The rejecting operation ("track_assignment", "queue_event")
	RecordValidationFailure(op string)

	// RecordRateLimitWait records time spent waiting for window capacity.
	//
	// Parameters:
	//   - duration: Time waited in seconds
	RecordRateLimitWait(duration float64)

	// SetQueueDepth sets the current pending queue length (gauge metric).
	SetQueueDepth(depth int)
}

// SenderMetrics defines metrics for the batch sender and its circuit breaker.
type SenderMetrics interface {
	// RecordBatchSent records a successfully delivered batch.
	//
	// Parameters:
	//   - size: Number of events in the batch
	//   - duration: Delivery time in seconds, including retries
	RecordBatchSent(size int, duration float64)

	// RecordBatchFailure records a batch whose delivery attempts were
	// exhausted.
	RecordBatchFailure()

	// SetBreakerOpen sets the circuit breaker state (gauge metric, 1 when
	// open).
	SetBreakerOpen(open bool)
}
