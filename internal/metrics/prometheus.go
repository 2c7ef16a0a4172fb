package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Metric registration is deferred to the first recording call so that
// constructing a collector (e.g. in a default wiring path that is never
// exercised) does not pollute the registry.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	// Identity metrics
	identityResolutions *prometheus.CounterVec
	sessionRotations    prometheus.Counter

	// Assignment metrics
	assignments       *prometheus.CounterVec
	bucketingRuns     prometheus.Counter
	assignmentsPurged prometheus.Counter
	activeAssignments prometheus.Gauge

	// Reporter metrics
	eventsQueued       *prometheus.CounterVec
	eventsDeduplicated prometheus.Counter
	validationFailures *prometheus.CounterVec
	rateLimitWait      prometheus.Histogram
	queueDepth         prometheus.Gauge

	// Sender metrics
	batchesSent     prometheus.Counter
	eventsDelivered prometheus.Counter
	batchDuration   prometheus.Histogram
	batchFailures   prometheus.Counter
	breakerOpen     prometheus.Gauge
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "variant" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "variant"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.identityResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "identity",
			Name:      "resolutions_total",
			Help:      "Total identity resolutions by source (store, mirror, generated).",
		}, []string{"source"})

		p.sessionRotations = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "identity",
			Name:      "session_rotations_total",
			Help:      "Total session id rotations after the inactivity window.",
		})

		p.assignments = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "assignment",
			Name:      "assignments_total",
			Help:      "Total assignments stored, by mode.",
		}, []string{"mode"})

		p.bucketingRuns = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "assignment",
			Name:      "bucketing_runs_total",
			Help:      "Total bucketing passes over the catalog.",
		})

		p.assignmentsPurged = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "assignment",
			Name:      "purged_total",
			Help:      "Total expired assignments removed by cleanup.",
		})

		p.activeAssignments = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "assignment",
			Name:      "active_current",
			Help:      "Current number of valid assignments.",
		})

		p.eventsQueued = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "reporter",
			Name:      "events_queued_total",
			Help:      "Total events accepted into the pending queue, by event name.",
		}, []string{"event"})

		p.eventsDeduplicated = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "reporter",
			Name:      "events_deduplicated_total",
			Help:      "Total events suppressed by the deduplicator.",
		})

		p.validationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "reporter",
			Name:      "validation_failures_total",
			Help:      "Total payloads rejected by validation, by operation.",
		}, []string{"op"})

		p.rateLimitWait = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "reporter",
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting for rate limiter window capacity.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 15, 60},
		})

		p.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "reporter",
			Name:      "queue_depth",
			Help:      "Current number of pending events in the queue.",
		})

		p.batchesSent = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "sender",
			Name:      "batches_sent_total",
			Help:      "Total batches accepted by the collector.",
		})

		p.eventsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "sender",
			Name:      "events_delivered_total",
			Help:      "Total events delivered in successful batches.",
		})

		p.batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "sender",
			Name:      "batch_duration_seconds",
			Help:      "Batch delivery time in seconds, including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
		})

		p.batchFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "sender",
			Name:      "batch_failures_total",
			Help:      "Total batches whose delivery attempts were exhausted.",
		})

		p.breakerOpen = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "sender",
			Name:      "breaker_open",
			Help:      "Circuit breaker state (1=open, 0=closed).",
		})

		p.reg.MustRegister(p.identityResolutions)
		p.reg.MustRegister(p.sessionRotations)
		p.reg.MustRegister(p.assignments)
		p.reg.MustRegister(p.bucketingRuns)
		p.reg.MustRegister(p.assignmentsPurged)
		p.reg.MustRegister(p.activeAssignments)
		p.reg.MustRegister(p.eventsQueued)
		p.reg.MustRegister(p.eventsDeduplicated)
		p.reg.MustRegister(p.validationFailures)
		p.reg.MustRegister(p.rateLimitWait)
		p.reg.MustRegister(p.queueDepth)
		p.reg.MustRegister(p.batchesSent)
		p.reg.MustRegister(p.eventsDelivered)
		p.reg.MustRegister(p.batchDuration)
		p.reg.MustRegister(p.batchFailures)
		p.reg.MustRegister(p.breakerOpen)
	})
}

// IdentityMetrics implementation

// RecordIdentityResolved increments identity resolutions for the given source.
func (p *PrometheusCollector) RecordIdentityResolved(source string) {
	p.ensureRegistered()
	p.identityResolutions.WithLabelValues(source).Inc()
}

// RecordSessionRotated increments the session rotation counter.
func (p *PrometheusCollector) RecordSessionRotated() {
	p.ensureRegistered()
	p.sessionRotations.Inc()
}

// AssignmentMetrics implementation

// RecordAssignment increments assignments for the given mode.
func (p *PrometheusCollector) RecordAssignment(mode string) {
	p.ensureRegistered()
	p.assignments.WithLabelValues(mode).Inc()
}

// RecordBucketingRun increments the bucketing pass counter.
func (p *PrometheusCollector) RecordBucketingRun(_ /* created */ int) {
	p.ensureRegistered()
	p.bucketingRuns.Inc()
}

// RecordAssignmentsPurged adds purged assignments to the purge counter.
func (p *PrometheusCollector) RecordAssignmentsPurged(count int) {
	p.ensureRegistered()
	p.assignmentsPurged.Add(float64(count))
}

// SetActiveAssignments sets the active assignment gauge.
func (p *PrometheusCollector) SetActiveAssignments(count int) {
	p.ensureRegistered()
	p.activeAssignments.Set(float64(count))
}

// ReporterMetrics implementation

// RecordEventQueued increments queued events for the given event name.
func (p *PrometheusCollector) RecordEventQueued(eventName string) {
	p.ensureRegistered()
	p.eventsQueued.WithLabelValues(eventName).Inc()
}

// RecordEventDeduplicated increments the deduplication counter.
func (p *PrometheusCollector) RecordEventDeduplicated() {
	p.ensureRegistered()
	p.eventsDeduplicated.Inc()
}

// RecordValidationFailure increments validation failures for the given op.
func (p *PrometheusCollector) RecordValidationFailure(op string) {
	p.ensureRegistered()
	p.validationFailures.WithLabelValues(op).Inc()
}

// RecordRateLimitWait observes time spent waiting on the rate limiter.
func (p *PrometheusCollector) RecordRateLimitWait(duration float64) {
	p.ensureRegistered()
	p.rateLimitWait.Observe(duration)
}

// SetQueueDepth sets the queue depth gauge.
func (p *PrometheusCollector) SetQueueDepth(depth int) {
	p.ensureRegistered()
	p.queueDepth.Set(float64(depth))
}

// SenderMetrics implementation

// RecordBatchSent records a delivered batch and its size and latency.
func (p *PrometheusCollector) RecordBatchSent(size int, duration float64) {
	p.ensureRegistered()
	p.batchesSent.Inc()
	p.eventsDelivered.Add(float64(size))
	p.batchDuration.Observe(duration)
}

// RecordBatchFailure increments the exhausted batch counter.
func (p *PrometheusCollector) RecordBatchFailure() {
	p.ensureRegistered()
	p.batchFailures.Inc()
}

// SetBreakerOpen sets the breaker state gauge.
func (p *PrometheusCollector) SetBreakerOpen(open bool) {
	p.ensureRegistered()
	if open {
		p.breakerOpen.Set(1)
	} else {
		p.breakerOpen.Set(0)
	}
}
