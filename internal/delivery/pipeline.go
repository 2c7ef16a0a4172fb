package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eladnissenberg/variant-shopify-setup/internal/retry"
	"github.com/eladnissenberg/variant-shopify-setup/internal/sched"
	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// PipelineConfig configures the delivery pipeline.
type PipelineConfig struct {
	// Store persists queue snapshots across suspensions.
	Store types.Store

	// Prefix is the storage key prefix shared with the rest of the client.
	Prefix string

	// Transport delivers event batches to the collector.
	Transport types.Transport

	// Retry is the per-batch delivery retry policy.
	Retry retry.Config

	// RateLimitMax admissions per RateLimitWindow.
	RateLimitMax    int
	RateLimitWindow time.Duration

	// DedupWindow is how long an impression key suppresses duplicates;
	// DedupSweepInterval schedules the proactive purge.
	DedupWindow        time.Duration
	DedupSweepInterval time.Duration

	// SendInterval is the sender tick period; BatchSize the per-tick batch
	// ceiling.
	SendInterval time.Duration
	BatchSize    int

	// FailureCeiling consecutive failures open the breaker for
	// BreakerCooldown.
	FailureCeiling  int
	BreakerCooldown time.Duration

	Clock   types.Clock
	Logger  types.Logger
	Metrics types.MetricsCollector
	Hooks   *types.Hooks
}

// Pipeline is the reporter: it validates and queues events, suppresses
// duplicates, applies intake backpressure, and drains the queue through the
// batch sender.
type Pipeline struct {
	queue   *Queue
	dedup   *Deduplicator
	limiter *RateLimiter
	sender  *Sender
	sweep   *sched.Periodic

	clock   types.Clock
	logger  types.Logger
	metrics types.ReporterMetrics
}

// NewPipeline wires the pipeline components together. Nothing runs until
// Start.
//
// Parameters:
//   - cfg: Pipeline configuration; all fields are required
//
// Returns:
//   - *Pipeline: A new pipeline
func NewPipeline(cfg *PipelineConfig) *Pipeline {
	queue := NewQueue(cfg.Store, cfg.Prefix, cfg.Logger, cfg.Metrics)
	dedup := NewDeduplicator(cfg.DedupWindow, cfg.Clock)

	p := &Pipeline{
		queue:   queue,
		dedup:   dedup,
		limiter: NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow, cfg.Clock, cfg.Metrics),
		sender: NewSender(&SenderConfig{
			Queue:          queue,
			Transport:      cfg.Transport,
			Retrier:        retry.New(cfg.Retry, cfg.Logger),
			Interval:       cfg.SendInterval,
			BatchSize:      cfg.BatchSize,
			FailureCeiling: cfg.FailureCeiling,
			Cooldown:       cfg.BreakerCooldown,
			Clock:          cfg.Clock,
			Logger:         cfg.Logger,
			Metrics:        cfg.Metrics,
			Hooks:          cfg.Hooks,
		}),
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	p.sweep = sched.NewPeriodic("dedup-sweep", cfg.Clock, cfg.DedupSweepInterval, p.sweepTick, cfg.Logger)

	return p
}

// Start adopts any persisted queue snapshot and begins the send task and the
// dedup sweep.
//
// Parameters:
//   - ctx: Lifecycle context for the background tasks
func (p *Pipeline) Start(ctx context.Context) {
	if adopted := p.queue.Adopt(ctx); adopted > 0 {
		p.logger.Info("adopted pending events from previous session", "events", adopted)
	}

	p.sender.Start(ctx)
	if err := p.sweep.Start(ctx); err != nil && !errors.Is(err, sched.ErrAlreadyStarted) {
		p.logger.Error("dedup sweep start failed", "error", err)
	}
}

// Suspend synchronously persists the queue snapshot and stops the send task,
// protecting buffered events against teardown. The dedup sweep keeps
// running.
//
// Parameters:
//   - ctx: Context for the snapshot write
func (p *Pipeline) Suspend(ctx context.Context) {
	p.queue.Persist(ctx)
	p.sender.Stop()
}

// Resume restarts the send task from a clean state: breaker closed, failure
// counter zero.
//
// Parameters:
//   - ctx: Lifecycle context for the send task
func (p *Pipeline) Resume(ctx context.Context) {
	p.sender.Start(ctx)
}

// Stop persists the queue snapshot and ends all background work.
//
// Parameters:
//   - ctx: Context for the snapshot write
func (p *Pipeline) Stop(ctx context.Context) {
	p.Suspend(ctx)
	if err := p.sweep.Stop(); err != nil && !errors.Is(err, sched.ErrNotStarted) {
		p.logger.Error("dedup sweep stop failed", "error", err)
	}
}

// Flush synchronously drains the queue. See Sender.Flush.
func (p *Pipeline) Flush(ctx context.Context) error {
	return p.sender.Flush(ctx)
}

// QueueLen returns the number of pending events.
func (p *Pipeline) QueueLen() int {
	return p.queue.Len()
}

// BreakerOpen reports whether the delivery circuit breaker is open.
func (p *Pipeline) BreakerOpen() bool {
	return p.sender.BreakerOpen()
}

// QueueEvent validates an event, waits for rate-limit capacity, and appends
// it to the pending queue.
//
// A missing envelope type or payload, or the absence of both identifiers,
// is a ValidationError: fatal to this call, nothing queued, never retried.
// A zero ClientTimestamp is stamped with the current time and timezone.
//
// Parameters:
//   - ctx: Context for the rate-limit wait
//   - e: Event to queue
//
// Returns:
//   - error: ValidationError, the context error from the rate-limit wait,
//     or nil
func (p *Pipeline) QueueEvent(ctx context.Context, e types.Event) error {
	var missing []string
	if e.Type == "" {
		missing = append(missing, "type")
	}
	if e.EventData == nil {
		missing = append(missing, "eventData")
	}
	if e.UserID == "" && e.SessionID == "" {
		missing = append(missing, "userId or sessionId")
	}
	if len(missing) > 0 {
		p.metrics.RecordValidationFailure("queue_event")
		return types.NewValidationError("queue_event", missing...)
	}

	if e.ClientTimestamp == 0 {
		now := p.clock.Now()
		e.ClientTimestamp = now.UnixMilli()
		e.TimezoneOffset = timezoneOffset(now)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	p.queue.Add(e)
	p.metrics.RecordEventQueued(e.EventName)

	return nil
}

// ReportAssignment queues the test_assignment event for a newly stored
// assignment, plus its derived deduplicated test_impression.
//
// Parameters:
//   - ctx: Context for the rate-limit waits
//   - a: The stored assignment
//   - id: The resolved identity to attribute the events to
//
// Returns:
//   - error: Queueing error, or nil
func (p *Pipeline) ReportAssignment(ctx context.Context, a types.Assignment, id types.Identity) error {
	evt := p.newEvent(types.EventNameAssignment, id, p.clock.Now())
	evt.EventData = assignmentData(a)

	if err := p.QueueEvent(ctx, evt); err != nil {
		return err
	}

	_, err := p.ReportImpression(ctx, a, id)

	return err
}

// ReportImpression queues a test_impression event unless an identical one
// was already reported within the dedup window.
//
// The impression's ClientTimestamp is the assignment's CreatedAt, so
// re-reporting the same assignment (for instance on every initialization)
// produces an identical dedup key and is suppressed.
//
// Parameters:
//   - ctx: Context for the rate-limit wait
//   - a: The assignment being exposed
//   - id: The resolved identity to attribute the event to
//
// Returns:
//   - bool: Whether the event was queued (false when deduplicated)
//   - error: Queueing error, or nil
func (p *Pipeline) ReportImpression(ctx context.Context, a types.Assignment, id types.Identity) (bool, error) {
	ts := a.CreatedAt.UnixMilli()
	if p.dedup.IsDuplicate(id.SessionID, a.TestID, types.EventNameImpression, ts) {
		p.metrics.RecordEventDeduplicated()
		p.logger.Debug("impression deduplicated", "test_id", a.TestID)
		return false, nil
	}

	evt := p.newEvent(types.EventNameImpression, id, p.clock.Now())
	evt.ClientTimestamp = ts
	evt.EventData = impressionData(a)

	if err := p.QueueEvent(ctx, evt); err != nil {
		return false, err
	}

	p.dedup.MarkProcessed(id.SessionID, a.TestID, types.EventNameImpression, ts)

	return true, nil
}

// sweepTick proactively purges stale dedup entries.
func (p *Pipeline) sweepTick(_ /* ctx */ context.Context) {
	if removed := p.dedup.Sweep(); removed > 0 {
		p.logger.Debug("dedup sweep purged stale entries", "count", removed)
	}
}

// newEvent composes the envelope shared by the pipeline's own events.
func (p *Pipeline) newEvent(name string, id types.Identity, at time.Time) types.Event {
	return types.Event{
		Type:            types.EventTypeTrack,
		EventName:       name,
		UserID:          id.UserID,
		SessionID:       id.SessionID,
		ClientTimestamp: at.UnixMilli(),
		TimezoneOffset:  timezoneOffset(at),
	}
}

// timezoneOffset returns minutes west of UTC, so UTC+2 yields -120.
func timezoneOffset(at time.Time) int {
	_, offsetSeconds := at.Zone()
	return -offsetSeconds / 60
}

func assignmentData(a types.Assignment) map[string]any {
	return map[string]any{
		"testId":          a.TestID,
		"type":            string(a.Type),
		"mode":            string(a.Mode),
		"pageGroup":       a.PageGroup,
		"assignedVariant": a.AssignedVariant,
		"testedVariant":   a.TestedVariant,
	}
}

func impressionData(a types.Assignment) map[string]any {
	return map[string]any{
		"testId":          a.TestID,
		"pageGroup":       a.PageGroup,
		"assignedVariant": a.AssignedVariant,
		"testedVariant":   a.TestedVariant,
	}
}
