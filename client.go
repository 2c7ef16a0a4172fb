package variant

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/eladnissenberg/variant-shopify-setup/internal/assignment"
	"github.com/eladnissenberg/variant-shopify-setup/internal/delivery"
	"github.com/eladnissenberg/variant-shopify-setup/internal/hooks"
	"github.com/eladnissenberg/variant-shopify-setup/internal/identity"
	"github.com/eladnissenberg/variant-shopify-setup/internal/logging"
	"github.com/eladnissenberg/variant-shopify-setup/internal/metrics"
	"github.com/eladnissenberg/variant-shopify-setup/internal/retry"
	"github.com/eladnissenberg/variant-shopify-setup/internal/sched"
	"github.com/eladnissenberg/variant-shopify-setup/sink"
	"github.com/eladnissenberg/variant-shopify-setup/transport"
	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// Client buckets a visitor into experiment variants and reliably reports
// the resulting tracking events to a remote collector.
//
// Client is the main entry point of the variant library. It owns:
//   - An identity provider resolving the durable user id and rotating
//     session id
//   - An assignment engine running mutually-exclusive bucketing per page
//     group and exposure attribution
//   - A delivery pipeline that queues, deduplicates, rate-limits, batches,
//     and retries event delivery with a circuit breaker
//
// Thread Safety:
//   - All public methods are safe for concurrent use
//   - State transitions are atomic and linearizable
//   - Events drain in FIFO enqueue order
//
// Lifecycle:
//   - Create with New()
//   - Call Start() to resolve identity, bucket the catalog, and begin
//     delivery
//   - Suspend()/Resume() around host interruptions; queued events survive
//   - Call Stop() for graceful shutdown; the pending queue is persisted and
//     adopted by the next instance
//
// One Client serves one visitor. Construct exactly one per process (or per
// visitor scope); two instances sharing a store and prefix would race on
// the persisted queue snapshot.
type Client struct {
	cfg     Config
	catalog types.Catalog
	device  string

	// Optional dependencies
	sink    types.Sink
	hooks   *types.Hooks
	metrics types.MetricsCollector
	logger  types.Logger
	clock   types.Clock

	// Internal components
	identity *identity.Provider
	engine   *assignment.Engine
	pipeline *delivery.Pipeline

	// State management
	state atomic.Int32 // State

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
}

// New creates a new Client instance with the provided configuration.
//
// The Client assigns the visitor to experiment variants and reports
// assignment, impression, and host events to the collector:
//   - Identity resolution (durable user id, sliding-expiration session id)
//   - Mutually-exclusive bucketing per page group with two-tier exposure
//     attribution
//   - At-least-once batched event delivery with retry and circuit breaker
//
// Returns a concrete *Client struct following the "accept interfaces,
// return structs" principle. Consumers can define their own interfaces for
// testing if needed.
//
// Parameters:
//   - cfg: Runtime configuration with parsed durations
//   - store: Durable store for identity, assignments, and queue snapshots
//   - catalog: Experiment catalog (test definitions plus traffic map)
//   - opts: Optional configuration (logger, metrics, hooks, mirror store,
//     transport, sink, clock, random seed, device)
//
// Returns:
//   - *Client: Initialized client instance
//   - error: Validation error if the configuration or catalog is invalid
//
// Example:
//
//	cfg := variant.Config{CollectorURL: "https://collect.example.com/events"}
//	catalog, _ := catalog.LoadFile("experiments.yaml")
//	client, err := variant.New(&cfg, storage.NewMemory(), catalog)
func New(cfg *Config, store types.Store, catalog types.Catalog, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	// Apply options
	options := &clientOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// Fill in missing configuration values with defaults; a runtime device
	// override participates in validation like a configured one
	SetDefaults(cfg)
	if options.device != "" {
		cfg.Device = options.device
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Validate the catalog before any bucketing can run
	if err := catalog.Validate(); err != nil {
		return nil, err
	}

	// Provide safe defaults for optional dependencies to avoid nil checks everywhere
	metricsCollector := options.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	}

	loggerInstance := options.logger
	if loggerInstance == nil {
		loggerInstance = logging.NewNop()
	}

	// Validate with warnings after logger is available
	cfg.ValidateWithWarnings(loggerInstance)

	hooksInstance := options.hooks
	if hooksInstance == nil {
		nopHooks := hooks.NewNop()
		hooksInstance = &nopHooks
	}

	clockInstance := options.clock
	if clockInstance == nil {
		clockInstance = sched.NewRealClock()
	}

	transportInstance := options.transport
	if transportInstance == nil {
		if cfg.CollectorURL == "" {
			return nil, fmt.Errorf("invalid configuration: CollectorURL is required when no WithTransport option is given")
		}
		transportInstance = transport.NewCollector(transport.CollectorConfig{
			URL:      cfg.CollectorURL,
			APIKey:   cfg.APIKey,
			TenantID: cfg.TenantID,
		})
	}

	sinkInstance := options.sink
	if sinkInstance == nil {
		sinkInstance = sink.NewNop()
	}

	rng := options.rng
	if rng == nil {
		seed := uint64(clockInstance.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed))
	}

	c := &Client{
		cfg:     *cfg,
		catalog: catalog,
		device:  cfg.Device,
		sink:    sinkInstance,
		hooks:   hooksInstance,
		metrics: metricsCollector,
		logger:  loggerInstance,
		clock:   clockInstance,
	}

	c.identity = identity.NewProvider(
		store,
		options.mirror,
		cfg.StorageKeyPrefix,
		cfg.SessionTTL,
		clockInstance,
		loggerInstance,
		metricsCollector,
	)
	c.engine = assignment.NewEngine(
		store,
		cfg.StorageKeyPrefix,
		cfg.AssignmentTTL,
		clockInstance,
		rng,
		loggerInstance,
		metricsCollector,
	)
	c.pipeline = delivery.NewPipeline(&delivery.PipelineConfig{
		Store:     store,
		Prefix:    cfg.StorageKeyPrefix,
		Transport: transportInstance,
		Retry: retry.Config{
			Attempts:       cfg.Retry.Attempts,
			BaseDelay:      cfg.Retry.BaseDelay,
			MaxDelay:       cfg.Retry.MaxDelay,
			MaxJitter:      cfg.Retry.MaxJitter,
			AttemptTimeout: cfg.Retry.AttemptTimeout,
		},
		RateLimitMax:       cfg.Reporter.RateLimitMax,
		RateLimitWindow:    cfg.Reporter.RateLimitWindow,
		DedupWindow:        cfg.Reporter.DedupWindow,
		DedupSweepInterval: cfg.Reporter.DedupSweepInterval,
		SendInterval:       cfg.Delivery.SendInterval,
		BatchSize:          cfg.Delivery.BatchSize,
		FailureCeiling:     cfg.Delivery.FailureCeiling,
		BreakerCooldown:    cfg.Delivery.BreakerCooldown,
		Clock:              clockInstance,
		Logger:             loggerInstance,
		Metrics:            metricsCollector,
		Hooks:              hooksInstance,
	})

	// Initialize state
	c.state.Store(int32(StateInit))

	return c, nil
}

// Start resolves the visitor identity, adopts persisted state, buckets the
// catalog, and begins event delivery.
//
// New assignments produced by bucketing are stored, announced to the sink,
// and reported as test_assignment plus test_impression events. Assignments
// that predate this start are re-reported as impressions, deduplicated per
// session.
//
// Parameters:
//   - ctx: Context for startup storage work (bounded by StartupTimeout)
//
// Returns:
//   - error: ErrAlreadyStarted if the client is already running
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.ctx != nil {
		c.mu.Unlock()

		return ErrAlreadyStarted
	}

	// The lifecycle context outlives the startup context
	c.ctx, c.cancel = context.WithCancel(context.Background())
	lifecycleCtx := c.ctx
	c.mu.Unlock()

	// Apply startup timeout from the provided context
	startupCtx := ctx
	if c.cfg.StartupTimeout > 0 {
		var cancel context.CancelFunc
		startupCtx, cancel = context.WithTimeout(ctx, c.cfg.StartupTimeout)
		defer cancel()
	}

	// Step 1: Resolve the visitor identity
	id := c.identity.Resolve(startupCtx)

	// Step 2: Adopt persisted assignments, dropping expired ones
	c.engine.Load(startupCtx)

	// Step 3: Start the delivery pipeline; it adopts the queue snapshot a
	// previous instance persisted
	c.pipeline.Start(lifecycleCtx)

	// Step 4: Bucket the catalog. Apply every proposal first so exposure
	// attribution is settled, then report each stored assignment.
	proposals := c.engine.AssignGroups(startupCtx, c.catalog.Tests, c.catalog.TrafficFor, c.device)
	fresh := make(map[string]struct{}, len(proposals))
	for _, proposal := range proposals {
		c.engine.SetAssignment(startupCtx, proposal)
		fresh[proposal.TestID] = struct{}{}
	}
	for _, proposal := range proposals {
		stored, ok := c.engine.Assignment(proposal.TestID)
		if !ok {
			continue
		}
		c.announceAssignment(stored)
		if err := c.pipeline.ReportAssignment(startupCtx, stored, id); err != nil {
			c.logError("assignment report failed", "test_id", stored.TestID, "error", err)
		}
	}

	// Step 5: Report impressions for assignments that predate this start.
	// The deduplicator suppresses re-reports within the same session.
	for _, a := range c.engine.Assignments() {
		if _, isFresh := fresh[a.TestID]; isFresh {
			continue
		}
		if _, err := c.pipeline.ReportImpression(startupCtx, a, id); err != nil {
			c.logError("impression report failed", "test_id", a.TestID, "error", err)
		}
	}

	// Step 6: Transition to running state
	c.transitionState(c.State(), StateRunning)

	return nil
}

// Suspend persists the pending queue and halts the batch sender. Events may
// still be queued while suspended; they deliver after Resume.
//
// Suspend on an already suspended client is a no-op.
//
// Parameters:
//   - ctx: Context for the queue persistence
//
// Returns:
//   - error: ErrNotStarted before Start or after Stop
func (c *Client) Suspend(ctx context.Context) error {
	c.mu.Lock()
	if c.ctx == nil {
		c.mu.Unlock()

		return ErrNotStarted
	}

	currentState := c.State()
	if currentState == StateSuspended {
		c.mu.Unlock()

		return nil
	}
	if currentState != StateRunning {
		c.mu.Unlock()

		return ErrNotStarted
	}

	c.transitionState(currentState, StateSuspended)
	c.mu.Unlock()

	c.pipeline.Suspend(ctx)

	// Record host activity so the session window is measured from the
	// suspension, not the last event
	c.identity.Touch(ctx)

	return nil
}

// Resume restarts the batch sender from a clean state: circuit breaker
// closed, failure counter zero.
//
// Resume on an already running client is a no-op.
//
// Parameters:
//   - ctx: Context for storage work done while resuming
//
// Returns:
//   - error: ErrNotStarted before Start or after Stop
func (c *Client) Resume(ctx context.Context) error {
	c.mu.Lock()
	if c.ctx == nil {
		c.mu.Unlock()

		return ErrNotStarted
	}

	currentState := c.State()
	if currentState == StateRunning {
		c.mu.Unlock()

		return nil
	}
	if currentState != StateSuspended {
		c.mu.Unlock()

		return ErrNotStarted
	}

	c.transitionState(currentState, StateRunning)
	lifecycleCtx := c.ctx
	c.mu.Unlock()

	c.identity.Touch(ctx)
	c.pipeline.Resume(lifecycleCtx)

	return nil
}

// Stop gracefully shuts down the client. The pending queue is persisted for
// adoption by the next instance, the sender and the dedup sweep are halted,
// and background work ends.
//
// Safe to call multiple times - subsequent calls return ErrNotStarted.
//
// Parameters:
//   - ctx: Context for shutdown storage work (bounded by ShutdownTimeout)
//
// Returns:
//   - error: ErrNotStarted if the client never started or already stopped
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()

	// Check if already stopped or never started
	if c.ctx == nil {
		c.mu.Unlock()

		return ErrNotStarted
	}

	// Check if already stopping (concurrent Stop() call)
	currentState := c.State()
	if currentState == StateStopped {
		c.mu.Unlock()

		return ErrNotStarted
	}

	// Transition to the terminal state
	c.transitionState(currentState, StateStopped)

	// Cancel the lifecycle context; a pending breaker cooldown restart dies
	// with it
	c.cancel()
	c.mu.Unlock()

	// Apply shutdown timeout from the provided context
	stopCtx := ctx
	if c.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(ctx, c.cfg.ShutdownTimeout)
		defer cancel()
	}

	// Persist the queue and stop the sender and the dedup sweep
	c.pipeline.Stop(stopCtx)

	// Record last activity so the session window is measured from shutdown
	c.identity.Touch(stopCtx)

	c.logger.Info("client stopped", "pending_events", c.pipeline.QueueLen())

	return nil
}

// Flush synchronously drains the pending queue through the transport,
// bypassing the send schedule. Useful before host teardown when Stop's
// persistence is not desired.
//
// Parameters:
//   - ctx: Context for the delivery calls
//
// Returns:
//   - error: ErrNotStarted before Start or after Stop, or the delivery
//     error that interrupted the drain (remaining events stay queued)
func (c *Client) Flush(ctx context.Context) error {
	if err := c.requireStarted(); err != nil {
		return err
	}

	return c.pipeline.Flush(ctx)
}

// TrackAssignment stores an externally decided assignment and reports it.
//
// Missing TestID, Type, Mode, or PageGroup is a ValidationError. When a
// valid assignment for the test already exists the call is a no-op,
// preserving the existing assignment. Otherwise the assignment is stored
// (recomputing exposure attribution for its page group), announced to the
// sink, and reported as a test_assignment event plus a deduplicated
// test_impression.
//
// Parameters:
//   - ctx: Context for storage work and the rate-limit waits
//   - a: Assignment to store; a zero CreatedAt is stamped with the current
//     time
//
// Returns:
//   - error: ValidationError, ErrNotStarted, or a queueing error
func (c *Client) TrackAssignment(ctx context.Context, a Assignment) error {
	if err := c.requireStarted(); err != nil {
		return err
	}

	var missing []string
	if a.TestID == "" {
		missing = append(missing, "testId")
	}
	if a.Type == "" {
		missing = append(missing, "type")
	}
	if a.Mode == "" {
		missing = append(missing, "mode")
	}
	if a.PageGroup == "" {
		missing = append(missing, "pageGroup")
	}
	if len(missing) > 0 {
		c.metrics.RecordValidationFailure("track_assignment")
		return types.NewValidationError("track_assignment", missing...)
	}

	// A valid assignment for this test already exists; keep it
	if _, exists := c.engine.Assignment(a.TestID); exists {
		return nil
	}

	stored := c.engine.SetAssignment(ctx, a)
	c.announceAssignment(stored)

	return c.pipeline.ReportAssignment(ctx, stored, c.identity.Identity())
}

// QueueEvent validates a host event and appends it to the pending queue,
// waiting for rate-limit capacity first.
//
// The event must carry at least one identifier; use Identity to stamp the
// resolved ids. A zero ClientTimestamp is filled with the current time and
// timezone offset.
//
// Parameters:
//   - ctx: Context for the rate-limit wait
//
// Returns:
//   - error: ValidationError, ErrNotStarted, or the context error from the
//     rate-limit wait
func (c *Client) QueueEvent(ctx context.Context, e Event) error {
	if err := c.requireStarted(); err != nil {
		return err
	}

	return c.pipeline.QueueEvent(ctx, e)
}

// Assignment returns the valid assignment for a test id. Expired
// assignments are reported as absent without being deleted.
//
// Parameters:
//   - testID: Test identifier
//
// Returns:
//   - Assignment: The assignment (zero when absent or expired)
//   - bool: Whether a valid assignment exists
func (c *Client) Assignment(testID string) (Assignment, bool) {
	return c.engine.Assignment(testID)
}

// Assignments returns all valid assignments. Order is not significant.
//
// Returns:
//   - []Assignment: Copies of the valid assignments
func (c *Client) Assignments() []Assignment {
	return c.engine.Assignments()
}

// Cleanup purges expired assignments from memory and storage.
//
// Parameters:
//   - ctx: Context for storage operations
//
// Returns:
//   - int: Number of assignments purged
func (c *Client) Cleanup(ctx context.Context) int {
	return c.engine.Cleanup(ctx)
}

// Identity returns the resolved visitor identity, or the zero value before
// Start.
//
// Returns:
//   - Identity: The durable user id and current session id
func (c *Client) Identity() Identity {
	return c.identity.Identity()
}

// State returns the current lifecycle state.
//
// Returns:
//   - State: Current state
func (c *Client) State() State {
	return State(c.state.Load())
}

// QueueLen returns the number of pending events awaiting delivery.
//
// Returns:
//   - int: Pending queue length
func (c *Client) QueueLen() int {
	return c.pipeline.QueueLen()
}

// BreakerOpen reports whether the delivery circuit breaker is open.
//
// Returns:
//   - bool: true while delivery is paused after repeated failures
func (c *Client) BreakerOpen() bool {
	return c.pipeline.BreakerOpen()
}

// announceAssignment publishes a stored assignment to the sink and fires the
// OnAssignment hook. Neither blocks the caller: the sink contract is
// non-blocking and the hook runs in a background goroutine.
func (c *Client) announceAssignment(a types.Assignment) {
	ctx := c.lifecycleContext()
	c.sink.Announce(ctx, a)

	if hook := c.hooks.OnAssignment; hook != nil {
		go func() {
			if err := hook(ctx, a); err != nil {
				c.logError("assignment hook error", "test_id", a.TestID, "error", err)
			}
		}()
	}
}

// requireStarted returns ErrNotStarted before Start and after Stop.
func (c *Client) requireStarted() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.ctx == nil || c.State() == StateStopped {
		return ErrNotStarted
	}

	return nil
}

// lifecycleContext returns the client's lifecycle context, or a background
// context before Start.
func (c *Client) lifecycleContext() context.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.ctx == nil {
		return context.Background()
	}

	return c.ctx
}

// transitionState transitions to a new state after validating the edge.
func (c *Client) transitionState(from, to State) {
	if !c.isValidTransition(from, to) {
		c.logError("invalid state transition attempted",
			"from", from.String(),
			"to", to.String(),
		)

		return
	}

	c.state.Store(int32(to))

	c.logger.Info("state transition",
		"from", from.String(),
		"to", to.String(),
	)
}

// isValidTransition validates that a state transition is allowed.
//
// Returns:
//   - bool: true if transition is valid, false otherwise
func (c *Client) isValidTransition(from, to State) bool {
	validTransitions := map[State][]State{
		StateInit:      {StateRunning, StateStopped},
		StateRunning:   {StateSuspended, StateStopped},
		StateSuspended: {StateRunning, StateStopped},
		StateStopped:   {}, // Terminal state - no transitions allowed
	}

	allowedStates, exists := validTransitions[from]
	if !exists {
		return false
	}

	for _, allowed := range allowedStates {
		if allowed == to {
			return true
		}
	}

	return false
}

// logError logs an error message.
func (c *Client) logError(msg string, keysAndValues ...any) {
	// Logger is always non-nil (defaults to nopLogger)
	c.logger.Error(msg, keysAndValues...)
}
