package variant

import (
	"math/rand/v2"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// Option configures a Client with optional dependencies.
type Option func(*clientOptions)

// clientOptions holds optional Client configuration.
type clientOptions struct {
	logger    types.Logger
	metrics   types.MetricsCollector
	hooks     *types.Hooks
	mirror    types.Store
	transport types.Transport
	sink      types.Sink
	clock     types.Clock
	rng       *rand.Rand
	device    string
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for New
//
// Example:
//
//	logger := logging.NewSlogDefault()
//	client, err := variant.New(&cfg, store, catalog, variant.WithLogger(logger))
func WithLogger(logger types.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for New
//
// Example:
//
//	collector := metrics.NewPrometheus(prometheus.DefaultRegisterer, "variant")
//	client, err := variant.New(&cfg, store, catalog, variant.WithMetrics(collector))
func WithMetrics(metrics types.MetricsCollector) Option {
	return func(o *clientOptions) {
		o.metrics = metrics
	}
}

// WithHooks sets lifecycle event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for New
//
// Example:
//
//	hooks := &variant.Hooks{
//	    OnAssignment: func(ctx context.Context, a variant.Assignment) error {
//	        return applyVariant(a)
//	    },
//	}
//	client, err := variant.New(&cfg, store, catalog, variant.WithHooks(hooks))
func WithHooks(hooks *types.Hooks) Option {
	return func(o *clientOptions) {
		o.hooks = hooks
	}
}

// WithMirror sets a secondary store that mirrors the visitor identity.
//
// The mirror is consulted when the primary store has no identity (for
// instance after a cache eviction) and receives every identity write. Only
// identity keys are mirrored; assignments and queue snapshots stay in the
// primary store.
//
// Parameters:
//   - mirror: Secondary Store implementation
//
// Returns:
//   - Option: Functional option for New
func WithMirror(mirror types.Store) Option {
	return func(o *clientOptions) {
		o.mirror = mirror
	}
}

// WithTransport replaces the default HTTP collector transport.
//
// When set, Config.CollectorURL, APIKey, and TenantID are ignored.
//
// Parameters:
//   - transport: Transport implementation delivering event batches
//
// Returns:
//   - Option: Functional option for New
func WithTransport(transport types.Transport) Option {
	return func(o *clientOptions) {
		o.transport = transport
	}
}

// WithSink sets the fire-and-forget assignment announce sink.
//
// Parameters:
//   - sink: Sink implementation (e.g. sink.NewNATS, sink.NewKafka)
//
// Returns:
//   - Option: Functional option for New
func WithSink(sink types.Sink) Option {
	return func(o *clientOptions) {
		o.sink = sink
	}
}

// WithClock sets the time source used by the schedulers, the rate limiter,
// the deduplicator, and the circuit breaker. Tests inject a manual clock.
//
// Parameters:
//   - clock: Clock implementation
//
// Returns:
//   - Option: Functional option for New
//
// Example:
//
//	clock := varianttest.NewManualClock(time.Now())
//	client, err := variant.New(&cfg, store, catalog, variant.WithClock(clock))
func WithClock(clock types.Clock) Option {
	return func(o *clientOptions) {
		o.clock = clock
	}
}

// WithRandSeed seeds the bucketing random source, making traffic draws
// reproducible. Without this option the source is seeded from the clock.
//
// Parameters:
//   - seed: Seed for the uniform random source
//
// Returns:
//   - Option: Functional option for New
func WithRandSeed(seed uint64) Option {
	return func(o *clientOptions) {
		o.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithDevice overrides Config.Device with a device class detected at
// runtime.
//
// Parameters:
//   - device: Device class ("mobile", "desktop", or "all")
//
// Returns:
//   - Option: Functional option for New
func WithDevice(device string) Option {
	return func(o *clientOptions) {
		o.device = device
	}
}
