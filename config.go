package variant

import (
	"fmt"
	"time"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// ReporterConfig controls event intake: admission rate limiting and
// impression deduplication.
type ReporterConfig struct {
	// RateLimitMax is the number of events admitted per RateLimitWindow.
	// QueueEvent blocks (context-cancellable) until the sliding window has
	// room.
	RateLimitMax int `yaml:"rateLimitMax"`

	// RateLimitWindow is the sliding admission window.
	RateLimitWindow time.Duration `yaml:"rateLimitWindow"`

	// DedupWindow is how long a reported impression suppresses identical
	// re-reports (same session, test, event name, and timestamp).
	DedupWindow time.Duration `yaml:"dedupWindow"`

	// DedupSweepInterval is how often stale dedup entries are proactively
	// purged. Entries are also evicted lazily on lookup, so this only
	// bounds memory between lookups.
	DedupSweepInterval time.Duration `yaml:"dedupSweepInterval"`
}

// DeliveryConfig controls the batch sender and its circuit breaker.
type DeliveryConfig struct {
	// SendInterval is the sender tick period. Each tick drains one batch;
	// ticks are skipped while a send is in flight or the queue is empty.
	SendInterval time.Duration `yaml:"sendInterval"`

	// BatchSize is the maximum number of events delivered per tick.
	BatchSize int `yaml:"batchSize"`

	// FailureCeiling is the number of consecutive batch failures that
	// opens the circuit breaker.
	FailureCeiling int `yaml:"failureCeiling"`

	// BreakerCooldown is how long the sender stays paused after the
	// breaker opens. The sender restarts automatically with a reset
	// failure counter.
	BreakerCooldown time.Duration `yaml:"breakerCooldown"`
}

// RetryConfig controls per-batch delivery retries inside a single sender
// tick. The delay before retry n is min(BaseDelay*2^n + jitter, MaxDelay),
// with jitter drawn uniformly from [0, MaxJitter).
type RetryConfig struct {
	// Attempts is the total number of tries per batch, including the first.
	Attempts uint `yaml:"attempts"`

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration `yaml:"baseDelay"`

	// MaxDelay caps the computed delay, jitter included.
	MaxDelay time.Duration `yaml:"maxDelay"`

	// MaxJitter is the upper bound of the uniform jitter added to every
	// delay. Zero disables jitter.
	MaxJitter time.Duration `yaml:"maxJitter"`

	// AttemptTimeout bounds each individual attempt. Zero leaves attempts
	// bounded only by the caller's context.
	AttemptTimeout time.Duration `yaml:"attemptTimeout"`
}

// ============================================================================
// Timing Configuration Model
// ============================================================================
//
// The client uses three timing tiers, each with its own failure semantics:
//
// TIER 1: Intake (Reporter) - how fast events may enter the queue.
//   - RateLimitMax / RateLimitWindow: sliding-window admission. Callers
//     block until room frees up; cancellation propagates via context.
//   - DedupWindow: identical impressions within the window are dropped
//     before they ever reach the queue.
//
// TIER 2: Drain (Delivery) - how fast queued events leave the process.
//   - SendInterval x BatchSize bounds throughput: 100ms x 10 = 100 events/s.
//   - A batch is removed from the queue only after the collector accepts
//     it, so delivery is at-least-once and strictly FIFO.
//
// TIER 3: Failure handling (Retry + breaker) - what happens when the
// collector misbehaves.
//   - Each batch gets RetryConfig.Attempts tries with exponential backoff
//     inside one tick; exhaustion counts as one sender failure.
//   - FailureCeiling consecutive sender failures open the breaker; the
//     sender pauses for BreakerCooldown, then restarts with a clean
//     counter. Queued events survive the pause.
//
// Constraint hierarchy:
//   BreakerCooldown >= SendInterval (a pause must outlast at least one tick)
//   MaxDelay >= BaseDelay
//
// ============================================================================

// Config is the configuration for the Client.
//
// All duration fields accept standard Go duration strings like "30s", "5m",
// "1h" when loaded from YAML.
type Config struct {
	// CollectorURL is the event collector endpoint. Required unless a
	// custom Transport is supplied via WithTransport.
	CollectorURL string `yaml:"collectorUrl"`

	// APIKey is sent as the X-API-Key header on collector requests.
	// Optional; omitted from requests when empty.
	APIKey string `yaml:"apiKey"`

	// TenantID is sent as the X-Tenant-ID header on collector requests.
	// Optional; omitted from requests when empty.
	TenantID string `yaml:"tenantId"`

	// Device is this client's device class for test targeting: "mobile",
	// "desktop", or "all". Tests whose Device field names a different
	// class are invisible to bucketing. Empty behaves like "all".
	Device string `yaml:"device"`

	// StorageKeyPrefix namespaces every key the client writes to its
	// stores. Two clients sharing a store must use distinct prefixes.
	StorageKeyPrefix string `yaml:"storageKeyPrefix"`

	// SessionTTL is the inactivity window after which the session id
	// rotates. Matches the collector's session stitching window.
	SessionTTL time.Duration `yaml:"sessionTtl"`

	// AssignmentTTL is the validity horizon for stored assignments.
	// Assignments older than this are treated as absent and eventually
	// purged by Cleanup.
	AssignmentTTL time.Duration `yaml:"assignmentTtl"`

	// StartupTimeout bounds the storage work done by Start (identity
	// resolution, assignment adoption, queue adoption).
	StartupTimeout time.Duration `yaml:"startupTimeout"`

	// ShutdownTimeout bounds the storage work done by Stop (queue
	// persistence, last-activity stamp).
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// Reporter controls event intake.
	Reporter ReporterConfig `yaml:"reporter"`

	// Delivery controls the batch sender and circuit breaker.
	Delivery DeliveryConfig `yaml:"delivery"`

	// Retry controls per-batch delivery retries.
	Retry RetryConfig `yaml:"retry"`
}

// DefaultConfig returns a Config with production defaults.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		Device:           types.DeviceAll,
		StorageKeyPrefix: "variant",
		SessionTTL:       30 * time.Minute,
		AssignmentTTL:    30 * 24 * time.Hour,
		StartupTimeout:   30 * time.Second,
		ShutdownTimeout:  10 * time.Second,
		Reporter: ReporterConfig{
			RateLimitMax:       50,
			RateLimitWindow:    60 * time.Second,
			DedupWindow:        30 * time.Minute,
			DedupSweepInterval: time.Hour,
		},
		Delivery: DeliveryConfig{
			SendInterval:    100 * time.Millisecond,
			BatchSize:       10,
			FailureCeiling:  3,
			BreakerCooldown: 60 * time.Second,
		},
		Retry: RetryConfig{
			Attempts:       3,
			BaseDelay:      time.Second,
			MaxDelay:       30 * time.Second,
			MaxJitter:      time.Second,
			AttemptTimeout: 10 * time.Second,
		},
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Device == "" {
		cfg.Device = defaults.Device
	}
	if cfg.StorageKeyPrefix == "" {
		cfg.StorageKeyPrefix = defaults.StorageKeyPrefix
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = defaults.SessionTTL
	}
	if cfg.AssignmentTTL == 0 {
		cfg.AssignmentTTL = defaults.AssignmentTTL
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = defaults.StartupTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.Reporter.RateLimitMax == 0 {
		cfg.Reporter.RateLimitMax = defaults.Reporter.RateLimitMax
	}
	if cfg.Reporter.RateLimitWindow == 0 {
		cfg.Reporter.RateLimitWindow = defaults.Reporter.RateLimitWindow
	}
	if cfg.Reporter.DedupWindow == 0 {
		cfg.Reporter.DedupWindow = defaults.Reporter.DedupWindow
	}
	if cfg.Reporter.DedupSweepInterval == 0 {
		cfg.Reporter.DedupSweepInterval = defaults.Reporter.DedupSweepInterval
	}
	if cfg.Delivery.SendInterval == 0 {
		cfg.Delivery.SendInterval = defaults.Delivery.SendInterval
	}
	if cfg.Delivery.BatchSize == 0 {
		cfg.Delivery.BatchSize = defaults.Delivery.BatchSize
	}
	if cfg.Delivery.FailureCeiling == 0 {
		cfg.Delivery.FailureCeiling = defaults.Delivery.FailureCeiling
	}
	if cfg.Delivery.BreakerCooldown == 0 {
		cfg.Delivery.BreakerCooldown = defaults.Delivery.BreakerCooldown
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry.Attempts = defaults.Retry.Attempts
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = defaults.Retry.BaseDelay
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = defaults.Retry.MaxDelay
	}
	if cfg.Retry.AttemptTimeout == 0 {
		cfg.Retry.AttemptTimeout = defaults.Retry.AttemptTimeout
	}
	// Note: MaxJitter of 0 is valid (no jitter), so we don't apply a default.
}

// Validate checks configuration constraints and returns an error for
// invalid values.
//
// Hard Validation Rules:
//   - BatchSize >= 1 and SendInterval > 0 (the sender must make progress)
//   - FailureCeiling >= 1 (breaker must be reachable)
//   - BreakerCooldown >= SendInterval (a pause must outlast one tick)
//   - RateLimitMax >= 1 and RateLimitWindow > 0
//   - DedupWindow > 0 and DedupSweepInterval > 0
//   - SessionTTL > 0 and AssignmentTTL > 0
//   - Retry.Attempts >= 1 and Retry.MaxDelay >= Retry.BaseDelay
//   - Device is "all", "mobile", or "desktop"
//
// Returns:
//   - error: Validation error with clear explanation, nil if valid
func (cfg *Config) Validate() error {
	// Rule 1: sender progress
	if cfg.Delivery.BatchSize < 1 {
		return fmt.Errorf("BatchSize must be >= 1, got %d", cfg.Delivery.BatchSize)
	}
	if cfg.Delivery.SendInterval <= 0 {
		return fmt.Errorf("SendInterval must be > 0, got %v", cfg.Delivery.SendInterval)
	}

	// Rule 2: breaker sanity
	if cfg.Delivery.FailureCeiling < 1 {
		return fmt.Errorf("FailureCeiling must be >= 1, got %d", cfg.Delivery.FailureCeiling)
	}
	if cfg.Delivery.BreakerCooldown < cfg.Delivery.SendInterval {
		return fmt.Errorf(
			"BreakerCooldown (%v) must be >= SendInterval (%v) so a breaker pause outlasts at least one tick",
			cfg.Delivery.BreakerCooldown, cfg.Delivery.SendInterval,
		)
	}

	// Rule 3: intake limits
	if cfg.Reporter.RateLimitMax < 1 {
		return fmt.Errorf("RateLimitMax must be >= 1, got %d", cfg.Reporter.RateLimitMax)
	}
	if cfg.Reporter.RateLimitWindow <= 0 {
		return fmt.Errorf("RateLimitWindow must be > 0, got %v", cfg.Reporter.RateLimitWindow)
	}
	if cfg.Reporter.DedupWindow <= 0 {
		return fmt.Errorf("DedupWindow must be > 0, got %v", cfg.Reporter.DedupWindow)
	}
	if cfg.Reporter.DedupSweepInterval <= 0 {
		return fmt.Errorf("DedupSweepInterval must be > 0, got %v", cfg.Reporter.DedupSweepInterval)
	}

	// Rule 4: identity and assignment horizons
	if cfg.SessionTTL <= 0 {
		return fmt.Errorf("SessionTTL must be > 0, got %v", cfg.SessionTTL)
	}
	if cfg.AssignmentTTL <= 0 {
		return fmt.Errorf("AssignmentTTL must be > 0, got %v", cfg.AssignmentTTL)
	}

	// Rule 5: retry policy
	if cfg.Retry.Attempts < 1 {
		return fmt.Errorf("Retry.Attempts must be >= 1, got %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		return fmt.Errorf(
			"Retry.MaxDelay (%v) must be >= Retry.BaseDelay (%v)",
			cfg.Retry.MaxDelay, cfg.Retry.BaseDelay,
		)
	}

	// Rule 6: device class
	switch cfg.Device {
	case types.DeviceAll, types.DeviceMobile, types.DeviceDesktop:
	default:
		return fmt.Errorf(
			"Device must be %q, %q, or %q, got %q",
			types.DeviceAll, types.DeviceMobile, types.DeviceDesktop, cfg.Device,
		)
	}

	return nil
}

// ValidateWithWarnings checks configuration and logs warnings for
// non-recommended values.
//
// This is called after Validate() in New() to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	// Warn when the sweep runs more often than entries can expire; the
	// sweeps will mostly find nothing.
	if cfg.Reporter.DedupSweepInterval < cfg.Reporter.DedupWindow {
		logger.Warn(
			"DedupSweepInterval is shorter than DedupWindow, sweeps will rarely purge anything",
			"sweepInterval", cfg.Reporter.DedupSweepInterval,
			"dedupWindow", cfg.Reporter.DedupWindow,
		)
	}

	// Warn when attempts are unbounded; a hung collector connection can
	// then hold the sender until the lifecycle context ends.
	if cfg.Retry.AttemptTimeout == 0 {
		logger.Warn(
			"Retry.AttemptTimeout is zero, delivery attempts are bounded only by the lifecycle context",
			"recommended", "10s",
		)
	}
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Test timings are 10-100x faster than production defaults to enable rapid
// iteration without sacrificing coverage. Use DefaultConfig() for
// production deployments.
//
// Returns:
//   - Config: Configuration with fast timings for tests
//
// Example:
//
//	cfg := variant.TestConfig()
//	cfg.CollectorURL = srv.URL
//	client, err := variant.New(&cfg, store, catalog)
func TestConfig() Config {
	cfg := DefaultConfig()

	// Fast timings for test execution
	cfg.StartupTimeout = 5 * time.Second
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.Delivery.SendInterval = 10 * time.Millisecond
	cfg.Delivery.BreakerCooldown = 100 * time.Millisecond
	cfg.Reporter.RateLimitWindow = time.Second
	cfg.Reporter.DedupSweepInterval = time.Second
	cfg.Retry.Attempts = 1
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = 10 * time.Millisecond
	cfg.Retry.MaxJitter = 0
	cfg.Retry.AttemptTimeout = time.Second

	return cfg
}
