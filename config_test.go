package variant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, "all", cfg.Device)
	require.Equal(t, "variant", cfg.StorageKeyPrefix)
	require.Equal(t, 30*time.Minute, cfg.SessionTTL)
	require.Equal(t, 30*24*time.Hour, cfg.AssignmentTTL)
	require.Equal(t, 30*time.Second, cfg.StartupTimeout)
	require.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	require.Equal(t, 50, cfg.Reporter.RateLimitMax)
	require.Equal(t, 60*time.Second, cfg.Reporter.RateLimitWindow)
	require.Equal(t, 30*time.Minute, cfg.Reporter.DedupWindow)
	require.Equal(t, time.Hour, cfg.Reporter.DedupSweepInterval)
	require.Equal(t, 100*time.Millisecond, cfg.Delivery.SendInterval)
	require.Equal(t, 10, cfg.Delivery.BatchSize)
	require.Equal(t, 3, cfg.Delivery.FailureCeiling)
	require.Equal(t, 60*time.Second, cfg.Delivery.BreakerCooldown)
	require.Equal(t, uint(3), cfg.Retry.Attempts)
	require.Equal(t, time.Second, cfg.Retry.BaseDelay)
	require.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
	require.Equal(t, time.Second, cfg.Retry.MaxJitter)
	require.Equal(t, 10*time.Second, cfg.Retry.AttemptTimeout)

	require.NoError(t, cfg.Validate())
}

func TestSetDefaults(t *testing.T) {
	t.Run("applies defaults to empty config", func(t *testing.T) {
		cfg := Config{}
		SetDefaults(&cfg)

		require.Equal(t, "variant", cfg.StorageKeyPrefix)
		require.Equal(t, 30*time.Minute, cfg.SessionTTL)
		require.Equal(t, 50, cfg.Reporter.RateLimitMax)
		require.Equal(t, 10, cfg.Delivery.BatchSize)
		require.Equal(t, uint(3), cfg.Retry.Attempts)
	})

	t.Run("preserves custom values", func(t *testing.T) {
		cfg := Config{
			Device:           "mobile",
			StorageKeyPrefix: "shop",
			SessionTTL:       time.Hour,
			AssignmentTTL:    14 * 24 * time.Hour,
			Reporter: ReporterConfig{
				RateLimitMax:       100,
				RateLimitWindow:    30 * time.Second,
				DedupWindow:        10 * time.Minute,
				DedupSweepInterval: 20 * time.Minute,
			},
			Delivery: DeliveryConfig{
				SendInterval:    time.Second,
				BatchSize:       25,
				FailureCeiling:  5,
				BreakerCooldown: 2 * time.Minute,
			},
			Retry: RetryConfig{
				Attempts:       5,
				BaseDelay:      500 * time.Millisecond,
				MaxDelay:       time.Minute,
				MaxJitter:      2 * time.Second,
				AttemptTimeout: 5 * time.Second,
			},
		}
		SetDefaults(&cfg)

		// All custom values should be preserved
		require.Equal(t, "mobile", cfg.Device)
		require.Equal(t, "shop", cfg.StorageKeyPrefix)
		require.Equal(t, time.Hour, cfg.SessionTTL)
		require.Equal(t, 14*24*time.Hour, cfg.AssignmentTTL)
		require.Equal(t, 100, cfg.Reporter.RateLimitMax)
		require.Equal(t, 30*time.Second, cfg.Reporter.RateLimitWindow)
		require.Equal(t, 10*time.Minute, cfg.Reporter.DedupWindow)
		require.Equal(t, 20*time.Minute, cfg.Reporter.DedupSweepInterval)
		require.Equal(t, time.Second, cfg.Delivery.SendInterval)
		require.Equal(t, 25, cfg.Delivery.BatchSize)
		require.Equal(t, 5, cfg.Delivery.FailureCeiling)
		require.Equal(t, 2*time.Minute, cfg.Delivery.BreakerCooldown)
		require.Equal(t, uint(5), cfg.Retry.Attempts)
		require.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay)
		require.Equal(t, time.Minute, cfg.Retry.MaxDelay)
		require.Equal(t, 2*time.Second, cfg.Retry.MaxJitter)
		require.Equal(t, 5*time.Second, cfg.Retry.AttemptTimeout)
	})

	t.Run("applies partial defaults", func(t *testing.T) {
		cfg := Config{
			StorageKeyPrefix: "shop",
			Delivery:         DeliveryConfig{BatchSize: 25},
			// Leave other fields empty
		}
		SetDefaults(&cfg)

		// Custom values preserved
		require.Equal(t, "shop", cfg.StorageKeyPrefix)
		require.Equal(t, 25, cfg.Delivery.BatchSize)
		// Defaults applied
		require.Equal(t, 100*time.Millisecond, cfg.Delivery.SendInterval)
		require.Equal(t, 3, cfg.Delivery.FailureCeiling)
		require.Equal(t, 50, cfg.Reporter.RateLimitMax)
	})
}

func TestConfigValidate(t *testing.T) {
	mutate := func(fn func(*Config)) Config {
		cfg := DefaultConfig()
		fn(&cfg)
		return cfg
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "zero batch size",
			cfg:  mutate(func(c *Config) { c.Delivery.BatchSize = 0 }),
			want: "BatchSize",
		},
		{
			name: "negative send interval",
			cfg:  mutate(func(c *Config) { c.Delivery.SendInterval = -time.Second }),
			want: "SendInterval",
		},
		{
			name: "zero failure ceiling",
			cfg:  mutate(func(c *Config) { c.Delivery.FailureCeiling = 0 }),
			want: "FailureCeiling",
		},
		{
			name: "cooldown shorter than tick",
			cfg:  mutate(func(c *Config) { c.Delivery.BreakerCooldown = 10 * time.Millisecond }),
			want: "BreakerCooldown",
		},
		{
			name: "zero rate limit",
			cfg:  mutate(func(c *Config) { c.Reporter.RateLimitMax = 0 }),
			want: "RateLimitMax",
		},
		{
			name: "zero dedup window",
			cfg:  mutate(func(c *Config) { c.Reporter.DedupWindow = 0 }),
			want: "DedupWindow",
		},
		{
			name: "zero session ttl",
			cfg:  mutate(func(c *Config) { c.SessionTTL = 0 }),
			want: "SessionTTL",
		},
		{
			name: "max delay below base delay",
			cfg:  mutate(func(c *Config) { c.Retry.MaxDelay = 100 * time.Millisecond }),
			want: "MaxDelay",
		},
		{
			name: "unknown device class",
			cfg:  mutate(func(c *Config) { c.Device = "tablet" }),
			want: "Device",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

// TestConfig_YAML demonstrates that time.Duration works directly with YAML unmarshaling
func TestConfig_YAML(t *testing.T) {
	yamlConfig := `
collectorUrl: "https://collect.example.com/events"
apiKey: "pk_test_123"
tenantId: "shop-42"
device: "mobile"
storageKeyPrefix: "shop"
sessionTtl: 45m
assignmentTtl: 720h
startupTimeout: 45s
shutdownTimeout: 15s
reporter:
  rateLimitMax: 80
  rateLimitWindow: 30s
  dedupWindow: 20m
  dedupSweepInterval: 40m
delivery:
  sendInterval: 250ms
  batchSize: 20
  failureCeiling: 4
  breakerCooldown: 90s
retry:
  attempts: 5
  baseDelay: 2s
  maxDelay: 1m
  maxJitter: 500ms
  attemptTimeout: 15s
`

	var cfg Config
	err := yaml.Unmarshal([]byte(yamlConfig), &cfg)
	require.NoError(t, err)

	// Verify durations were parsed correctly
	require.Equal(t, "https://collect.example.com/events", cfg.CollectorURL)
	require.Equal(t, "pk_test_123", cfg.APIKey)
	require.Equal(t, "shop-42", cfg.TenantID)
	require.Equal(t, "mobile", cfg.Device)
	require.Equal(t, "shop", cfg.StorageKeyPrefix)
	require.Equal(t, 45*time.Minute, cfg.SessionTTL)
	require.Equal(t, 720*time.Hour, cfg.AssignmentTTL)
	require.Equal(t, 45*time.Second, cfg.StartupTimeout)
	require.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	require.Equal(t, 80, cfg.Reporter.RateLimitMax)
	require.Equal(t, 30*time.Second, cfg.Reporter.RateLimitWindow)
	require.Equal(t, 20*time.Minute, cfg.Reporter.DedupWindow)
	require.Equal(t, 40*time.Minute, cfg.Reporter.DedupSweepInterval)
	require.Equal(t, 250*time.Millisecond, cfg.Delivery.SendInterval)
	require.Equal(t, 20, cfg.Delivery.BatchSize)
	require.Equal(t, 4, cfg.Delivery.FailureCeiling)
	require.Equal(t, 90*time.Second, cfg.Delivery.BreakerCooldown)
	require.Equal(t, uint(5), cfg.Retry.Attempts)
	require.Equal(t, 2*time.Second, cfg.Retry.BaseDelay)
	require.Equal(t, time.Minute, cfg.Retry.MaxDelay)
	require.Equal(t, 500*time.Millisecond, cfg.Retry.MaxJitter)
	require.Equal(t, 15*time.Second, cfg.Retry.AttemptTimeout)

	require.NoError(t, cfg.Validate())
}

// TestConfig_DefaultsWithPartialYAML demonstrates using SetDefaults with partial config
func TestConfig_DefaultsWithPartialYAML(t *testing.T) {
	// Only specify a few fields, rest will use defaults
	yamlConfig := `
collectorUrl: "https://collect.example.com/events"
delivery:
  batchSize: 25
`

	var cfg Config
	err := yaml.Unmarshal([]byte(yamlConfig), &cfg)
	require.NoError(t, err)

	// Apply defaults for unset fields
	SetDefaults(&cfg)

	// Custom values preserved
	require.Equal(t, "https://collect.example.com/events", cfg.CollectorURL)
	require.Equal(t, 25, cfg.Delivery.BatchSize)

	// Defaults applied
	require.Equal(t, "variant", cfg.StorageKeyPrefix)
	require.Equal(t, 30*time.Minute, cfg.SessionTTL)
	require.Equal(t, 100*time.Millisecond, cfg.Delivery.SendInterval)
	require.Equal(t, 60*time.Second, cfg.Delivery.BreakerCooldown)

	require.NoError(t, cfg.Validate())
}

func TestTestConfig(t *testing.T) {
	cfg := TestConfig()

	// Fast timings still satisfy the validation rules
	require.NoError(t, cfg.Validate())
	require.Less(t, cfg.Delivery.SendInterval, DefaultConfig().Delivery.SendInterval)
	require.LessOrEqual(t, cfg.Delivery.SendInterval, cfg.Delivery.BreakerCooldown)
	require.Equal(t, uint(1), cfg.Retry.Attempts)
}
