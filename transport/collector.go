// Package transport implements event-batch delivery to the collector
// endpoint over HTTP.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// Authentication and scoping headers sent with every batch.
const (
	HeaderAPIKey   = "X-API-Key"
	HeaderTenantID = "X-Tenant-ID"
)

// DefaultTimeout bounds a delivery call when no custom client is supplied.
const DefaultTimeout = 10 * time.Second

// CollectorConfig configures the HTTP collector transport.
type CollectorConfig struct {
	// URL is the collector endpoint receiving JSON event batches.
	URL string

	// APIKey authenticates the tenant. Sent as X-API-Key when non-empty.
	APIKey string

	// TenantID scopes the batch. Sent as X-Tenant-ID when non-empty.
	TenantID string

	// HTTPClient overrides the default client. Nil uses a client with
	// DefaultTimeout.
	HTTPClient *http.Client
}

// Collector posts event batches to the collector as a JSON array.
//
// Any transport-level failure or non-2xx response wraps
// types.ErrDeliveryFailed, so the sender's retry and circuit-breaker layers
// treat them uniformly as retryable.
type Collector struct {
	url      string
	apiKey   string
	tenantID string
	client   *http.Client
}

// Compile-time interface assertion.
var _ types.Transport = (*Collector)(nil)

// NewCollector creates an HTTP collector transport.
//
// Parameters:
//   - cfg: Endpoint, credentials, and optional HTTP client
//
// Returns:
//   - *Collector: A new transport
func NewCollector(cfg CollectorConfig) *Collector {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	return &Collector{
		url:      cfg.URL,
		apiKey:   cfg.APIKey,
		tenantID: cfg.TenantID,
		client:   client,
	}
}

// Send posts one batch. The batch succeeds or fails as a unit.
//
// Parameters:
//   - ctx: Bounds the request; the sender supplies a per-attempt deadline
//   - events: The batch to deliver
//
// Returns:
//   - error: nil on a 2xx response, otherwise wrapping
//     types.ErrDeliveryFailed
func (c *Collector) Send(ctx context.Context, events []types.Event) error {
	payload, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(HeaderAPIKey, c.apiKey)
	}
	if c.tenantID != "" {
		req.Header.Set(HeaderTenantID, c.tenantID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: collector returned status %d: %s",
			types.ErrDeliveryFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}
