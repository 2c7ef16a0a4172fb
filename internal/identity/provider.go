// Package identity resolves the durable visitor identity: a stable user id
// plus a session id that rotates after a fixed inactivity window.
//
// Both ids are mirrored into a primary store and an optional secondary store
// so they survive a backend losing its data. Resolution reads each value from
// the first source that has it, in order: primary store, mirror, fresh
// generation. Storage failures are logged and treated as absent values; they
// never fail resolution.
package identity

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// Resolution sources reported to IdentityMetrics.RecordIdentityResolved.
const (
	sourceStore     = "store"
	sourceMirror    = "mirror"
	sourceGenerated = "generated"
)

// Provider resolves and persists the visitor identity.
//
// Resolve runs once per Provider; later calls return the cached identity.
// The resolved ids are immutable for the lifetime of the owning client
// instance. Only the last-activity timestamp keeps moving, via Touch.
type Provider struct {
	store      types.Store
	mirror     types.Store // optional, may be nil
	prefix     string
	sessionTTL time.Duration

	clock   types.Clock
	logger  types.Logger
	metrics types.IdentityMetrics

	mu       sync.Mutex
	identity types.Identity
	resolved bool
}

// NewProvider creates a new identity provider.
//
// Parameters:
//   - store: Primary durable store
//   - mirror: Secondary store for resilience, or nil
//   - prefix: Storage key prefix shared with the rest of the client
//   - sessionTTL: Inactivity window after which the session id rotates
//   - clock: Time source
//   - logger: Logger for storage failures and resolution events
//   - metrics: Metrics collector for identity operations
//
// Returns:
//   - *Provider: A new provider instance; call Resolve before Identity
func NewProvider(
	store types.Store,
	mirror types.Store,
	prefix string,
	sessionTTL time.Duration,
	clock types.Clock,
	logger types.Logger,
	metrics types.IdentityMetrics,
) *Provider {
	return &Provider{
		store:      store,
		mirror:     mirror,
		prefix:     prefix,
		sessionTTL: sessionTTL,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// Resolve loads or generates the visitor identity and persists it to every
// configured store.
//
// The user id is durable: any stored value wins, otherwise a fresh UUID is
// generated. The session id is reused only while the recorded last-activity
// timestamp is younger than the session TTL; otherwise a fresh ksuid is
// generated and a rotation is recorded when a prior session existed.
//
// Resolve never fails: storage errors are logged and the affected value is
// regenerated. The first call pins the identity; subsequent calls return it
// unchanged.
//
// Parameters:
//   - ctx: Context for storage operations
//
// Returns:
//   - types.Identity: The resolved identity, always complete
func (p *Provider) Resolve(ctx context.Context) types.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.resolved {
		return p.identity
	}

	now := p.clock.Now()

	userID, source := p.readFirst(ctx, types.KeyUserID)
	if userID == "" {
		userID = uuid.New().String()
		source = sourceGenerated
	}
	p.metrics.RecordIdentityResolved(source)

	sessionID := p.resolveSession(ctx, now)

	p.identity = types.Identity{UserID: userID, SessionID: sessionID}
	p.resolved = true

	p.writeAll(ctx, types.KeyUserID, userID)
	p.writeAll(ctx, types.KeySessionID, sessionID)
	p.writeAll(ctx, types.KeyLastActivity, strconv.FormatInt(now.UnixMilli(), 10))

	p.logger.Debug("identity resolved",
		"user_id", userID,
		"session_id", sessionID,
		"user_source", source,
	)

	return p.identity
}

// resolveSession returns the session id to use, rotating after inactivity.
// Caller holds p.mu.
func (p *Provider) resolveSession(ctx context.Context, now time.Time) string {
	prior, _ := p.readFirst(ctx, types.KeySessionID)
	if prior != "" && p.sessionAlive(ctx, now) {
		return prior
	}

	sessionID := ksuid.New().String()
	if prior != "" {
		p.metrics.RecordSessionRotated()
		p.logger.Debug("session rotated", "prior_session_id", prior, "session_id", sessionID)
	}

	return sessionID
}

// sessionAlive reports whether the recorded last-activity timestamp is
// younger than the session TTL. A missing or unparsable timestamp counts as
// expired.
func (p *Provider) sessionAlive(ctx context.Context, now time.Time) bool {
	raw, _ := p.readFirst(ctx, types.KeyLastActivity)
	if raw == "" {
		return false
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		p.logger.Warn("invalid last-activity timestamp, rotating session", "value", raw, "error", err)
		return false
	}

	return now.Sub(time.UnixMilli(ms)) < p.sessionTTL
}

// Touch slides the session inactivity window by persisting the current time
// as the last-activity timestamp. Failures are logged and ignored.
//
// Parameters:
//   - ctx: Context for storage operations
func (p *Provider) Touch(ctx context.Context) {
	now := p.clock.Now()
	p.writeAll(ctx, types.KeyLastActivity, strconv.FormatInt(now.UnixMilli(), 10))
}

// Identity returns the resolved identity.
//
// Returns:
//   - types.Identity: The identity pinned by Resolve, or the zero value if
//     Resolve has not run yet
func (p *Provider) Identity() types.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.identity
}

// readFirst returns the first non-empty value for the named key, checking the
// primary store then the mirror, together with the source it came from.
// Absent keys are expected; any other storage error is logged and the source
// is skipped.
func (p *Provider) readFirst(ctx context.Context, name string) (string, string) {
	key := types.StorageKey(p.prefix, name)

	if value := p.read(ctx, p.store, key); value != "" {
		return value, sourceStore
	}
	if p.mirror != nil {
		if value := p.read(ctx, p.mirror, key); value != "" {
			return value, sourceMirror
		}
	}

	return "", ""
}

func (p *Provider) read(ctx context.Context, store types.Store, key string) string {
	value, err := store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, types.ErrKeyNotFound) {
			p.logger.Warn("identity read failed", "key", key, "error", err)
		}
		return ""
	}

	return string(value)
}

// writeAll persists the value under the named key to the primary store and
// the mirror. Write failures are logged and ignored.
func (p *Provider) writeAll(ctx context.Context, name, value string) {
	key := types.StorageKey(p.prefix, name)

	if err := p.store.Set(ctx, key, []byte(value)); err != nil {
		p.logger.Warn("identity write failed", "key", key, "error", err)
	}
	if p.mirror != nil {
		if err := p.mirror.Set(ctx, key, []byte(value)); err != nil {
			p.logger.Warn("identity mirror write failed", "key", key, "error", err)
		}
	}
}
