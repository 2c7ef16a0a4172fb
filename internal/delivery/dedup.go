package delivery

import (
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/zeebo/xxh3"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// Deduplicator suppresses repeated events within an expiry window.
//
// The dedup key is sessionID:testID:eventName:clientTimestamp, hashed to a
// 64-bit value. Entries older than the window are evicted lazily on lookup;
// Sweep purges them proactively and is scheduled periodically by the
// pipeline.
type Deduplicator struct {
	window time.Duration
	clock  types.Clock

	seen *xsync.Map[uint64, int64] // key hash → marked-at, unix ms
}

// NewDeduplicator creates a deduplicator with the given expiry window.
//
// Parameters:
//   - window: How long a marked key suppresses duplicates
//   - clock: Time source
//
// Returns:
//   - *Deduplicator: A new deduplicator, safe for concurrent use
func NewDeduplicator(window time.Duration, clock types.Clock) *Deduplicator {
	return &Deduplicator{
		window: window,
		clock:  clock,
		seen:   xsync.NewMap[uint64, int64](),
	}
}

// dedupKey hashes the identifying tuple of an event.
func dedupKey(sessionID, testID, eventName string, clientTimestamp int64) uint64 {
	return xxh3.HashString(fmt.Sprintf("%s:%s:%s:%d", sessionID, testID, eventName, clientTimestamp))
}

// IsDuplicate reports whether a matching key was marked within the expiry
// window. A stale entry is evicted and does not count.
//
// Parameters:
//   - sessionID: Session the event belongs to
//   - testID: Experiment the event belongs to
//   - eventName: Event name, e.g. "test_impression"
//   - clientTimestamp: Event time in unix milliseconds
//
// Returns:
//   - bool: True when the event should be suppressed
func (d *Deduplicator) IsDuplicate(sessionID, testID, eventName string, clientTimestamp int64) bool {
	key := dedupKey(sessionID, testID, eventName, clientTimestamp)

	markedAt, ok := d.seen.Load(key)
	if !ok {
		return false
	}

	if d.clock.Now().Sub(time.UnixMilli(markedAt)) >= d.window {
		d.seen.Delete(key)
		return false
	}

	return true
}

// MarkProcessed records the key with the current time, starting its expiry
// window.
//
// Parameters:
//   - sessionID: Session the event belongs to
//   - testID: Experiment the event belongs to
//   - eventName: Event name
//   - clientTimestamp: Event time in unix milliseconds
func (d *Deduplicator) MarkProcessed(sessionID, testID, eventName string, clientTimestamp int64) {
	key := dedupKey(sessionID, testID, eventName, clientTimestamp)
	d.seen.Store(key, d.clock.Now().UnixMilli())
}

// Sweep removes every entry older than the expiry window.
//
// Returns:
//   - int: Number of entries removed
func (d *Deduplicator) Sweep() int {
	now := d.clock.Now()
	removed := 0

	d.seen.Range(func(key uint64, markedAt int64) bool {
		if now.Sub(time.UnixMilli(markedAt)) >= d.window {
			d.seen.Delete(key)
			removed++
		}
		return true
	})

	return removed
}

// Size returns the number of tracked keys, stale entries included.
func (d *Deduplicator) Size() int {
	return d.seen.Size()
}
