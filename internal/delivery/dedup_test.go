package delivery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	varianttest "github.com/eladnissenberg/variant-shopify-setup/testing"
	"github.com/eladnissenberg/variant-shopify-setup/types"
)

const dedupWindow = 30 * time.Minute

func TestDeduplicator_SuppressesWithinWindow(t *testing.T) {
	clock := varianttest.NewManualClock(testEpoch)
	d := NewDeduplicator(dedupWindow, clock)
	ts := testEpoch.UnixMilli()

	require.False(t, d.IsDuplicate("session-1", "exp-1", types.EventNameImpression, ts))

	d.MarkProcessed("session-1", "exp-1", types.EventNameImpression, ts)
	require.True(t, d.IsDuplicate("session-1", "exp-1", types.EventNameImpression, ts))

	clock.Advance(dedupWindow - time.Minute)
	require.True(t, d.IsDuplicate("session-1", "exp-1", types.EventNameImpression, ts),
		"still inside the window")
}

func TestDeduplicator_ExpiresAfterWindow(t *testing.T) {
	clock := varianttest.NewManualClock(testEpoch)
	d := NewDeduplicator(dedupWindow, clock)
	ts := testEpoch.UnixMilli()

	d.MarkProcessed("session-1", "exp-1", types.EventNameImpression, ts)

	clock.Advance(dedupWindow)
	require.False(t, d.IsDuplicate("session-1", "exp-1", types.EventNameImpression, ts),
		"an identical key is accepted again once the window elapses")

	// The stale entry was evicted lazily by the lookup.
	require.Equal(t, 0, d.Size())
}

func TestDeduplicator_KeyComponentsAllMatter(t *testing.T) {
	clock := varianttest.NewManualClock(testEpoch)
	d := NewDeduplicator(dedupWindow, clock)
	ts := testEpoch.UnixMilli()

	d.MarkProcessed("session-1", "exp-1", types.EventNameImpression, ts)

	require.False(t, d.IsDuplicate("session-2", "exp-1", types.EventNameImpression, ts))
	require.False(t, d.IsDuplicate("session-1", "exp-2", types.EventNameImpression, ts))
	require.False(t, d.IsDuplicate("session-1", "exp-1", types.EventNameAssignment, ts))
	require.False(t, d.IsDuplicate("session-1", "exp-1", types.EventNameImpression, ts+1))
}

func TestDeduplicator_SweepPurgesStaleEntries(t *testing.T) {
	clock := varianttest.NewManualClock(testEpoch)
	d := NewDeduplicator(dedupWindow, clock)

	d.MarkProcessed("session-1", "exp-1", types.EventNameImpression, testEpoch.UnixMilli())
	d.MarkProcessed("session-1", "exp-2", types.EventNameImpression, testEpoch.UnixMilli())

	clock.Advance(10 * time.Minute)
	d.MarkProcessed("session-1", "exp-3", types.EventNameImpression, testEpoch.UnixMilli())

	require.Equal(t, 0, d.Sweep(), "nothing stale yet")
	require.Equal(t, 3, d.Size())

	// 25 more minutes: the first two entries are 35 minutes old, the third 25.
	clock.Advance(25 * time.Minute)
	require.Equal(t, 2, d.Sweep())
	require.Equal(t, 1, d.Size())
}

func TestDeduplicator_ReMarkRefreshesWindow(t *testing.T) {
	clock := varianttest.NewManualClock(testEpoch)
	d := NewDeduplicator(dedupWindow, clock)
	ts := testEpoch.UnixMilli()

	d.MarkProcessed("session-1", "exp-1", types.EventNameImpression, ts)

	clock.Advance(20 * time.Minute)
	d.MarkProcessed("session-1", "exp-1", types.EventNameImpression, ts)

	// 20 more minutes: 40 since the first mark, 20 since the refresh.
	clock.Advance(20 * time.Minute)
	require.True(t, d.IsDuplicate("session-1", "exp-1", types.EventNameImpression, ts))
}
