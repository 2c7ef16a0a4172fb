package assignment

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eladnissenberg/variant-shopify-setup/internal/metrics"
	"github.com/eladnissenberg/variant-shopify-setup/storage"
	varianttest "github.com/eladnissenberg/variant-shopify-setup/testing"
	"github.com/eladnissenberg/variant-shopify-setup/types"
)

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const (
	testPrefix = "variant"
	testTTL    = 720 * time.Hour
)

func newTestEngine(t *testing.T, store types.Store, clock types.Clock, seed uint64) *Engine {
	t.Helper()

	rng := rand.New(rand.NewPCG(seed, seed))

	return NewEngine(store, testPrefix, testTTL, clock, rng, varianttest.NewTestLogger(t), metrics.NewNop())
}

// apply stores every proposal, the way the client applies a bucketing run.
func apply(ctx context.Context, e *Engine, proposals []types.Assignment) {
	for _, a := range proposals {
		e.SetAssignment(ctx, a)
	}
}

func trafficAll(_ /* group */ string) float64 { return 100 }

func trafficNone(_ /* group */ string) float64 { return 0 }

func TestEngine_SingleTestFullTraffic(t *testing.T) {
	clock := varianttest.NewManualClock(testEpoch)
	engine := newTestEngine(t, storage.NewMemory(), clock, 1)

	tests := []types.TestDefinition{
		{ID: "exp-1", PageGroup: "page:product", VariantsCount: 3},
	}

	proposals := engine.AssignGroups(t.Context(), tests, trafficAll, types.DeviceDesktop)
	require.Len(t, proposals, 1)

	a := proposals[0]
	require.Equal(t, types.AssignmentTypeTest, a.Type)
	require.Equal(t, types.ModeProbabilistic, a.Mode)

	variant, err := strconv.Atoi(a.AssignedVariant)
	require.NoError(t, err)
	require.GreaterOrEqual(t, variant, 1)
	require.LessOrEqual(t, variant, 3)
}

func TestEngine_ZeroTrafficIsPureControl(t *testing.T) {
	clock := varianttest.NewManualClock(testEpoch)
	engine := newTestEngine(t, storage.NewMemory(), clock, 1)

	tests := []types.TestDefinition{
		{ID: "exp-1", PageGroup: "page:product", VariantsCount: 2},
		{ID: "exp-2", PageGroup: "page:product", VariantsCount: 2},
	}

	proposals := engine.AssignGroups(t.Context(), tests, trafficNone, types.DeviceDesktop)
	require.Len(t, proposals, 2)
	for _, a := range proposals {
		require.Equal(t, types.AssignmentTypeControl, a.Type)
		require.Equal(t, types.ModePureControl, a.Mode)
		require.Equal(t, types.ControlVariant, a.AssignedVariant)
	}
}

func TestEngine_GroupDrawPicksExactlyOneWinner(t *testing.T) {
	tests := []types.TestDefinition{
		{ID: "exp-1", PageGroup: "page:product", VariantsCount: 2},
		{ID: "exp-2", PageGroup: "page:product", VariantsCount: 4},
		{ID: "exp-3", PageGroup: "page:product", VariantsCount: 1},
	}

	// Whatever the seed, full traffic must produce exactly one winner and
	// exclude the rest.
	for seed := uint64(1); seed <= 20; seed++ {
		clock := varianttest.NewManualClock(testEpoch)
		engine := newTestEngine(t, storage.NewMemory(), clock, seed)

		proposals := engine.AssignGroups(t.Context(), tests, trafficAll, types.DeviceDesktop)
		require.Len(t, proposals, 3)

		winners := 0
		for _, a := range proposals {
			if a.NonControl() {
				winners++
				require.Equal(t, types.ModeProbabilistic, a.Mode)
			} else {
				require.Equal(t, types.ModeExcluded, a.Mode)
			}
		}
		require.Equal(t, 1, winners, "seed %d", seed)
	}
}

func TestEngine_MutualExclusionAcrossRuns(t *testing.T) {
	clock := varianttest.NewManualClock(testEpoch)
	engine := newTestEngine(t, storage.NewMemory(), clock, 7)
	ctx := t.Context()

	first := []types.TestDefinition{
		{ID: "exp-1", PageGroup: "page:product", VariantsCount: 2},
	}
	apply(ctx, engine, engine.AssignGroups(ctx, first, trafficAll, types.DeviceDesktop))

	won := mustGet(t, engine, "exp-1").NonControl()

	// A later run with a late-joining test in the same group must never
	// produce a second non-control assignment.
	second := append(first, types.TestDefinition{ID: "exp-2", PageGroup: "page:product", VariantsCount: 2})
	proposals := engine.AssignGroups(ctx, second, trafficAll, types.DeviceDesktop)
	require.Len(t, proposals, 1, "existing assignment is never re-proposed")
	require.Equal(t, "exp-2", proposals[0].TestID)
	if won {
		require.Equal(t, types.ModeExcluded, proposals[0].Mode, "occupied group admits no draw")
	}
	apply(ctx, engine, proposals)

	nonControl := 0
	for _, a := range engine.Assignments() {
		if a.NonControl() {
			nonControl++
		}
	}
	require.LessOrEqual(t, nonControl, 1)
}

func TestEngine_BucketingIsIdempotent(t *testing.T) {
	clock := varianttest.NewManualClock(testEpoch)
	engine := newTestEngine(t, storage.NewMemory(), clock, 3)
	ctx := t.Context()

	tests := []types.TestDefinition{
		{ID: "exp-1", PageGroup: "page:product", VariantsCount: 2},
		{ID: "exp-2", PageGroup: "page:cart", VariantsCount: 2},
	}

	apply(ctx, engine, engine.AssignGroups(ctx, tests, trafficAll, types.DeviceDesktop))
	before := engine.Assignments()

	again := engine.AssignGroups(ctx, tests, trafficAll, types.DeviceDesktop)
	require.Empty(t, again, "repeated bucketing proposes nothing new")
	require.ElementsMatch(t, before, engine.Assignments())
}

func TestEngine_ForcedAssignments(t *testing.T) {
	clock := varianttest.NewManualClock(testEpoch)
	engine := newTestEngine(t, storage.NewMemory(), clock, 1)

	tests := []types.TestDefinition{
		{ID: "exp-pinned", Mode: "forced:2", PageGroup: "page:product", VariantsCount: 3},
		{ID: "exp-off", Mode: "forced:0", PageGroup: "page:product", VariantsCount: 2},
		{ID: "exp-unforced", PageGroup: "page:product", VariantsCount: 2},
	}

	proposals := engine.AssignGroups(t.Context(), tests, trafficAll, types.DeviceDesktop)
	require.Len(t, proposals, 3)

	byID := make(map[string]types.Assignment, len(proposals))
	for _, a := range proposals {
		byID[a.TestID] = a
	}

	require.Equal(t, types.AssignmentTypeTest, byID["exp-pinned"].Type)
	require.Equal(t, types.ModeForced, byID["exp-pinned"].Mode)
	require.Equal(t, "2", byID["exp-pinned"].AssignedVariant)

	require.Equal(t, types.AssignmentTypeControl, byID["exp-off"].Type)
	require.Equal(t, types.ModeForcedControl, byID["exp-off"].Mode)
	require.Equal(t, types.ControlVariant, byID["exp-off"].AssignedVariant)

	// The forced non-control assignment occupies the group, so the unforced
	// test is excluded without a draw.
	require.Equal(t, types.ModeExcluded, byID["exp-unforced"].Mode)
	require.Equal(t, types.ControlVariant, byID["exp-unforced"].AssignedVariant)
}

func TestEngine_DeviceTargeting(t *testing.T) {
	clock := varianttest.NewManualClock(testEpoch)
	engine := newTestEngine(t, storage.NewMemory(), clock, 1)

	tests := []types.TestDefinition{
		{ID: "exp-mobile", PageGroup: "page:product", Device: types.DeviceMobile, VariantsCount: 2},
		{ID: "exp-any", PageGroup: "page:product", Device: types.DeviceAll, VariantsCount: 2},
	}

	proposals := engine.AssignGroups(t.Context(), tests, trafficAll, types.DeviceDesktop)
	require.Len(t, proposals, 1, "mobile-only test is invisible on desktop")
	require.Equal(t, "exp-any", proposals[0].TestID)
}

func TestEngine_AttributionTiers(t *testing.T) {
	ctx := context.Background()

	newEngine := func(t *testing.T) *Engine {
		clock := varianttest.NewManualClock(testEpoch)
		return newTestEngine(t, storage.NewMemory(), clock, 1)
	}

	t.Run("zero non-control reports control", func(t *testing.T) {
		engine := newEngine(t)
		engine.SetAssignment(ctx, controlAssignment("exp-1", "page:product", types.ModePureControl))
		engine.SetAssignment(ctx, controlAssignment("exp-2", "page:product", types.ModePureControl))

		for _, a := range engine.Assignments() {
			require.Equal(t, types.ControlVariant, a.TestedVariant)
		}
	})

	t.Run("single non-control reports its variant", func(t *testing.T) {
		engine := newEngine(t)
		engine.SetAssignment(ctx, controlAssignment("exp-1", "page:product", types.ModeExcluded))
		engine.SetAssignment(ctx, types.Assignment{
			TestID:          "exp-2",
			Type:            types.AssignmentTypeTest,
			Mode:            types.ModeProbabilistic,
			PageGroup:       "page:product",
			AssignedVariant: "2",
		})

		winner := mustGet(t, engine, "exp-2")
		require.Equal(t, "2", winner.TestedVariant)

		loser := mustGet(t, engine, "exp-1")
		require.Equal(t, types.TestedVariantExcluded, loser.TestedVariant)
	})

	t.Run("competing non-control reports excluded everywhere", func(t *testing.T) {
		engine := newEngine(t)
		engine.SetAssignment(ctx, types.Assignment{
			TestID: "exp-1", Type: types.AssignmentTypeTest, Mode: types.ModeForced,
			PageGroup: "page:product", AssignedVariant: "1",
		})
		engine.SetAssignment(ctx, types.Assignment{
			TestID: "exp-2", Type: types.AssignmentTypeTest, Mode: types.ModeForced,
			PageGroup: "page:product", AssignedVariant: "3",
		})

		for _, a := range engine.Assignments() {
			require.Equal(t, types.TestedVariantExcluded, a.TestedVariant)
		}
	})

	t.Run("groups are attributed independently", func(t *testing.T) {
		engine := newEngine(t)
		engine.SetAssignment(ctx, types.Assignment{
			TestID: "exp-1", Type: types.AssignmentTypeTest, Mode: types.ModeForced,
			PageGroup: "page:product", AssignedVariant: "1",
		})
		engine.SetAssignment(ctx, controlAssignment("exp-2", "page:cart", types.ModePureControl))

		require.Equal(t, "1", mustGet(t, engine, "exp-1").TestedVariant)
		require.Equal(t, types.ControlVariant, mustGet(t, engine, "exp-2").TestedVariant)
	})
}

func TestEngine_SetAssignmentOverwrites(t *testing.T) {
	clock := varianttest.NewManualClock(testEpoch)
	engine := newTestEngine(t, storage.NewMemory(), clock, 1)
	ctx := t.Context()

	engine.SetAssignment(ctx, controlAssignment("exp-1", "page:product", types.ModePureControl))
	engine.SetAssignment(ctx, types.Assignment{
		TestID: "exp-1", Type: types.AssignmentTypeTest, Mode: types.ModeForced,
		PageGroup: "page:product", AssignedVariant: "2",
	})

	a := mustGet(t, engine, "exp-1")
	require.Equal(t, types.ModeForced, a.Mode)
	require.Equal(t, "2", a.AssignedVariant)
	require.Len(t, engine.Assignments(), 1)
}

func TestEngine_SetAssignmentFillsCreatedAt(t *testing.T) {
	clock := varianttest.NewManualClock(testEpoch)
	engine := newTestEngine(t, storage.NewMemory(), clock, 1)

	stored := engine.SetAssignment(t.Context(), controlAssignment("exp-1", "page:product", types.ModePureControl))
	require.Equal(t, testEpoch, stored.CreatedAt)

	pinned := testEpoch.Add(-time.Hour)
	a := controlAssignment("exp-2", "page:product", types.ModePureControl)
	a.CreatedAt = pinned
	stored = engine.SetAssignment(t.Context(), a)
	require.Equal(t, pinned, stored.CreatedAt, "explicit CreatedAt is preserved")
}

func TestEngine_ValidityHorizon(t *testing.T) {
	clock := varianttest.NewManualClock(testEpoch)
	engine := newTestEngine(t, storage.NewMemory(), clock, 1)
	ctx := t.Context()

	engine.SetAssignment(ctx, controlAssignment("exp-1", "page:product", types.ModePureControl))

	clock.Advance(testTTL - time.Minute)
	_, ok := engine.Assignment("exp-1")
	require.True(t, ok, "still valid inside the horizon")

	clock.Advance(2 * time.Minute)
	_, ok = engine.Assignment("exp-1")
	require.False(t, ok, "expired assignments read as absent")
	require.Empty(t, engine.Assignments())

	// Expiry does not delete: cleanup does.
	require.Equal(t, 1, engine.Cleanup(ctx))
	require.Equal(t, 0, engine.Cleanup(ctx), "second cleanup finds nothing")
}

func TestEngine_CleanupRecalculatesAttribution(t *testing.T) {
	clock := varianttest.NewManualClock(testEpoch)
	engine := newTestEngine(t, storage.NewMemory(), clock, 1)
	ctx := t.Context()

	old := types.Assignment{
		TestID: "exp-old", Type: types.AssignmentTypeTest, Mode: types.ModeForced,
		PageGroup: "page:product", AssignedVariant: "1",
		CreatedAt: testEpoch.Add(-testTTL + time.Hour),
	}
	engine.SetAssignment(ctx, old)
	engine.SetAssignment(ctx, controlAssignment("exp-new", "page:product", types.ModeExcluded))

	require.Equal(t, types.TestedVariantExcluded, mustGet(t, engine, "exp-new").TestedVariant)

	// Let the winner expire; the surviving control assignment becomes the
	// whole group and reports clean control.
	clock.Advance(2 * time.Hour)
	require.Equal(t, 1, engine.Cleanup(ctx))
	require.Equal(t, types.ControlVariant, mustGet(t, engine, "exp-new").TestedVariant)
}

func TestEngine_PersistsBothProjections(t *testing.T) {
	store := storage.NewMemory()
	clock := varianttest.NewManualClock(testEpoch)
	engine := newTestEngine(t, store, clock, 1)
	ctx := t.Context()

	engine.SetAssignment(ctx, types.Assignment{
		TestID: "exp-1", Type: types.AssignmentTypeTest, Mode: types.ModeForced,
		PageGroup: "page:product", AssignedVariant: "2",
	})

	raw, err := store.Get(ctx, types.StorageKey(testPrefix, types.KeyAssignments))
	require.NoError(t, err)
	var full map[string]types.Assignment
	require.NoError(t, json.Unmarshal(raw, &full))
	require.Len(t, full, 1)
	require.Equal(t, "2", full["exp-1"].AssignedVariant)

	raw, err = store.Get(ctx, types.StorageKey(testPrefix, types.KeyActiveTests))
	require.NoError(t, err)
	var pixels map[string]types.PixelRecord
	require.NoError(t, json.Unmarshal(raw, &pixels))
	require.Equal(t, types.PixelRecord{TestID: "exp-1", Variant: "2", PageGroup: "page:product"}, pixels["exp-1"])
}

func TestEngine_LoadAdoptsValidAndDropsExpired(t *testing.T) {
	store := storage.NewMemory()
	clock := varianttest.NewManualClock(testEpoch)
	ctx := t.Context()

	persisted := map[string]types.Assignment{
		"exp-live": {
			TestID: "exp-live", Type: types.AssignmentTypeTest, Mode: types.ModeProbabilistic,
			PageGroup: "page:product", AssignedVariant: "1", TestedVariant: "1",
			CreatedAt: testEpoch.Add(-time.Hour),
		},
		"exp-stale": {
			TestID: "exp-stale", Type: types.AssignmentTypeControl, Mode: types.ModeExcluded,
			PageGroup: "page:product", AssignedVariant: "0", TestedVariant: "excluded",
			CreatedAt: testEpoch.Add(-testTTL - time.Hour),
		},
	}
	raw, err := json.Marshal(persisted)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, types.StorageKey(testPrefix, types.KeyAssignments), raw))

	engine := newTestEngine(t, store, clock, 1)
	engine.Load(ctx)

	require.Len(t, engine.Assignments(), 1)
	require.Equal(t, "1", mustGet(t, engine, "exp-live").TestedVariant)

	// The scrubbed set was re-persisted without the stale entry.
	raw, err = store.Get(ctx, types.StorageKey(testPrefix, types.KeyAssignments))
	require.NoError(t, err)
	var scrubbed map[string]types.Assignment
	require.NoError(t, json.Unmarshal(raw, &scrubbed))
	require.Len(t, scrubbed, 1)
	require.Contains(t, scrubbed, "exp-live")
}

func TestEngine_LoadWithEmptyStore(t *testing.T) {
	clock := varianttest.NewManualClock(testEpoch)
	engine := newTestEngine(t, storage.NewMemory(), clock, 1)

	engine.Load(t.Context())
	require.Empty(t, engine.Assignments())
}

// mustGet returns the valid assignment for testID or fails the test.
func mustGet(t *testing.T, e *Engine, testID string) types.Assignment {
	t.Helper()

	a, ok := e.Assignment(testID)
	require.True(t, ok, "expected valid assignment for %s", testID)

	return a
}
