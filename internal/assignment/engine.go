// Package assignment implements the experiment assignment engine: bucketing
// visitors into variants per page group, exposure attribution, and
// persistence of the valid assignment set.
package assignment

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// Engine owns the canonical assignment set for one client instance.
//
// Exactly one assignment exists per test id. Every mutation recomputes the
// exposure attribution of the touched page groups and persists the full
// valid set as two projections: the assignment map and the reduced pixel
// map. Storage failures are logged and the in-memory set stays
// authoritative.
//
// The central guarantee is mutual exclusion: at most one non-control
// assignment per page group, across any sequence of bucketing runs.
type Engine struct {
	store  types.Store
	prefix string
	ttl    time.Duration

	clock   types.Clock
	rng     *rand.Rand
	logger  types.Logger
	metrics types.AssignmentMetrics

	mu          sync.RWMutex
	assignments map[string]types.Assignment
}

// NewEngine creates an assignment engine.
//
// Parameters:
//   - store: Durable store for the assignment projections
//   - prefix: Storage key prefix shared with the rest of the client
//   - ttl: Validity horizon; assignments older than this are expired
//   - clock: Time source
//   - rng: Uniform random source for the traffic draw; the engine serializes
//     access, the source itself need not be safe for concurrent use
//   - logger: Logger for storage failures and bucketing decisions
//   - metrics: Metrics collector for assignment operations
//
// Returns:
//   - *Engine: A new engine with an empty assignment set; call Load to adopt
//     persisted assignments
func NewEngine(
	store types.Store,
	prefix string,
	ttl time.Duration,
	clock types.Clock,
	rng *rand.Rand,
	logger types.Logger,
	metrics types.AssignmentMetrics,
) *Engine {
	return &Engine{
		store:       store,
		prefix:      prefix,
		ttl:         ttl,
		clock:       clock,
		rng:         rng,
		logger:      logger,
		metrics:     metrics,
		assignments: make(map[string]types.Assignment),
	}
}

// Load adopts the persisted assignment map, dropping entries that are no
// longer valid. When expired entries were dropped, attribution is
// recomputed and the scrubbed set is re-persisted.
//
// Storage failures leave the engine with an empty set; they are logged and
// never returned.
//
// Parameters:
//   - ctx: Context for storage operations
func (e *Engine) Load(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	raw, err := e.store.Get(ctx, types.StorageKey(e.prefix, types.KeyAssignments))
	if err != nil {
		if !types.IsNotFound(err) {
			e.logger.Warn("assignment load failed", "error", err)
		}
		return
	}

	var persisted map[string]types.Assignment
	if err := json.Unmarshal(raw, &persisted); err != nil {
		e.logger.Warn("assignment load failed, discarding stored set", "error", err)
		return
	}

	now := e.clock.Now()
	dropped := 0
	for testID, a := range persisted {
		if !a.ValidAt(now, e.ttl) {
			dropped++
			continue
		}
		e.assignments[testID] = a
	}

	for _, group := range e.groupsLocked() {
		e.recalculateGroupLocked(group)
	}

	if dropped > 0 {
		e.logger.Debug("dropped expired assignments on load", "count", dropped)
		e.persistLocked(ctx)
	}
	e.metrics.SetActiveAssignments(len(e.assignments))
}

// SetAssignment stores an assignment, recomputes exposure attribution for
// its page group, and persists both projections. A prior assignment for the
// same test id is overwritten.
//
// A zero CreatedAt is filled with the current time, starting the validity
// horizon.
//
// Parameters:
//   - ctx: Context for storage operations
//   - a: Assignment to store
//
// Returns:
//   - types.Assignment: The stored assignment with its recomputed
//     TestedVariant
func (e *Engine) SetAssignment(ctx context.Context, a types.Assignment) types.Assignment {
	e.mu.Lock()
	defer e.mu.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = e.clock.Now()
	}

	e.assignments[a.TestID] = a
	e.recalculateGroupLocked(a.PageGroup)
	e.persistLocked(ctx)

	e.metrics.RecordAssignment(string(a.Mode))
	e.metrics.SetActiveAssignments(e.validCountLocked())

	stored := e.assignments[a.TestID]
	e.logger.Debug("assignment stored",
		"test_id", stored.TestID,
		"page_group", stored.PageGroup,
		"type", stored.Type,
		"mode", stored.Mode,
		"assigned_variant", stored.AssignedVariant,
		"tested_variant", stored.TestedVariant,
	)

	return stored
}

// Assignment returns the valid assignment for a test id.
//
// An expired assignment is reported as absent without being deleted;
// deletion happens only in Cleanup.
//
// Parameters:
//   - testID: Test identifier
//
// Returns:
//   - types.Assignment: The assignment, zero when absent or expired
//   - bool: Whether a valid assignment exists
func (e *Engine) Assignment(testID string) (types.Assignment, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, ok := e.assignments[testID]
	if !ok || !a.ValidAt(e.clock.Now(), e.ttl) {
		return types.Assignment{}, false
	}

	return a, true
}

// Assignments returns all currently valid assignments. Order is not
// significant.
func (e *Engine) Assignments() []types.Assignment {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.clock.Now()
	out := make([]types.Assignment, 0, len(e.assignments))
	for _, a := range e.assignments {
		if a.ValidAt(now, e.ttl) {
			out = append(out, a)
		}
	}

	return out
}

// Cleanup removes expired assignments from the set. When anything was
// removed, attribution is recomputed for the touched groups and the set is
// re-persisted.
//
// Parameters:
//   - ctx: Context for storage operations
//
// Returns:
//   - int: Number of assignments removed
func (e *Engine) Cleanup(ctx context.Context) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	touched := make(map[string]struct{})
	removed := 0
	for testID, a := range e.assignments {
		if a.ValidAt(now, e.ttl) {
			continue
		}
		delete(e.assignments, testID)
		touched[a.PageGroup] = struct{}{}
		removed++
	}

	if removed == 0 {
		return 0
	}

	for group := range touched {
		e.recalculateGroupLocked(group)
	}
	e.persistLocked(ctx)

	e.metrics.RecordAssignmentsPurged(removed)
	e.metrics.SetActiveAssignments(len(e.assignments))
	e.logger.Debug("expired assignments removed", "count", removed)

	return removed
}

// AssignGroups buckets the given tests, independently per page group, and
// returns the proposed new assignments. Nothing is stored: the caller
// applies each proposal through SetAssignment (emitting tracking events as
// it goes).
//
// Per group:
//  1. Tests holding a valid assignment are skipped; bucketing never
//     overwrites.
//  2. Forced tests get immediate independent assignments and never join the
//     traffic draw.
//  3. If the group already holds a non-control assignment, existing or
//     proposed, the remaining unforced tests are excluded without a draw.
//  4. Otherwise one uniform draw decides the whole group: outside the
//     traffic fraction every unforced test becomes pure control; inside it
//     exactly one test wins, one of its variants is picked uniformly, and
//     the rest are excluded.
//
// Tests whose device targeting does not match are invisible to bucketing.
//
// Parameters:
//   - ctx: Context, reserved for symmetry with the mutating operations
//   - tests: Test definitions to bucket, typically the full catalog
//   - trafficFor: Resolves the traffic percentage (0 to 100) per page group
//   - device: The client's device class for targeting
//
// Returns:
//   - []types.Assignment: Proposed assignments in catalog order, grouped by
//     page group
func (e *Engine) AssignGroups(
	_ /* ctx */ context.Context,
	tests []types.TestDefinition,
	trafficFor func(group string) float64,
	device string,
) []types.Assignment {
	e.mu.Lock()
	defer e.mu.Unlock()

	groups := make(map[string][]types.TestDefinition)
	var order []string
	for _, t := range tests {
		if !t.MatchesDevice(device) {
			continue
		}
		if _, seen := groups[t.PageGroup]; !seen {
			order = append(order, t.PageGroup)
		}
		groups[t.PageGroup] = append(groups[t.PageGroup], t)
	}

	var proposals []types.Assignment
	for _, group := range order {
		proposals = append(proposals, e.assignGroupLocked(group, groups[group], trafficFor(group))...)
	}

	e.metrics.RecordBucketingRun(len(proposals))

	return proposals
}

// assignGroupLocked runs the bucketing contract for one page group. Caller
// holds e.mu.
func (e *Engine) assignGroupLocked(group string, tests []types.TestDefinition, trafficPercent float64) []types.Assignment {
	now := e.clock.Now()

	var proposals []types.Assignment
	var unforced []types.TestDefinition
	groupTaken := e.groupHasNonControlLocked(group, now)

	for _, t := range tests {
		if existing, ok := e.assignments[t.ID]; ok && existing.ValidAt(now, e.ttl) {
			continue
		}

		variant, forced := t.ForcedVariant()
		if !forced {
			unforced = append(unforced, t)
			continue
		}

		a := types.Assignment{
			TestID:          t.ID,
			Type:            types.AssignmentTypeTest,
			Mode:            types.ModeForced,
			PageGroup:       group,
			AssignedVariant: variant,
		}
		if variant == types.ControlVariant {
			a.Type = types.AssignmentTypeControl
			a.Mode = types.ModeForcedControl
		} else {
			groupTaken = true
		}
		proposals = append(proposals, a)
	}

	if len(unforced) == 0 {
		return proposals
	}

	if groupTaken {
		for _, t := range unforced {
			proposals = append(proposals, controlAssignment(t.ID, group, types.ModeExcluded))
		}
		return proposals
	}

	r := e.rng.Float64()
	fraction := trafficPercent / 100
	if r >= fraction {
		e.logger.Debug("group outside traffic fraction",
			"page_group", group, "draw", r, "traffic_percent", trafficPercent)
		for _, t := range unforced {
			proposals = append(proposals, controlAssignment(t.ID, group, types.ModePureControl))
		}
		return proposals
	}

	winner := e.rng.IntN(len(unforced))
	for i, t := range unforced {
		if i != winner {
			proposals = append(proposals, controlAssignment(t.ID, group, types.ModeExcluded))
			continue
		}
		proposals = append(proposals, types.Assignment{
			TestID:          t.ID,
			Type:            types.AssignmentTypeTest,
			Mode:            types.ModeProbabilistic,
			PageGroup:       group,
			AssignedVariant: strconv.Itoa(1 + e.rng.IntN(t.VariantsCount)),
		})
	}

	return proposals
}

func controlAssignment(testID, group string, mode types.AssignmentMode) types.Assignment {
	return types.Assignment{
		TestID:          testID,
		Type:            types.AssignmentTypeControl,
		Mode:            mode,
		PageGroup:       group,
		AssignedVariant: types.ControlVariant,
	}
}

// groupHasNonControlLocked reports whether any valid assignment in the group
// carries a non-control variant. Caller holds e.mu.
func (e *Engine) groupHasNonControlLocked(group string, now time.Time) bool {
	for _, a := range e.assignments {
		if a.PageGroup == group && a.ValidAt(now, e.ttl) && a.NonControl() {
			return true
		}
	}

	return false
}

// recalculateGroupLocked recomputes the exposure attribution tier for every
// valid assignment in the group. Caller holds e.mu.
//
// Attribution is a pure function of the group's assigned variants: zero
// non-control assignments mean the group was pure control and everyone
// reports "0"; exactly one means that test reports its own variant and the
// rest report "excluded"; two or more mean the signal is ambiguous and the
// whole group reports "excluded".
func (e *Engine) recalculateGroupLocked(group string) {
	now := e.clock.Now()

	var members []string
	nonControl := 0
	for testID, a := range e.assignments {
		if a.PageGroup != group || !a.ValidAt(now, e.ttl) {
			continue
		}
		members = append(members, testID)
		if a.NonControl() {
			nonControl++
		}
	}

	for _, testID := range members {
		a := e.assignments[testID]
		switch {
		case nonControl == 0:
			a.TestedVariant = types.ControlVariant
		case nonControl == 1 && a.NonControl():
			a.TestedVariant = a.AssignedVariant
		default:
			a.TestedVariant = types.TestedVariantExcluded
		}
		e.assignments[testID] = a
	}
}

// groupsLocked returns the distinct page groups present in the set. Caller
// holds e.mu.
func (e *Engine) groupsLocked() []string {
	seen := make(map[string]struct{})
	var groups []string
	for _, a := range e.assignments {
		if _, ok := seen[a.PageGroup]; ok {
			continue
		}
		seen[a.PageGroup] = struct{}{}
		groups = append(groups, a.PageGroup)
	}

	return groups
}

// validCountLocked counts currently valid assignments. Caller holds e.mu.
func (e *Engine) validCountLocked() int {
	now := e.clock.Now()
	count := 0
	for _, a := range e.assignments {
		if a.ValidAt(now, e.ttl) {
			count++
		}
	}

	return count
}

// persistLocked writes the full valid set as two projections: the assignment
// map and the reduced pixel map. Failures are logged; the in-memory set
// stays authoritative. Caller holds e.mu.
func (e *Engine) persistLocked(ctx context.Context) {
	now := e.clock.Now()

	full := make(map[string]types.Assignment, len(e.assignments))
	pixels := make(map[string]types.PixelRecord, len(e.assignments))
	for testID, a := range e.assignments {
		if !a.ValidAt(now, e.ttl) {
			continue
		}
		full[testID] = a
		pixels[testID] = a.Pixel()
	}

	e.persistValue(ctx, types.KeyAssignments, full)
	e.persistValue(ctx, types.KeyActiveTests, pixels)
}

func (e *Engine) persistValue(ctx context.Context, name string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		e.logger.Error("assignment projection marshal failed", "key", name, "error", err)
		return
	}

	if err := e.store.Set(ctx, types.StorageKey(e.prefix, name), raw); err != nil {
		e.logger.Warn("assignment projection write failed", "key", name, "error", err)
	}
}
