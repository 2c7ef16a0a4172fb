package types

import (
	"fmt"
	"strings"
)

// Traffic resolution keys. Page-scoped groups carry the PageGroupPrefix;
// the reserved keys provide coarser fallbacks.
const (
	// PageGroupPrefix marks page-scoped mutual-exclusion groups.
	PageGroupPrefix = "page:"

	// TrafficKeyPages applies to every page-scoped group without an exact
	// entry.
	TrafficKeyPages = "pages"

	// TrafficKeyGlobal applies to any group without a more specific entry.
	TrafficKeyGlobal = "global"

	// DefaultTrafficPercent applies when no traffic entry matches at all.
	DefaultTrafficPercent = 100.0
)

// Catalog is the tenant's experiment configuration: the set of test
// definitions plus the traffic percentage map keyed by page group.
type Catalog struct {
	// Tests are the experiment definitions eligible for bucketing.
	Tests []TestDefinition `json:"tests" yaml:"tests"`

	// Traffic maps a page group (or one of the reserved keys) to the
	// percentage of visitors, 0 to 100, eligible for that group's draw.
	Traffic map[string]float64 `json:"traffic,omitempty" yaml:"traffic,omitempty"`
}

// TrafficFor resolves the traffic percentage for a page group.
//
// Resolution is ordered and the first present key wins: the exact group key,
// then TrafficKeyPages for groups carrying PageGroupPrefix, then
// TrafficKeyGlobal, then DefaultTrafficPercent. The result is clamped to
// [0, 100].
func (c Catalog) TrafficFor(group string) float64 {
	if v, ok := c.Traffic[group]; ok {
		return clampPercent(v)
	}
	if strings.HasPrefix(group, PageGroupPrefix) {
		if v, ok := c.Traffic[TrafficKeyPages]; ok {
			return clampPercent(v)
		}
	}
	if v, ok := c.Traffic[TrafficKeyGlobal]; ok {
		return clampPercent(v)
	}
	return DefaultTrafficPercent
}

// Validate checks the catalog for structural problems.
//
// Returns:
//   - error: wrapping ErrInvalidCatalog, or nil when the catalog is usable
func (c Catalog) Validate() error {
	seen := make(map[string]struct{}, len(c.Tests))
	for i, t := range c.Tests {
		if t.ID == "" {
			return fmt.Errorf("%w: test %d has no id", ErrInvalidCatalog, i)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("%w: duplicate test id %q", ErrInvalidCatalog, t.ID)
		}
		seen[t.ID] = struct{}{}

		if t.PageGroup == "" {
			return fmt.Errorf("%w: test %q has no pageGroup", ErrInvalidCatalog, t.ID)
		}
		if t.VariantsCount < 1 {
			return fmt.Errorf("%w: test %q has variantsCount %d, need at least 1",
				ErrInvalidCatalog, t.ID, t.VariantsCount)
		}
		if _, forced := t.ForcedVariant(); !forced && t.Mode != "" && t.Mode != TestModeDefault {
			return fmt.Errorf("%w: test %q has unrecognized mode %q",
				ErrInvalidCatalog, t.ID, t.Mode)
		}
	}
	return nil
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
