package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCatalogTrafficFor(t *testing.T) {
	c := Catalog{
		Traffic: map[string]float64{
			"page:/products": 25,
			"pages":          50,
			"global":         75,
		},
	}

	t.Run("exact group key wins", func(t *testing.T) {
		require.Equal(t, 25.0, c.TrafficFor("page:/products"))
	})

	t.Run("pages key covers page-scoped groups", func(t *testing.T) {
		require.Equal(t, 50.0, c.TrafficFor("page:/checkout"))
	})

	t.Run("pages key skipped for logical groups", func(t *testing.T) {
		require.Equal(t, 75.0, c.TrafficFor("homepage"))
	})

	t.Run("global fallback", func(t *testing.T) {
		noPages := Catalog{Traffic: map[string]float64{"global": 10}}
		require.Equal(t, 10.0, noPages.TrafficFor("page:/checkout"))
	})

	t.Run("default when nothing matches", func(t *testing.T) {
		require.Equal(t, DefaultTrafficPercent, Catalog{}.TrafficFor("anything"))
	})

	t.Run("values clamped to 0..100", func(t *testing.T) {
		odd := Catalog{Traffic: map[string]float64{"a": -5, "b": 250}}
		require.Equal(t, 0.0, odd.TrafficFor("a"))
		require.Equal(t, 100.0, odd.TrafficFor("b"))
	})
}

func TestCatalogValidate(t *testing.T) {
	valid := Catalog{
		Tests: []TestDefinition{
			{ID: "exp-1", PageGroup: "page:/products", VariantsCount: 2},
			{ID: "exp-2", Mode: "forced:1", PageGroup: "page:/products", VariantsCount: 1},
			{ID: "exp-3", Mode: TestModeDefault, PageGroup: "homepage", VariantsCount: 3},
		},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name string
		cat  Catalog
	}{
		{"empty id", Catalog{Tests: []TestDefinition{{PageGroup: "g", VariantsCount: 1}}}},
		{"duplicate id", Catalog{Tests: []TestDefinition{
			{ID: "exp-1", PageGroup: "g", VariantsCount: 1},
			{ID: "exp-1", PageGroup: "g", VariantsCount: 1},
		}}},
		{"missing pageGroup", Catalog{Tests: []TestDefinition{{ID: "exp-1", VariantsCount: 1}}}},
		{"zero variants", Catalog{Tests: []TestDefinition{{ID: "exp-1", PageGroup: "g"}}}},
		{"bad mode", Catalog{Tests: []TestDefinition{{ID: "exp-1", Mode: "maybe", PageGroup: "g", VariantsCount: 1}}}},
		{"forced without variant", Catalog{Tests: []TestDefinition{{ID: "exp-1", Mode: "forced:", PageGroup: "g", VariantsCount: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cat.Validate()
			require.Error(t, err)
			require.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}
}

func TestTestDefinitionForcedVariant(t *testing.T) {
	v, ok := TestDefinition{Mode: "forced:3"}.ForcedVariant()
	require.True(t, ok)
	require.Equal(t, "3", v)

	_, ok = TestDefinition{Mode: TestModeDefault}.ForcedVariant()
	require.False(t, ok)

	_, ok = TestDefinition{}.ForcedVariant()
	require.False(t, ok)

	_, ok = TestDefinition{Mode: "forced:"}.ForcedVariant()
	require.False(t, ok)

	// Forcing control is legal and yields a forced-0 assignment.
	v, ok = TestDefinition{Mode: "forced:0"}.ForcedVariant()
	require.True(t, ok)
	require.Equal(t, ControlVariant, v)
}

func TestTestDefinitionMatchesDevice(t *testing.T) {
	require.True(t, TestDefinition{}.MatchesDevice(DeviceMobile))
	require.True(t, TestDefinition{Device: DeviceAll}.MatchesDevice(""))
	require.True(t, TestDefinition{Device: DeviceMobile}.MatchesDevice(DeviceMobile))
	require.False(t, TestDefinition{Device: DeviceMobile}.MatchesDevice(DeviceDesktop))
	require.False(t, TestDefinition{Device: DeviceDesktop}.MatchesDevice(""))
}
