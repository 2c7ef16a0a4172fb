package types

import "strings"

// Device targeting values recognized on a test definition. An empty Device
// is equivalent to DeviceAll.
const (
	DeviceAll     = "all"
	DeviceMobile  = "mobile"
	DeviceDesktop = "desktop"
)

// TestModeDefault is the mode of an ordinary test that participates in the
// traffic draw. The alternative is a pinned mode of the form
// "forced:<variant>", which bypasses the draw entirely.
const TestModeDefault = "test"

const testModeForcedPrefix = "forced:"

// TestDefinition describes one experiment as configured by the tenant.
//
// Definitions are read once per Client.Start; changing a definition has no
// effect on assignments already made (they live until their validity horizon
// or an explicit cleanup).
type TestDefinition struct {
	// ID identifies the experiment.
	ID string `json:"id" yaml:"id"`

	// Mode is TestModeDefault (or empty, meaning the same) for tests that
	// join the traffic draw, or "forced:<variant>" to pin every visitor to
	// one variant.
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`

	// PageGroup is the mutual-exclusion scope the test competes in.
	PageGroup string `json:"pageGroup" yaml:"pageGroup"`

	// Device restricts the test to one device class. Empty or DeviceAll
	// means no restriction.
	Device string `json:"device,omitempty" yaml:"device,omitempty"`

	// VariantsCount is the number of non-control variants, numbered
	// "1".."N".
	VariantsCount int `json:"variantsCount" yaml:"variantsCount"`
}

// ForcedVariant returns the pinned variant identifier and true when the
// definition's mode has the "forced:<variant>" form.
func (d TestDefinition) ForcedVariant() (string, bool) {
	v, ok := strings.CutPrefix(d.Mode, testModeForcedPrefix)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// MatchesDevice reports whether the test is visible to a client running on
// the given device class.
func (d TestDefinition) MatchesDevice(device string) bool {
	if d.Device == "" || d.Device == DeviceAll {
		return true
	}
	return d.Device == device
}
