package types

import "time"

// AssignmentType classifies the outcome of an assignment.
type AssignmentType string

const (
	// AssignmentTypeTest marks an assignment to a non-control variant.
	AssignmentTypeTest AssignmentType = "test"

	// AssignmentTypeControl marks an assignment to the control variant.
	AssignmentTypeControl AssignmentType = "control"
)

// AssignmentMode records how an assignment was produced:
//
//	forced-0       pinned to control by the test definition
//	forced         pinned to a specific non-control variant by the definition
//	pure-control   the group draw landed outside the traffic fraction
//	probabilistic  won the group draw; variant chosen uniformly
//	excluded       sat out the draw because another test holds the group
type AssignmentMode string

const (
	ModeForcedControl AssignmentMode = "forced-0"
	ModeForced        AssignmentMode = "forced"
	ModePureControl   AssignmentMode = "pure-control"
	ModeProbabilistic AssignmentMode = "probabilistic"
	ModeExcluded      AssignmentMode = "excluded"
)

const (
	// ControlVariant is the reserved variant identifier for control.
	ControlVariant = "0"

	// TestedVariantExcluded marks an assignment whose exposure cannot be
	// attributed to a single experiment.
	TestedVariantExcluded = "excluded"
)

// Assignment binds a visitor to one variant of one experiment.
//
// AssignedVariant is what the visitor receives. TestedVariant is what exposure
// may be attributed to; it is recomputed by the assignment engine whenever the
// page group changes and differs from AssignedVariant whenever attribution
// would be ambiguous (see the mutual-exclusion rules on the engine).
type Assignment struct {
	// TestID identifies the experiment. Exactly one assignment exists per
	// TestID.
	TestID string `json:"testId" yaml:"testId"`

	// Type classifies the outcome as test or control.
	Type AssignmentType `json:"type" yaml:"type"`

	// Mode records how the outcome was produced.
	Mode AssignmentMode `json:"mode" yaml:"mode"`

	// PageGroup is the mutual-exclusion scope the experiment competes in.
	PageGroup string `json:"pageGroup" yaml:"pageGroup"`

	// AssignedVariant is the variant identifier the visitor receives;
	// ControlVariant for control outcomes.
	AssignedVariant string `json:"assignedVariant" yaml:"assignedVariant"`

	// TestedVariant is the attribution tier: the variant exposure counts
	// toward, ControlVariant, or TestedVariantExcluded.
	TestedVariant string `json:"testedVariant" yaml:"testedVariant"`

	// CreatedAt is when the assignment was first produced. Governs the
	// validity horizon.
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// Complete reports whether all required fields are present.
//
// TestedVariant is derived state and not required: the engine recomputes it
// on every mutation.
func (a Assignment) Complete() bool {
	return a.TestID != "" &&
		a.PageGroup != "" &&
		a.AssignedVariant != "" &&
		!a.CreatedAt.IsZero()
}

// ValidAt reports whether the assignment is complete and younger than ttl
// at the given instant.
func (a Assignment) ValidAt(now time.Time, ttl time.Duration) bool {
	return a.Complete() && now.Sub(a.CreatedAt) < ttl
}

// NonControl reports whether the visitor was assigned a real treatment.
func (a Assignment) NonControl() bool {
	return a.AssignedVariant != "" && a.AssignedVariant != ControlVariant
}

// PixelRecord is the compact projection of an assignment persisted for
// pixel and third-party integrations.
type PixelRecord struct {
	TestID    string `json:"id"`
	Variant   string `json:"v"`
	PageGroup string `json:"g"`
}

// Pixel returns the compact projection of the assignment. Variant carries
// the attribution tier so integrations report the same exposure the
// collector sees.
func (a Assignment) Pixel() PixelRecord {
	return PixelRecord{
		TestID:    a.TestID,
		Variant:   a.TestedVariant,
		PageGroup: a.PageGroup,
	}
}
