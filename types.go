package variant

import "github.com/eladnissenberg/variant-shopify-setup/types"

// Re-export types from the internal types package.
//
// This file provides a stable, backward-compatible public API for the library's
// core types. It uses type aliases to re-export definitions from the `types`
// subpackage, which contains the actual implementations.
//
// This pattern solves the "import cycle" problem by allowing internal packages
// to depend on `types` without depending on the root `variant` package, while
// still providing a convenient `variant.Assignment`, `variant.Event`, etc.
// for users.
type (
	State           = types.State
	Assignment      = types.Assignment
	AssignmentType  = types.AssignmentType
	AssignmentMode  = types.AssignmentMode
	Event           = types.Event
	TestDefinition  = types.TestDefinition
	Catalog         = types.Catalog
	Identity        = types.Identity
	ValidationError = types.ValidationError
)

// Re-export interfaces from the internal types package for convenience.
type (
	Store            = types.Store
	Transport        = types.Transport
	Sink             = types.Sink
	Clock            = types.Clock
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
	Hooks            = types.Hooks
)

// Re-export State constants from the internal types package.
const (
	StateInit      = types.StateInit
	StateRunning   = types.StateRunning
	StateSuspended = types.StateSuspended
	StateStopped   = types.StateStopped
)

// Re-export assignment classification constants for hosts constructing
// forced assignments.
const (
	AssignmentTypeTest    = types.AssignmentTypeTest
	AssignmentTypeControl = types.AssignmentTypeControl

	ModeForced        = types.ModeForced
	ModeForcedControl = types.ModeForcedControl
	ModePureControl   = types.ModePureControl
	ModeProbabilistic = types.ModeProbabilistic
	ModeExcluded      = types.ModeExcluded
)
