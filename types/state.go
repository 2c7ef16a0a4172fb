package types

// State represents the client lifecycle state.
//
// States follow a defined progression during normal operation:
//
//	StateInit → StateRunning → StateStopped
//
// While running, the host may suspend and resume delivery any number of
// times:
//
//	StateRunning ⇄ StateSuspended
//
// StateStopped is terminal.
type State int32

const (
	// StateInit is the initial state before Start.
	StateInit State = iota

	// StateRunning indicates normal operation with active delivery.
	StateRunning

	// StateSuspended indicates the queue has been persisted and the sender
	// halted; events may still be queued.
	StateSuspended

	// StateStopped indicates the client has shut down.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateRunning:
		return "Running"
	case StateSuspended:
		return "Suspended"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
