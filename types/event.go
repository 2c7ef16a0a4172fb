package types

// Envelope type and canonical event names produced by the client itself.
// Hosts may queue their own names; these are the ones the pipeline emits.
const (
	EventTypeTrack = "track"

	EventNameAssignment = "test_assignment"
	EventNameImpression = "test_impression"
)

// Event is one analytics envelope queued for delivery to the collector.
//
// Events are immutable once queued. ClientTimestamp is a millisecond Unix
// epoch; TimezoneOffset is minutes west of UTC at the time the event was
// composed (UTC+2 yields -120).
type Event struct {
	// Type is the envelope type, normally EventTypeTrack.
	Type string `json:"type"`

	// EventName names the event, e.g. EventNameAssignment.
	EventName string `json:"eventName"`

	// EventType is an optional semantic category for the event.
	EventType string `json:"eventType,omitempty"`

	// UserID and SessionID attribute the event. At least one must be set.
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`

	// ClientTimestamp is the event time in Unix milliseconds.
	ClientTimestamp int64 `json:"clientTimestamp"`

	// TimezoneOffset is minutes west of UTC.
	TimezoneOffset int `json:"timezoneOffset"`

	// EventData carries the event payload.
	EventData map[string]any `json:"eventData,omitempty"`
}
