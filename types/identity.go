package types

// Identity holds the resolved visitor identifiers for one client instance.
//
// UserID is durable: once generated it survives sessions, restarts, and
// storage-backend swaps (via the mirror store). SessionID rotates after the
// configured inactivity window. Both are resolved once during Client.Start
// and are immutable for the lifetime of the client.
type Identity struct {
	// UserID is the durable visitor identifier.
	UserID string `json:"userId"`

	// SessionID identifies the current activity session.
	SessionID string `json:"sessionId"`
}

// Complete reports whether both identifiers are present.
func (i Identity) Complete() bool {
	return i.UserID != "" && i.SessionID != ""
}
