// Package sink implements the fire-and-forget assignment announcement
// channels: a no-op default, a NATS publisher, and an async Kafka producer.
package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// NATSSink announces assignments on a NATS subject tree.
//
// Each assignment is published as JSON to "<subject>.<testID>", so listeners
// can subscribe to one experiment or to the whole tree with a wildcard.
// Publish failures are logged and dropped; the sink never blocks the
// assignment path.
type NATSSink struct {
	conn    *nats.Conn
	subject string
	logger  types.Logger
}

// Compile-time interface assertion.
var _ types.Sink = (*NATSSink)(nil)

// NewNATS creates a NATS assignment sink.
//
// Parameters:
//   - conn: Established NATS connection; the caller owns its lifecycle
//   - subject: Subject prefix, e.g. "variant.assignments"
//   - logger: Logger for publish failures
//
// Returns:
//   - *NATSSink: A new sink
func NewNATS(conn *nats.Conn, subject string, logger types.Logger) *NATSSink {
	return &NATSSink{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}
}

// Announce publishes the assignment. Failures are logged, never returned.
func (s *NATSSink) Announce(_ /* ctx */ context.Context, a types.Assignment) {
	payload, err := json.Marshal(a)
	if err != nil {
		s.logger.Error("assignment encode failed", "test_id", a.TestID, "error", err)
		return
	}

	subject := fmt.Sprintf("%s.%s", s.subject, a.TestID)
	if err := s.conn.Publish(subject, payload); err != nil {
		s.logger.Warn("assignment announce failed",
			"subject", subject,
			"test_id", a.TestID,
			"error", err,
		)
	}
}
