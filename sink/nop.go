package sink

import (
	"context"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// NopSink discards announcements. It is the default when no sink is
// configured.
type NopSink struct{}

// Compile-time interface assertion.
var _ types.Sink = (*NopSink)(nil)

// NewNop creates a no-op sink.
//
// Returns:
//   - *NopSink: A sink that discards every announcement
func NewNop() *NopSink {
	return &NopSink{}
}

// Announce discards the assignment.
func (s *NopSink) Announce(_ /* ctx */ context.Context, _ /* assignment */ types.Assignment) {}
