package types

import "context"

// Sink is the fire-and-forget side channel that announces assignments to
// in-process or out-of-process listeners (message bus, pixel bridge).
//
// Announce must never block the assignment path and has no error return:
// implementations drop on backpressure and log their own failures. Delivery
// guarantees belong to the event pipeline, not the sink.
type Sink interface {
	Announce(ctx context.Context, assignment Assignment)
}
