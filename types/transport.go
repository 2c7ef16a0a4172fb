package types

import "context"

// Transport delivers a batch of events to the collector.
//
// Send must deliver the whole batch or fail it as a unit: the sender removes
// the batch from the queue only when Send returns nil. Transient failures
// should be reported by wrapping ErrDeliveryFailed so the retry layer and
// metrics can classify them. Send must honor ctx cancellation; the sender
// bounds each attempt with a per-attempt timeout.
type Transport interface {
	Send(ctx context.Context, events []Event) error
}
