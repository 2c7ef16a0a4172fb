// Package hooks provides the default no-op hook set for the variant client.
package hooks

import (
	"context"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the codebase.
type NopHooks struct{}

// Compile-time assertions that NopHooks implements hook callbacks.
var (
	_ func(context.Context, types.Assignment) error = (*NopHooks)(nil).OnAssignment
	_ func(context.Context, int) error              = (*NopHooks)(nil).OnBatchDelivered
	_ func(context.Context, bool) error             = (*NopHooks)(nil).OnBreakerStateChange
	_ func(context.Context, error) error            = (*NopHooks)(nil).OnError
)

// NewNop creates a new no-op hooks implementation.
//
// Returns:
//   - types.Hooks: Hooks with no-op implementations
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnAssignment:         h.OnAssignment,
		OnBatchDelivered:     h.OnBatchDelivered,
		OnBreakerStateChange: h.OnBreakerStateChange,
		OnError:              h.OnError,
	}
}

// OnAssignment is a no-op implementation.
func (h *NopHooks) OnAssignment(ctx context.Context, assignment types.Assignment) error {
	return nil
}

// OnBatchDelivered is a no-op implementation.
func (h *NopHooks) OnBatchDelivered(ctx context.Context, delivered int) error {
	return nil
}

// OnBreakerStateChange is a no-op implementation.
func (h *NopHooks) OnBreakerStateChange(ctx context.Context, open bool) error {
	return nil
}

// OnError is a no-op implementation.
func (h *NopHooks) OnError(ctx context.Context, err error) error {
	return nil
}
