package sink

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	varianttest "github.com/eladnissenberg/variant-shopify-setup/testing"
	"github.com/eladnissenberg/variant-shopify-setup/types"
)

func TestNATSSink_PublishesToSubjectTree(t *testing.T) {
	_, nc := varianttest.StartEmbeddedNATS(t)

	sub, err := nc.SubscribeSync("variant.assignments.>")
	require.NoError(t, err)

	s := NewNATS(nc, "variant.assignments", varianttest.NewTestLogger(t))
	a := sinkAssignment("checkout-cta")
	s.Announce(t.Context(), a)

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "variant.assignments.checkout-cta", msg.Subject)

	var got types.Assignment
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	require.Equal(t, a.TestID, got.TestID)
	require.Equal(t, a.AssignedVariant, got.AssignedVariant)
	require.Equal(t, a.PageGroup, got.PageGroup)
	require.True(t, a.CreatedAt.Equal(got.CreatedAt))
}

func TestNATSSink_ScopedSubscription(t *testing.T) {
	_, nc := varianttest.StartEmbeddedNATS(t)

	sub, err := nc.SubscribeSync("variant.assignments.hero-banner")
	require.NoError(t, err)

	s := NewNATS(nc, "variant.assignments", varianttest.NewTestLogger(t))
	s.Announce(t.Context(), sinkAssignment("checkout-cta"))
	s.Announce(t.Context(), sinkAssignment("hero-banner"))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "variant.assignments.hero-banner", msg.Subject)
}

func TestNopSink_DiscardsAnnouncements(t *testing.T) {
	s := NewNop()
	s.Announce(t.Context(), sinkAssignment("checkout-cta"))
}
