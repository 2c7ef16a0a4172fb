package sink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	varianttest "github.com/eladnissenberg/variant-shopify-setup/testing"
	"github.com/eladnissenberg/variant-shopify-setup/types"
)

func sinkAssignment(testID string) types.Assignment {
	return types.Assignment{
		TestID:          testID,
		Type:            types.AssignmentTypeTest,
		Mode:            types.ModeProbabilistic,
		PageGroup:       "page:product",
		AssignedVariant: "2",
		TestedVariant:   "2",
		CreatedAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// writeRecorder stands in for the kafka writer.
type writeRecorder struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (r *writeRecorder) write(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msgs...)

	return nil
}

func (r *writeRecorder) messages() []kafka.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kafka.Message(nil), r.msgs...)
}

func newTestKafkaSink(t *testing.T, cfg KafkaConfig) (*KafkaSink, *writeRecorder) {
	t.Helper()

	if cfg.Brokers == nil {
		cfg.Brokers = []string{"127.0.0.1:9092"}
	}
	if cfg.Topic == "" {
		cfg.Topic = "variant-assignments"
	}

	s, err := NewKafka(cfg, varianttest.NewTestLogger(t))
	require.NoError(t, err)

	rec := &writeRecorder{}
	s.write = rec.write

	return s, rec
}

func TestNewKafka_ConfigValidation(t *testing.T) {
	logger := varianttest.NewTestLogger(t)

	_, err := NewKafka(KafkaConfig{Topic: "variant-assignments"}, logger)
	require.Error(t, err)

	_, err = NewKafka(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}}, logger)
	require.Error(t, err)
}

func TestKafkaSink_PublishesAssignments(t *testing.T) {
	s, rec := newTestKafkaSink(t, KafkaConfig{})
	s.Start()

	for _, id := range []string{"checkout-cta", "hero-banner", "free-shipping"} {
		s.Announce(t.Context(), sinkAssignment(id))
	}
	require.NoError(t, s.Close())

	msgs := rec.messages()
	require.Len(t, msgs, 3)
	require.Equal(t, []byte("checkout-cta"), msgs[0].Key)

	var got types.Assignment
	require.NoError(t, json.Unmarshal(msgs[0].Value, &got))
	require.Equal(t, "checkout-cta", got.TestID)
	require.Equal(t, "2", got.AssignedVariant)
	require.True(t, msgs[0].Time.Equal(got.CreatedAt))
}

func TestKafkaSink_DropsOnBackpressure(t *testing.T) {
	s, rec := newTestKafkaSink(t, KafkaConfig{QueueCapacity: 1})

	// Producer not yet running: the buffer holds one announcement, the
	// second is dropped.
	s.Announce(t.Context(), sinkAssignment("kept"))
	s.Announce(t.Context(), sinkAssignment("dropped"))

	s.Start()
	require.NoError(t, s.Close())

	msgs := rec.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, []byte("kept"), msgs[0].Key)
}

func TestKafkaSink_WriteFailureIsNotFatal(t *testing.T) {
	s, rec := newTestKafkaSink(t, KafkaConfig{})
	rec.err = errors.New("broker unavailable")

	s.Start()
	s.Announce(t.Context(), sinkAssignment("checkout-cta"))
	require.NoError(t, s.Close())

	require.Empty(t, rec.messages())
}
