package sink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// KafkaConfig configures the Kafka assignment sink.
type KafkaConfig struct {
	// Brokers lists the bootstrap broker addresses. At least one is
	// required.
	Brokers []string

	// Topic is the destination topic.
	Topic string

	// QueueCapacity bounds the in-memory announcement buffer. Announce
	// drops when it is full. Defaults to 256.
	QueueCapacity int

	// BatchTimeout is how long the writer collects messages before
	// flushing a batch. Defaults to 2 seconds.
	BatchTimeout time.Duration

	// WriteTimeout bounds each broker write. Defaults to 5 seconds.
	WriteTimeout time.Duration
}

// KafkaSink announces assignments to a Kafka topic through an async
// producer goroutine.
//
// Announce hands the assignment to a bounded channel and returns
// immediately; when the channel is full the announcement is dropped. The
// message key is the test id, so all announcements for one experiment land
// on the same partition.
type KafkaSink struct {
	writer *kafka.Writer
	write  func(ctx context.Context, msgs ...kafka.Message) error

	ch     chan types.Assignment
	stopCh chan struct{}
	doneCh chan struct{}

	logger types.Logger
}

// Compile-time interface assertion.
var _ types.Sink = (*KafkaSink)(nil)

// NewKafka creates a Kafka assignment sink. The producer goroutine does not
// run until Start.
//
// Parameters:
//   - cfg: Broker, topic, and buffering configuration
//   - logger: Logger for publish failures
//
// Returns:
//   - *KafkaSink: A new sink
//   - error: When no brokers or topic are configured
func NewKafka(cfg KafkaConfig, logger types.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka sink: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka sink: no topic configured")
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 2 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	s := &KafkaSink{
		writer: writer,
		write:  writer.WriteMessages,
		ch:     make(chan types.Assignment, cfg.QueueCapacity),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: logger,
	}

	return s, nil
}

// Start launches the producer goroutine.
func (s *KafkaSink) Start() {
	go s.loop()
}

// Announce buffers the assignment for the producer. It never blocks: when
// the buffer is full the announcement is dropped.
func (s *KafkaSink) Announce(_ /* ctx */ context.Context, a types.Assignment) {
	select {
	case s.ch <- a:
	default:
		s.logger.Warn("assignment announcement dropped, buffer full", "test_id", a.TestID)
	}
}

// Close drains buffered announcements, stops the producer goroutine, and
// closes the writer.
func (s *KafkaSink) Close() error {
	close(s.stopCh)
	<-s.doneCh

	return s.writer.Close()
}

func (s *KafkaSink) loop() {
	defer close(s.doneCh)

	for {
		select {
		case a := <-s.ch:
			s.publish(a)
		case <-s.stopCh:
			for {
				select {
				case a := <-s.ch:
					s.publish(a)
				default:
					return
				}
			}
		}
	}
}

func (s *KafkaSink) publish(a types.Assignment) {
	payload, err := json.Marshal(a)
	if err != nil {
		s.logger.Error("assignment encode failed", "test_id", a.TestID, "error", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(a.TestID),
		Value: payload,
		Time:  a.CreatedAt,
	}
	if err := s.write(context.Background(), msg); err != nil {
		s.logger.Warn("assignment publish failed", "test_id", a.TestID, "error", err)
	}
}
