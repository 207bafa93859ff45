// Package kafka publishes graph mutation events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/spool/pkg/eventstream"
)

// DefaultTopic is the topic mutation events are produced to unless
// overridden with WithTopic.
const DefaultTopic = "spool.graph.mutations"

// ErrNoBrokers is returned when a publisher is created without any broker
// addresses.
var ErrNoBrokers = errors.New("kafka: no broker addresses")

// Publisher writes mutation events to Kafka. Messages are keyed by record id
// so every event for a record lands on the same partition.
type Publisher struct {
	writer *kafkago.Writer
}

// Option configures a Publisher.
type Option func(*options)

type options struct {
	topic string
}

// WithTopic overrides DefaultTopic. An empty topic keeps the default.
func WithTopic(topic string) Option {
	return func(o *options) {
		if topic != "" {
			o.topic = topic
		}
	}
}

// NewPublisher creates a Publisher producing to the given brokers.
func NewPublisher(brokers []string, opts ...Option) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}

	o := &options{topic: DefaultTopic}
	for _, opt := range opts {
		opt(o)
	}

	return &Publisher{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        o.topic,
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireOne,
			Compression:  kafkago.Snappy,
		},
	}, nil
}

// Topic returns the topic this publisher produces to.
func (p *Publisher) Topic() string {
	return p.writer.Topic
}

// PublishMutation encodes the event and writes it to the topic. The write
// blocks until the broker acknowledges it or ctx is done.
func (p *Publisher) PublishMutation(ctx context.Context, event *eventstream.MutationEvent) error {
	if event == nil {
		return eventstream.ErrNilMutationEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: encoding mutation event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.Record.ID),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publishing %s: %w", event.EventType, err)
	}

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
