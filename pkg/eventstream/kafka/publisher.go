// Package kafka publishes turn events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/coilworks/mnemo/pkg/eventstream"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "mnemo.turns"

// Config is the configuration options for the Kafka publisher.
type Config struct {
	// Brokers is the list of broker addresses.
	Brokers []string

	// Topic is the destination topic.
	Topic string
}

// Publisher writes turn events to Kafka as JSON, keyed by run ID so all
// turns of one session land on the same partition.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a Kafka-backed eventstream publisher.
func NewPublisher(c Config) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}

	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(c.Brokers...),
			Topic:    c.Topic,
			Balancer: &kafka.Hash{},
		},
	}, nil
}

// PublishTurn marshals the event and writes it to the configured topic.
func (p *Publisher) PublishTurn(ctx context.Context, event *eventstream.TurnPersistedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling turn event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Turn.RunID),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing turn event: %w", err)
	}

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
