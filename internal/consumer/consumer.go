// Package consumer provides Kafka consumer functionality for the events.new topic.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/afikmenashe/alert-engine/internal/alerts"
	kafkautil "github.com/afikmenashe/alert-engine/pkg/kafka"
)

// EventMessage is the JSON value of an events.new message.
type EventMessage struct {
	Project string        `json:"project"`
	Kind    string        `json:"kind"`
	Entity  alerts.Entity `json:"entity"`
	Value   any           `json:"value,omitempty"`
}

// Event converts the message to an engine event. An entity without a
// project is taken to belong to the message project, as on the HTTP API.
func (m *EventMessage) Event() *alerts.Event {
	entity := m.Entity
	if entity.Project == "" {
		entity.Project = m.Project
	}
	return &alerts.Event{Kind: m.Kind, Entity: entity, Value: m.Value}
}

// DecodeError marks a message whose value could not be decoded.
// Such messages are never going to succeed and may be committed.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to unmarshal event: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer wraps a Kafka reader and decodes events.new messages.
type Consumer struct {
	reader messageReader
	topic  string
}

// NewConsumer creates a new Kafka consumer with the specified brokers, topic, and group ID.
// Offsets are committed explicitly through CommitMessage.
func NewConsumer(brokers string, topic string, groupID string) (*Consumer, error) {
	if err := kafkautil.ValidateConsumerParams(brokers, topic, groupID); err != nil {
		return nil, err
	}
	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing Kafka consumer",
		"brokers", brokerList,
		"topic", topic,
		"group_id", groupID,
	)

	cfg := kafkautil.NewReaderConfig(brokerList, topic, groupID)
	kafkautil.LogReaderConfig(cfg)

	return &Consumer{
		reader: kafka.NewReader(cfg),
		topic:  topic,
	}, nil
}

// ReadMessage fetches the next message and decodes it. The raw message is
// returned with decode errors so the caller can commit past it.
func (c *Consumer) ReadMessage(ctx context.Context) (*EventMessage, *kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read message from Kafka: %w", err)
	}

	var event EventMessage
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, &msg, &DecodeError{Err: err}
	}
	return &event, &msg, nil
}

// CommitMessage commits the offset for the given message.
func (c *Consumer) CommitMessage(ctx context.Context, msg *kafka.Message) error {
	return c.reader.CommitMessages(ctx, *msg)
}

// Close gracefully closes the Kafka reader and releases resources.
func (c *Consumer) Close() error {
	slog.Info("Closing Kafka consumer", "topic", c.topic)
	if err := c.reader.Close(); err != nil {
		slog.Error("Error closing Kafka consumer", "error", err)
		return err
	}
	slog.Info("Kafka consumer closed successfully")
	return nil
}
