package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/afikmenashe/alert-engine/internal/consumer"
	kafkautil "github.com/afikmenashe/alert-engine/pkg/kafka"
)

// EventPublisher publishes generated events.
type EventPublisher interface {
	Publish(ctx context.Context, event *consumer.EventMessage) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON to the events topic, keyed by project.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers, topic string) (*KafkaPublisher, error) {
	if err := kafkautil.ValidateProducerParams(brokers, topic); err != nil {
		return nil, err
	}
	return &KafkaPublisher{
		writer: kafkautil.NewWriter(kafkautil.ParseBrokers(brokers), topic),
		topic:  topic,
	}, nil
}

// Publish writes one event.
func (p *KafkaPublisher) Publish(ctx context.Context, event *consumer.EventMessage) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Project),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_kind", Value: []byte(event.Kind)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event to topic %s: %w", p.topic, err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher logs events instead of sending them. Used with -mock.
type LogPublisher struct {
	topic string
}

// NewLogPublisher returns a publisher that needs no broker.
func NewLogPublisher(topic string) *LogPublisher {
	return &LogPublisher{topic: topic}
}

func (p *LogPublisher) Publish(_ context.Context, event *consumer.EventMessage) error {
	slog.Info("Mock publish",
		"topic", p.topic,
		"project", event.Project,
		"event_kind", event.Kind,
		"entity_kind", event.Entity.Kind,
		"entity_id", event.Entity.ID,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
