// Package producer publishes fired alerts to the alerts.activations Kafka topic.
package producer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/afikmenashe/alert-engine/internal/alerts"
	"github.com/afikmenashe/alert-engine/internal/notifier"
	kafkautil "github.com/afikmenashe/alert-engine/pkg/kafka"
)

// ContentType is the content-type header of activation messages.
const ContentType = "application/x-protobuf; proto=google.protobuf.Struct"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes one activation per fired alert.
type Producer struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewProducer creates a Kafka producer with the specified brokers and topic.
// Writes are synchronous and keyed by alert id.
func NewProducer(brokers string, topic string) (*Producer, error) {
	if err := kafkautil.ValidateProducerParams(brokers, topic); err != nil {
		return nil, err
	}
	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing Kafka producer",
		"brokers", brokerList,
		"topic", topic,
	)

	return &Producer{
		writer: kafkautil.NewWriter(brokerList, topic),
		topic:  topic,
		now:    time.Now,
	}, nil
}

// BuildActivation returns the activation record of alert fired by event.
func BuildActivation(id string, alert *alerts.AlertConfig, event *alerts.Event, firedAt time.Time) (*structpb.Struct, error) {
	fields := map[string]any{
		"id":              id,
		"project":         alert.Project,
		"alert_id":        alert.ID,
		"alert_name":      alert.Name,
		"severity":        string(alert.Severity),
		"summary":         notifier.RenderSummary(alert.Summary, alert, event),
		"reset_policy":    string(alert.ResetPolicy),
		"event_kind":      event.Kind,
		"entity_kind":     event.Entity.Kind,
		"entity_id":       event.Entity.ID,
		"event_timestamp": event.Timestamp.UTC().Format(time.RFC3339Nano),
		"fired_at":        firedAt.UTC().Format(time.RFC3339Nano),
	}

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build activation: %w", err)
	}

	if event.Value != nil {
		v, err := structpb.NewValue(event.Value)
		if err != nil {
			// Values without a protobuf mapping are kept in their printed form.
			v = structpb.NewStringValue(fmt.Sprint(event.Value))
		}
		s.Fields["event_value"] = v
	}
	return s, nil
}

// DecodeActivation parses a message value written by Push.
func DecodeActivation(data []byte) (*structpb.Struct, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal activation: %w", err)
	}
	return &s, nil
}

// Push publishes an activation for alert. Failures are logged, not returned.
func (p *Producer) Push(ctx context.Context, alert *alerts.AlertConfig, event *alerts.Event) {
	if err := p.Publish(ctx, alert, event); err != nil {
		slog.Error("Failed to publish activation",
			"alert_id", alert.ID,
			"project", alert.Project,
			"topic", p.topic,
			"error", err,
		)
	}
}

// Publish serializes the activation of alert and writes it to Kafka.
func (p *Producer) Publish(ctx context.Context, alert *alerts.AlertConfig, event *alerts.Event) error {
	id := uuid.New().String()
	activation, err := BuildActivation(id, alert, event, p.now())
	if err != nil {
		return err
	}

	payload, err := proto.Marshal(activation)
	if err != nil {
		return fmt.Errorf("failed to marshal activation: %w", err)
	}

	alertID := strconv.FormatInt(alert.ID, 10)
	msg := kafka.Message{
		Key:   []byte(alertID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte(ContentType)},
			{Key: "alert_id", Value: []byte(alertID)},
			{Key: "project", Value: []byte(alert.Project)},
			{Key: "event_kind", Value: []byte(event.Kind)},
		},
		Time: event.Timestamp,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	slog.Debug("Published activation",
		"activation_id", id,
		"alert_id", alert.ID,
		"topic", p.topic,
	)
	return nil
}

// Close gracefully closes the Kafka writer and releases resources.
func (p *Producer) Close() error {
	slog.Info("Closing Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		slog.Error("Error closing Kafka producer", "error", err)
		return err
	}
	slog.Info("Kafka producer closed successfully")
	return nil
}
