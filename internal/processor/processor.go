// Package processor feeds events consumed from Kafka into the engine.
package processor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/afikmenashe/alert-engine/internal/alerts"
	"github.com/afikmenashe/alert-engine/internal/consumer"
)

const (
	MetricMessagesDropped = "kafka_messages_dropped"
	MetricMessagesFailed  = "kafka_messages_failed"
	MetricCommitErrors    = "kafka_commit_errors"
)

// MessageConsumer reads and commits Kafka messages.
type MessageConsumer interface {
	ReadMessage(ctx context.Context) (*consumer.EventMessage, *kafka.Message, error)
	CommitMessage(ctx context.Context, msg *kafka.Message) error
}

// EventHandler applies an event to the alerts of a project.
type EventHandler interface {
	HandleEvent(ctx context.Context, project string, event *alerts.Event) error
}

// MetricsRecorder records processing metrics.
type MetricsRecorder interface {
	RecordError()
	IncrementCustom(name string)
}

type noopMetrics struct{}

func (noopMetrics) RecordError()           {}
func (noopMetrics) IncrementCustom(string) {}

// Processor runs the consume loop.
type Processor struct {
	consumer MessageConsumer
	handler  EventHandler
	metrics  MetricsRecorder
}

// NewProcessor creates a processor. A nil metrics recorder disables metrics.
func NewProcessor(consumer MessageConsumer, handler EventHandler, metrics MetricsRecorder) *Processor {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Processor{
		consumer: consumer,
		handler:  handler,
		metrics:  metrics,
	}
}

// ProcessEvents reads events until ctx is cancelled.
// Delivery is at most once: every fetched message is committed after it is
// handled, whatever the outcome. Failed messages are logged and counted, not
// retried.
func (p *Processor) ProcessEvents(ctx context.Context) error {
	slog.Info("Starting event processing loop")

	for {
		select {
		case <-ctx.Done():
			slog.Info("Event processing loop stopped")
			return nil
		default:
		}

		event, msg, err := p.consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Event processing loop stopped")
				return nil
			}
			var decodeErr *consumer.DecodeError
			if errors.As(err, &decodeErr) && msg != nil {
				slog.Warn("Dropping undecodable event",
					"partition", msg.Partition,
					"offset", msg.Offset,
					"error", err,
				)
				p.metrics.IncrementCustom(MetricMessagesDropped)
				p.commit(ctx, msg)
				continue
			}
			slog.Error("Failed to read event", "error", err)
			continue
		}

		p.processOne(ctx, event, msg)
		p.commit(ctx, msg)
	}
}

func (p *Processor) processOne(ctx context.Context, event *consumer.EventMessage, msg *kafka.Message) {
	slog.Debug("Received event",
		"project", event.Project,
		"event_kind", event.Kind,
		"entity_id", event.Entity.ID,
		"offset", msg.Offset,
	)

	err := p.handler.HandleEvent(ctx, event.Project, event.Event())
	switch {
	case err == nil:
	case errors.Is(err, alerts.ErrBadRequest), errors.Is(err, alerts.ErrValidation):
		slog.Warn("Dropping invalid event",
			"project", event.Project,
			"event_kind", event.Kind,
			"error", err,
		)
		p.metrics.IncrementCustom(MetricMessagesDropped)
	default:
		slog.Error("Failed to handle event",
			"project", event.Project,
			"event_kind", event.Kind,
			"offset", msg.Offset,
			"error", err,
		)
		p.metrics.RecordError()
		p.metrics.IncrementCustom(MetricMessagesFailed)
	}
}

func (p *Processor) commit(ctx context.Context, msg *kafka.Message) {
	if err := p.consumer.CommitMessage(ctx, msg); err != nil {
		slog.Error("Failed to commit offset",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		p.metrics.IncrementCustom(MetricCommitErrors)
	}
}
