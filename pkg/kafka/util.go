// Package kafka provides shared Kafka utilities for the engine's consumer and producer.
package kafka

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	// MaxPollWait bounds how long a fetch waits for new data.
	MaxPollWait = 500 * time.Millisecond
	// CommitInterval is how often offsets are committed after processing.
	CommitInterval = 1 * time.Second
	// WriteTimeout is the maximum time to wait for a Kafka write operation.
	WriteTimeout = 10 * time.Second
)

// ParseBrokers parses a comma-separated broker list and trims whitespace.
// Empty entries are dropped.
func ParseBrokers(brokers string) []string {
	if brokers == "" {
		return nil
	}
	parts := strings.Split(brokers, ",")
	brokerList := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokerList = append(brokerList, p)
		}
	}
	return brokerList
}

// ValidateConsumerParams validates common consumer parameters.
func ValidateConsumerParams(brokers, topic, groupID string) error {
	if brokers == "" {
		return fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}
	if groupID == "" {
		return fmt.Errorf("groupID cannot be empty")
	}
	return nil
}

// ValidateProducerParams validates common producer parameters.
func ValidateProducerParams(brokers, topic string) error {
	if brokers == "" {
		return fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}
	return nil
}

// NewReaderConfig creates a standard Kafka reader configuration for at-least-once delivery.
func NewReaderConfig(brokers []string, topic, groupID string) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,    // Return immediately when any data is available
		MaxBytes:       10e6, // 10MB
		MaxWait:        MaxPollWait,
		CommitInterval: CommitInterval,
		StartOffset:    kafka.FirstOffset, // Start from beginning if no committed offset
	}
}

// LogReaderConfig logs the values a reader was configured with.
func LogReaderConfig(cfg kafka.ReaderConfig) {
	slog.Info("Kafka consumer configured",
		"topic", cfg.Topic,
		"group_id", cfg.GroupID,
		"min_bytes", cfg.MinBytes,
		"max_bytes", cfg.MaxBytes,
		"max_wait", cfg.MaxWait.String(),
		"commit_interval", cfg.CommitInterval.String(),
	)
}

// NewWriter creates a synchronous, key-hashed Kafka writer for the topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // Messages with the same key land on the same partition
		WriteTimeout:           WriteTimeout,
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}
}
