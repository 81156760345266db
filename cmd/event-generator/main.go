// Command event-generator publishes synthetic events to the events topic so a
// running alert engine can be load tested end to end.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/afikmenashe/alert-engine/internal/generator"
	"github.com/afikmenashe/alert-engine/pkg/shared"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	var (
		brokers    string
		topic      string
		projects   string
		kindDist   string
		entityPool int
		seed       int64
		rps        float64
		duration   time.Duration
		burst      int
		mock       bool
	)
	flag.StringVar(&brokers, "kafka-brokers", shared.GetEnvOrDefault("KAFKA_BROKERS", "localhost:9092"), "Kafka broker addresses (comma-separated)")
	flag.StringVar(&topic, "topic", shared.GetEnvOrDefault("EVENTS_TOPIC", "events.new"), "Kafka topic name")
	flag.StringVar(&projects, "projects", "default", "Projects to emit events for (comma-separated)")
	flag.StringVar(&kindDist, "kind-dist", generator.DefaultKindDist, "Event kind distribution (format: kind:percent,...)")
	flag.IntVar(&entityPool, "entities", 10, "Number of distinct entity ids per entity kind")
	flag.Int64Var(&seed, "seed", 0, "Random seed for deterministic generation (0 = random)")
	flag.Float64Var(&rps, "rps", 10.0, "Events per second")
	flag.DurationVar(&duration, "duration", 60*time.Second, "Duration to run (e.g., 60s, 5m)")
	flag.IntVar(&burst, "burst", 0, "Burst mode: send N events immediately, then stop (0 = continuous)")
	flag.BoolVar(&mock, "mock", false, "Log events instead of sending them to Kafka")
	flag.Parse()

	slog.Info("Starting event-generator",
		"kafka_brokers", brokers,
		"topic", topic,
		"projects", projects,
		"rps", rps,
		"duration", duration,
		"burst_size", burst,
		"seed", seed,
	)

	gen, err := generator.New(generator.Config{
		Projects:   splitList(projects),
		KindDist:   kindDist,
		EntityPool: entityPool,
		Seed:       seed,
	})
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var publisher generator.EventPublisher
	if mock {
		slog.Info("Using mock mode - events will be logged but not sent to Kafka")
		publisher = generator.NewLogPublisher(topic)
	} else {
		slog.Info("Connecting to Kafka", "brokers", brokers, "topic", topic)
		publisher, err = generator.NewKafkaPublisher(brokers, topic)
		if err != nil {
			slog.Error("Failed to create Kafka producer", "error", err)
			slog.Info("Tip: Start Kafka with 'docker compose up -d kafka' or use --mock flag to test without Kafka")
			os.Exit(1)
		}
	}
	defer publisher.Close()

	runner := generator.NewRunner(gen, publisher)
	if burst > 0 {
		err = runner.Burst(ctx, burst)
	} else {
		err = runner.Continuous(ctx, rps, duration)
	}
	if err != nil && err != context.Canceled {
		slog.Error("Generation failed", "error", err, "sent", runner.Sent())
		os.Exit(1)
	}

	slog.Info("Event generator completed", "sent", runner.Sent())
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
