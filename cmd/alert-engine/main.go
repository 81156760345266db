package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/afikmenashe/alert-engine/internal/config"
	"github.com/afikmenashe/alert-engine/internal/consumer"
	"github.com/afikmenashe/alert-engine/internal/database"
	"github.com/afikmenashe/alert-engine/internal/engine"
	"github.com/afikmenashe/alert-engine/internal/handlers"
	"github.com/afikmenashe/alert-engine/internal/indexes"
	"github.com/afikmenashe/alert-engine/internal/notifier"
	"github.com/afikmenashe/alert-engine/internal/processor"
	"github.com/afikmenashe/alert-engine/internal/producer"
	"github.com/afikmenashe/alert-engine/internal/router"
	"github.com/afikmenashe/alert-engine/internal/secrets"
	"github.com/afikmenashe/alert-engine/pkg/metrics"
	"github.com/afikmenashe/alert-engine/pkg/shared"
)

const serviceName = "alert-engine"

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		slog.Error("Failed to parse configuration", "error", err)
		os.Exit(2)
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	slog.Info("Starting alert engine",
		"http_port", cfg.HTTPPort,
		"postgres_dsn", shared.MaskDSN(cfg.PostgresDSN),
		"redis_addr", cfg.RedisAddr,
		"kafka_enabled", cfg.KafkaEnabled,
		"kafka_brokers", cfg.KafkaBrokers,
		"events_topic", cfg.EventsTopic,
		"activations_topic", cfg.ActivationsTopic,
		"consumer_group_id", cfg.ConsumerGroupID,
	)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("Connecting to PostgreSQL database")
	db, err := database.NewDB(cfg.PostgresDSN)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		slog.Info("Tip: Start Postgres with 'docker compose up -d postgres' or ensure Postgres is running")
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}
	slog.Info("Successfully connected to PostgreSQL database")

	slog.Info("Connecting to Redis", "addr", cfg.RedisAddr)
	redisClient, err := shared.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		slog.Info("Tip: Start Redis with 'docker compose up -d redis' or ensure Redis is running")
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.Info("Successfully connected to Redis")

	collector := metrics.NewCollector(serviceName, redisClient)
	collector.SetReportInterval(cfg.MetricsInterval)
	collector.Start(ctx)
	defer collector.Stop()

	secretStore := secrets.NewStore(redisClient)

	retry := notifier.DefaultRetryConfig()
	retry.MaxRetries = cfg.NotifyMaxRetries
	sinks := notifier.Fanout{
		notifier.NewPusher(
			notifier.WithRegistry(notifier.DefaultRegistry(&http.Client{Timeout: cfg.NotifyTimeout})),
			notifier.WithSecrets(secretStore),
			notifier.WithRetryConfig(retry),
			notifier.WithCounter(collector),
		),
	}

	var kafkaProducer *producer.Producer
	if cfg.KafkaEnabled {
		slog.Info("Connecting to Kafka producer", "topic", cfg.ActivationsTopic)
		kafkaProducer, err = producer.NewProducer(cfg.KafkaBrokers, cfg.ActivationsTopic)
		if err != nil {
			slog.Error("Failed to create Kafka producer", "error", err)
			os.Exit(1)
		}
		defer kafkaProducer.Close()
		sinks = append(sinks, kafkaProducer)
	}

	eng := engine.New(db, sinks, indexes.NewIndex(nil),
		engine.WithMetrics(engine.NewMetricsAdapter(collector)),
		engine.WithSecrets(secretStore),
	)
	if err := eng.Rebuild(ctx); err != nil {
		slog.Error("Failed to rebuild event router", "error", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	if cfg.KafkaEnabled {
		slog.Info("Connecting to Kafka consumer", "topic", cfg.EventsTopic)
		kafkaConsumer, err := consumer.NewConsumer(cfg.KafkaBrokers, cfg.EventsTopic, cfg.ConsumerGroupID)
		if err != nil {
			slog.Error("Failed to create Kafka consumer", "error", err)
			slog.Info("Tip: Start Kafka with 'docker compose up -d kafka'")
			os.Exit(1)
		}
		defer kafkaConsumer.Close()

		proc := processor.NewProcessor(kafkaConsumer, eng, collector)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := proc.ProcessEvents(ctx); err != nil {
				slog.Error("Event processing failed", "error", err)
				cancel()
			}
		}()
	}

	h := handlers.NewHandlers(eng, db)
	server := router.NewServer(cfg.HTTPPort, router.NewRouter(h, collector).Handler())

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-serverErrChan:
		slog.Error("HTTP server error", "error", err)
		exitCode = 1
		cancel()
	}

	slog.Info("Shutting down HTTP server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error shutting down server", "error", err)
	}
	wg.Wait()

	slog.Info("Alert engine stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
