package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	burstProgressInterval = 1000
	progressLogInterval   = 5 * time.Second
)

// Runner drives a Generator into an EventPublisher.
type Runner struct {
	gen       *Generator
	publisher EventPublisher
	sent      int
}

// NewRunner creates a runner.
func NewRunner(gen *Generator, publisher EventPublisher) *Runner {
	return &Runner{gen: gen, publisher: publisher}
}

// Sent returns the number of events published so far.
func (r *Runner) Sent() int {
	return r.sent
}

// Burst publishes n events as fast as the publisher accepts them.
func (r *Runner) Burst(ctx context.Context, n int) error {
	slog.Info("Starting burst mode", "total_events", n)
	start := time.Now()

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			slog.Warn("Burst mode cancelled", "sent", r.sent, "requested", n)
			return err
		}
		if err := r.publishOne(ctx); err != nil {
			return err
		}
		if r.sent%burstProgressInterval == 0 {
			slog.Info("Burst progress", "sent", r.sent, "total", n, "rate_per_sec", formatRate(r.sent, time.Since(start)))
		}
	}

	slog.Info("Burst mode completed",
		"total_sent", r.sent,
		"duration_sec", fmt.Sprintf("%.2f", time.Since(start).Seconds()),
		"rate_per_sec", formatRate(r.sent, time.Since(start)),
	)
	return nil
}

// Continuous publishes at rps events per second until duration elapses.
func (r *Runner) Continuous(ctx context.Context, rps float64, duration time.Duration) error {
	if rps <= 0 {
		return fmt.Errorf("rps must be positive, got %v", rps)
	}
	slog.Info("Starting continuous mode", "target_rps", rps, "duration", duration)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / rps))
	defer ticker.Stop()

	start := time.Now()
	deadline := start.Add(duration)
	lastLog := start

	for {
		select {
		case <-ctx.Done():
			slog.Warn("Continuous mode cancelled", "sent", r.sent)
			return ctx.Err()
		case now := <-ticker.C:
			if now.After(deadline) {
				slog.Info("Duration reached",
					"total_sent", r.sent,
					"target_rps", rps,
					"actual_rps", formatRate(r.sent, time.Since(start)),
				)
				return nil
			}
			if err := r.publishOne(ctx); err != nil {
				return err
			}
			if time.Since(lastLog) >= progressLogInterval {
				slog.Info("Progress update", "sent", r.sent, "actual_rps", formatRate(r.sent, time.Since(start)))
				lastLog = time.Now()
			}
		}
	}
}

func (r *Runner) publishOne(ctx context.Context) error {
	event := r.gen.Generate()
	if err := r.publisher.Publish(ctx, event); err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return context.Canceled
		}
		slog.Error("Failed to publish event",
			"project", event.Project,
			"event_kind", event.Kind,
			"entity_id", event.Entity.ID,
			"error", err,
		)
		return fmt.Errorf("failed to publish event %d: %w", r.sent+1, err)
	}
	r.sent++
	if r.sent == 1 {
		slog.Info("Published first event (sample)",
			"project", event.Project,
			"event_kind", event.Kind,
			"entity_kind", event.Entity.Kind,
			"entity_id", event.Entity.ID,
			"value", event.Value,
		)
	}
	return nil
}

func formatRate(count int, elapsed time.Duration) string {
	if elapsed <= 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", float64(count)/elapsed.Seconds())
}
