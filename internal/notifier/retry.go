package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"
)

// RetryConfig defines retry behavior for a single notification send.
type RetryConfig struct {
	MaxRetries     int           // Maximum number of retry attempts (0 = no retries)
	InitialBackoff time.Duration // Initial backoff duration
	MaxBackoff     time.Duration // Maximum backoff duration
	BackoffFactor  float64       // Multiplier for exponential backoff
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
	}
}

// StatusError is returned when a notification endpoint answers with a non-2xx status.
type StatusError struct {
	Channel    string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned non-2xx status: %d", e.Channel, e.StatusCode)
}

// IsRetryable reports whether err is a transient failure worth retrying.
// 5xx and 429 responses and network errors are retryable; other statuses are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == 429
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, s := range []string{"timeout", "connection refused", "connection reset", "temporary", "eof"} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

// WithRetry runs fn until it succeeds, fails permanently, or runs out of attempts.
func WithRetry(ctx context.Context, cfg RetryConfig, operation string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				slog.Info("Notification succeeded after retry",
					"operation", operation,
					"attempt", attempt+1,
				)
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt >= cfg.MaxRetries {
			slog.Warn("Max retries exceeded",
				"operation", operation,
				"attempts", attempt+1,
				"error", err,
			)
			return err
		}

		backoff := calculateBackoff(cfg, attempt)
		slog.Warn("Notification failed, retrying",
			"operation", operation,
			"attempt", attempt+1,
			"max_attempts", cfg.MaxRetries+1,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return lastErr
}

// calculateBackoff returns initial * factor^attempt capped at MaxBackoff, with ±25% jitter.
func calculateBackoff(cfg RetryConfig, attempt int) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffFactor, float64(attempt))
	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	return time.Duration(backoff + jitter)
}
