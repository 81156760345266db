// Package notifier delivers fired alerts to their notification channels.
package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/afikmenashe/alert-engine/internal/alerts"
)

const (
	MetricNotificationsSent   = "notifications_sent"
	MetricNotificationsFailed = "notifications_failed"
)

// Notifier is the delivery side of a fired alert.
type Notifier interface {
	Push(ctx context.Context, alert *alerts.AlertConfig, event *alerts.Event)
}

// SecretResolver loads the secret params a masked notification refers to.
type SecretResolver interface {
	Resolve(ctx context.Context, project string, n alerts.Notification) (alerts.Notification, error)
}

// Counter counts delivery outcomes.
type Counter interface {
	IncrementCustom(name string)
}

// Pusher sends every notification of a fired alert through the registry.
type Pusher struct {
	registry *Registry
	secrets  SecretResolver
	retry    RetryConfig
	counter  Counter
}

// Option configures a Pusher.
type Option func(*Pusher)

// WithRegistry replaces the default sender registry.
func WithRegistry(r *Registry) Option {
	return func(p *Pusher) { p.registry = r }
}

// WithSecrets resolves masked notifications before sending.
func WithSecrets(s SecretResolver) Option {
	return func(p *Pusher) { p.secrets = s }
}

// WithRetryConfig sets the retry configuration of each send.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(p *Pusher) { p.retry = cfg }
}

// WithCounter counts sent and failed notifications.
func WithCounter(c Counter) Option {
	return func(p *Pusher) { p.counter = c }
}

// NewPusher creates a Pusher with the default registry and retry configuration.
func NewPusher(opts ...Option) *Pusher {
	p := &Pusher{
		registry: DefaultRegistry(nil),
		retry:    DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Push sends each notification of alert. Failures are logged per notification
// and do not stop the remaining ones.
func (p *Pusher) Push(ctx context.Context, alert *alerts.AlertConfig, event *alerts.Event) {
	for _, n := range alert.Notifications {
		if err := p.send(ctx, alert, n, event); err != nil {
			slog.Error("Failed to send notification",
				"project", alert.Project,
				"alert_id", alert.ID,
				"alert_name", alert.Name,
				"notification", n.Name,
				"kind", n.Kind,
				"error", err,
			)
			p.count(MetricNotificationsFailed)
			continue
		}
		p.count(MetricNotificationsSent)
	}
}

func (p *Pusher) send(ctx context.Context, alert *alerts.AlertConfig, n alerts.Notification, event *alerts.Event) error {
	sender, ok := p.registry.Get(n.Kind)
	if !ok {
		return fmt.Errorf("no sender registered for notification kind %q", n.Kind)
	}

	if p.secrets != nil {
		resolved, err := p.secrets.Resolve(ctx, alert.Project, n)
		if err != nil {
			return err
		}
		n = resolved
	}

	msg := BuildMessage(alert, n, event)
	operation := string(n.Kind) + "/" + n.Name
	return WithRetry(ctx, p.retry, operation, func() error {
		return sender.Send(ctx, n, msg)
	})
}

func (p *Pusher) count(name string) {
	if p.counter != nil {
		p.counter.IncrementCustom(name)
	}
}

// Fanout pushes to several notifiers in order.
type Fanout []Notifier

// Push calls Push on every notifier.
func (f Fanout) Push(ctx context.Context, alert *alerts.AlertConfig, event *alerts.Event) {
	for _, n := range f {
		n.Push(ctx, alert, event)
	}
}
