// Package engine routes events to alerts, evaluates alert criteria against the
// persisted trigger state and orchestrates the alert lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/afikmenashe/alert-engine/internal/alerts"
	"github.com/afikmenashe/alert-engine/internal/indexes"
	"github.com/afikmenashe/alert-engine/internal/validation"
)

// Custom metric names.
const (
	MetricEventsUnrouted = "events_unrouted"
	MetricEventsRejected = "events_rejected"
	MetricAlertsReset    = "alerts_reset"
)

// Engine is the alert service. One Engine is constructed at startup and
// shared by the HTTP handlers and the Kafka processor.
type Engine struct {
	repo     Repository
	notifier Notifier
	secrets  SecretManager
	index    *indexes.Index
	metrics  Metrics
	locks    *keyedMutex
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithSecrets sets the notification secret manager.
func WithSecrets(s SecretManager) Option {
	return func(e *Engine) {
		if s != nil {
			e.secrets = s
		}
	}
}

// WithClock overrides the clock used to stamp events and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an engine. A nil index starts empty; call Rebuild to load the
// subscriptions of existing alerts.
func New(repo Repository, notifier Notifier, index *indexes.Index, opts ...Option) *Engine {
	if index == nil {
		index = indexes.NewIndex(nil)
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	e := &Engine{
		repo:     repo,
		notifier: notifier,
		secrets:  noopSecrets{},
		index:    index,
		metrics:  NoOpMetrics{},
		locks:    newKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Index returns the routing index.
func (e *Engine) Index() *indexes.Index {
	return e.index
}

// Rebuild reconstructs the routing index from the store.
func (e *Engine) Rebuild(ctx context.Context) error {
	all, err := e.repo.ListAllAlerts(ctx)
	if err != nil {
		return fmt.Errorf("failed to rebuild event index: %w", err)
	}

	entries := make([]indexes.Entry, 0, len(all))
	for _, a := range all {
		for _, kind := range a.Trigger.Events {
			entries = append(entries, indexes.Entry{Project: a.Project, Kind: kind, AlertID: a.ID})
		}
	}
	e.index.Replace(entries)

	slog.Info("Event index rebuilt",
		"alerts", len(all),
		"buckets", e.index.Len(),
	)
	return nil
}

// HandleEvent validates an event for project, stamps it with the current time
// and processes it against every subscribed alert. Events nobody subscribes
// to are logged and dropped.
func (e *Engine) HandleEvent(ctx context.Context, project string, event *alerts.Event) error {
	start := time.Now()
	e.metrics.RecordReceived()

	if err := validation.ValidateEvent(project, event); err != nil {
		e.metrics.IncrementCustom(MetricEventsRejected)
		return err
	}
	event.Timestamp = e.now()

	ids := e.index.Route(project, event.Kind)
	if len(ids) == 0 {
		slog.Warn("Received unknown event",
			"project", project,
			"event_kind", event.Kind,
		)
		e.metrics.IncrementCustom(MetricEventsUnrouted)
		e.metrics.RecordProcessed(time.Since(start))
		return nil
	}

	var errs []error
	for _, id := range ids {
		if _, err := e.ProcessEvent(ctx, id, event); err != nil {
			if errors.Is(err, alerts.ErrNotFound) {
				slog.Warn("Routed alert no longer exists, skipping",
					"alert_id", id,
					"project", project,
					"event_kind", event.Kind,
				)
				continue
			}
			e.metrics.RecordError()
			slog.Error("Failed to process event",
				"alert_id", id,
				"project", project,
				"event_kind", event.Kind,
				"error", err,
			)
			errs = append(errs, err)
		}
	}

	e.metrics.RecordProcessed(time.Since(start))
	return errors.Join(errs...)
}

// ProcessEvent applies one event to one alert and reports whether it fired.
// Events for the same alert are serialized; the state update is committed
// before the notifier is invoked.
func (e *Engine) ProcessEvent(ctx context.Context, alertID int64, event *alerts.Event) (bool, error) {
	unlock := e.locks.Lock(alertID)
	defer unlock()

	cfg, err := e.repo.GetAlertByID(ctx, alertID)
	if err != nil {
		return false, err
	}

	var fired bool
	err = e.repo.UpdateAlertState(ctx, alertID, func(state *alerts.AlertState) (bool, error) {
		fire, changed, err := evaluate(cfg, state, event, e.now())
		fired = fire
		return changed, err
	})
	if err != nil {
		return false, fmt.Errorf("failed to update state of alert %d: %w", alertID, err)
	}

	slog.Debug("Processed event",
		"alert_id", alertID,
		"project", cfg.Project,
		"event_kind", event.Kind,
		"fired", fired,
	)
	if !fired {
		return false, nil
	}

	slog.Info("Alert fired",
		"alert_id", alertID,
		"alert_name", cfg.Name,
		"project", cfg.Project,
		"event_kind", event.Kind,
		"reset_policy", cfg.ResetPolicy,
	)
	e.metrics.RecordFired()
	e.notifier.Push(ctx, cfg, event)
	return true, nil
}

// ResetAlert returns the alert to the inactive state. Resetting an inactive
// alert is a no-op success.
func (e *Engine) ResetAlert(ctx context.Context, project string, alertID int64) error {
	unlock := e.locks.Lock(alertID)
	defer unlock()

	if _, err := e.getProjectAlert(ctx, project, alertID); err != nil {
		return err
	}
	if err := e.resetLocked(ctx, alertID); err != nil {
		return err
	}

	slog.Info("Alert reset", "alert_id", alertID, "project", project)
	return nil
}

func (e *Engine) resetLocked(ctx context.Context, alertID int64) error {
	err := e.repo.UpdateAlertState(ctx, alertID, func(state *alerts.AlertState) (bool, error) {
		state.Reset()
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset alert %d: %w", alertID, err)
	}
	e.metrics.IncrementCustom(MetricAlertsReset)
	return nil
}

// getProjectAlert loads an alert and checks it belongs to project.
func (e *Engine) getProjectAlert(ctx context.Context, project string, alertID int64) (*alerts.AlertConfig, error) {
	a, err := e.repo.GetAlertByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a.Project != project {
		return nil, fmt.Errorf("%w: alert %d in project %s", alerts.ErrNotFound, alertID, project)
	}
	return a, nil
}
