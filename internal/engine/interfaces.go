package engine

import (
	"context"
	"time"

	"github.com/afikmenashe/alert-engine/internal/alerts"
	"github.com/afikmenashe/alert-engine/pkg/metrics"
)

// Repository is the alert rule store.
// Lookups of missing alerts return an error wrapping alerts.ErrNotFound.
type Repository interface {
	GetAlert(ctx context.Context, project, name string) (*alerts.AlertConfig, error)
	GetAlertByID(ctx context.Context, alertID int64) (*alerts.AlertConfig, error)
	// CreateAlert inserts the alert and its inactive state row in one transaction.
	CreateAlert(ctx context.Context, alert *alerts.AlertConfig) (*alerts.AlertConfig, error)
	StoreAlert(ctx context.Context, alert *alerts.AlertConfig) (*alerts.AlertConfig, error)
	// DeleteAlert removes the alert and its state. Deleting a missing alert is not an error.
	DeleteAlert(ctx context.Context, alertID int64) error
	// DeleteProjectAlerts removes every alert of project and returns what was removed.
	DeleteProjectAlerts(ctx context.Context, project string) ([]*alerts.AlertConfig, error)
	// ListAlerts returns the alerts of project ordered by id, enriched with their state.
	ListAlerts(ctx context.Context, project string) ([]*alerts.AlertConfig, error)
	ListAllAlerts(ctx context.Context) ([]*alerts.AlertConfig, error)
	GetAlertState(ctx context.Context, alertID int64) (*alerts.AlertState, error)
	StoreAlertState(ctx context.Context, state *alerts.AlertState) error
	// UpdateAlertState runs fn against the locked state row and persists it
	// when fn reports a change. Nothing is written if fn or the commit fails.
	UpdateAlertState(ctx context.Context, alertID int64, fn func(*alerts.AlertState) (bool, error)) error
	EnrichAlert(ctx context.Context, alert *alerts.AlertConfig) error
}

// Notifier delivers a fired alert. Delivery failures are logged by the
// implementation and never returned to the engine.
type Notifier interface {
	Push(ctx context.Context, alert *alerts.AlertConfig, event *alerts.Event)
}

// SecretManager moves notification secret params out of the alert definition.
type SecretManager interface {
	// MaskAndStoreNotificationSecrets stores the secret params of each
	// notification and returns copies that only hold a reference to them.
	MaskAndStoreNotificationSecrets(ctx context.Context, notifications []alerts.Notification, entityID, project string) ([]alerts.Notification, error)
	DeleteNotificationSecrets(ctx context.Context, project string, notification alerts.Notification) error
}

// Metrics records engine metrics.
// Implementations must be safe for concurrent use.
type Metrics interface {
	RecordReceived()
	RecordProcessed(duration time.Duration)
	RecordFired()
	RecordError()
	IncrementCustom(name string)
}

// NoOpMetrics is a no-op implementation of Metrics.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordReceived()               {}
func (NoOpMetrics) RecordProcessed(time.Duration) {}
func (NoOpMetrics) RecordFired()                  {}
func (NoOpMetrics) RecordError()                  {}
func (NoOpMetrics) IncrementCustom(string)        {}

// metricsAdapter adapts *metrics.Collector to Metrics.
type metricsAdapter struct {
	collector *metrics.Collector
}

// NewMetricsAdapter wraps a metrics.Collector as Metrics.
// If collector is nil, returns a no-op implementation.
func NewMetricsAdapter(collector *metrics.Collector) Metrics {
	if collector == nil {
		return NoOpMetrics{}
	}
	return &metricsAdapter{collector: collector}
}

func (m *metricsAdapter) RecordReceived()                 { m.collector.RecordReceived() }
func (m *metricsAdapter) RecordProcessed(d time.Duration) { m.collector.RecordProcessed(d) }
func (m *metricsAdapter) RecordFired()                    { m.collector.RecordFired() }
func (m *metricsAdapter) RecordError()                    { m.collector.RecordError() }
func (m *metricsAdapter) IncrementCustom(name string)     { m.collector.IncrementCustom(name) }

type noopNotifier struct{}

func (noopNotifier) Push(context.Context, *alerts.AlertConfig, *alerts.Event) {}

type noopSecrets struct{}

func (noopSecrets) MaskAndStoreNotificationSecrets(_ context.Context, n []alerts.Notification, _, _ string) ([]alerts.Notification, error) {
	return n, nil
}

func (noopSecrets) DeleteNotificationSecrets(context.Context, string, alerts.Notification) error {
	return nil
}
