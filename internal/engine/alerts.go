package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/afikmenashe/alert-engine/internal/alerts"
	"github.com/afikmenashe/alert-engine/internal/secrets"
	"github.com/afikmenashe/alert-engine/internal/validation"
)

// CreateAlert registers a new alert named name in project and subscribes it
// to its trigger events.
func (e *Engine) CreateAlert(ctx context.Context, project, name string, cfg *alerts.AlertConfig) (*alerts.AlertConfig, error) {
	if err := bindIdentity(cfg, project, name); err != nil {
		return nil, err
	}
	cfg.Normalize()

	_, err := e.repo.GetAlert(ctx, project, name)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: alert %s for project %s already exists", alerts.ErrConflict, name, project)
	case !errors.Is(err, alerts.ErrNotFound):
		return nil, err
	}

	if err := validation.ValidateAlert(cfg); err != nil {
		return nil, err
	}
	if err := checkSecretRefs(cfg.Notifications, nil); err != nil {
		return nil, err
	}

	masked, err := e.secrets.MaskAndStoreNotificationSecrets(ctx, cfg.Notifications, cfg.Name, project)
	if err != nil {
		return nil, fmt.Errorf("failed to store notification secrets: %w", err)
	}
	cfg.Notifications = masked

	now := e.now()
	cfg.ID = 0
	cfg.Created = now
	cfg.Updated = now

	created, err := e.repo.CreateAlert(ctx, cfg)
	if err != nil {
		e.deleteSecrets(ctx, project, masked)
		return nil, err
	}

	e.subscribe(created)
	if err := e.repo.EnrichAlert(ctx, created); err != nil {
		return nil, err
	}

	slog.Info("Alert created",
		"alert_id", created.ID,
		"alert_name", created.Name,
		"project", project,
		"events", created.Trigger.Events,
	)
	return created, nil
}

// StoreAlert replaces the definition of an existing alert. The name, id and
// creation time are kept, subscriptions are moved to the new trigger events
// and the trigger state is reset.
func (e *Engine) StoreAlert(ctx context.Context, project string, alertID int64, cfg *alerts.AlertConfig) (*alerts.AlertConfig, error) {
	unlock := e.locks.Lock(alertID)
	defer unlock()

	existing, err := e.getProjectAlert(ctx, project, alertID)
	if err != nil {
		return nil, err
	}

	if cfg.Project == "" {
		cfg.Project = project
	}
	cfg.Normalize()
	if err := validation.ValidateRename(existing, cfg); err != nil {
		return nil, err
	}
	if err := validation.ValidateAlert(cfg); err != nil {
		return nil, err
	}
	oldRefs := secretRefs(existing.Notifications)
	if err := checkSecretRefs(cfg.Notifications, oldRefs); err != nil {
		return nil, err
	}

	cfg.ID = existing.ID
	cfg.Created = existing.Created
	cfg.Updated = e.now()

	// New secrets are written under fresh fields; the old ones are only
	// dropped once the new definition is stored.
	masked, err := e.secrets.MaskAndStoreNotificationSecrets(ctx, cfg.Notifications, cfg.Name, project)
	if err != nil {
		return nil, fmt.Errorf("failed to store notification secrets: %w", err)
	}
	cfg.Notifications = masked
	newRefs := secretRefs(masked)

	e.unsubscribe(existing)
	stored, err := e.repo.StoreAlert(ctx, cfg)
	if err != nil {
		e.subscribe(existing)
		e.deleteSecrets(ctx, project, unreferenced(masked, oldRefs))
		return nil, err
	}
	e.deleteSecrets(ctx, project, unreferenced(existing.Notifications, newRefs))

	e.subscribe(stored)
	if err := e.resetLocked(ctx, stored.ID); err != nil {
		return nil, err
	}
	if err := e.repo.EnrichAlert(ctx, stored); err != nil {
		return nil, err
	}

	slog.Info("Alert stored",
		"alert_id", stored.ID,
		"alert_name", stored.Name,
		"project", project,
		"events", stored.Trigger.Events,
	)
	return stored, nil
}

// GetAlert returns an alert enriched with its state.
func (e *Engine) GetAlert(ctx context.Context, project string, alertID int64) (*alerts.AlertConfig, error) {
	a, err := e.getProjectAlert(ctx, project, alertID)
	if err != nil {
		return nil, err
	}
	if err := e.repo.EnrichAlert(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListAlerts returns the alerts of project enriched with their state.
func (e *Engine) ListAlerts(ctx context.Context, project string) ([]*alerts.AlertConfig, error) {
	return e.repo.ListAlerts(ctx, project)
}

// DeleteAlert removes an alert, its subscriptions and its secrets. Deleting
// a missing alert succeeds without doing anything.
func (e *Engine) DeleteAlert(ctx context.Context, project string, alertID int64) error {
	unlock := e.locks.Lock(alertID)
	defer unlock()

	existing, err := e.getProjectAlert(ctx, project, alertID)
	if errors.Is(err, alerts.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	e.unsubscribe(existing)
	e.deleteSecrets(ctx, project, existing.Notifications)
	if err := e.repo.DeleteAlert(ctx, alertID); err != nil {
		e.subscribe(existing)
		return err
	}

	slog.Info("Alert deleted",
		"alert_id", alertID,
		"alert_name", existing.Name,
		"project", project,
	)
	return nil
}

// DeleteProjectAlerts removes every alert of project and drops the project
// from the routing index.
func (e *Engine) DeleteProjectAlerts(ctx context.Context, project string) error {
	deleted, err := e.repo.DeleteProjectAlerts(ctx, project)
	if err != nil {
		return err
	}
	buckets := e.index.DropProject(project)
	for _, a := range deleted {
		e.deleteSecrets(ctx, project, a.Notifications)
	}

	slog.Info("Project alerts deleted",
		"project", project,
		"alerts", len(deleted),
		"buckets", buckets,
	)
	return nil
}

// bindIdentity fills project and name from the request path and rejects a
// body that names a different alert.
func bindIdentity(cfg *alerts.AlertConfig, project, name string) error {
	if cfg.Project == "" {
		cfg.Project = project
	}
	if cfg.Name == "" {
		cfg.Name = name
	}
	if cfg.Project != project {
		return fmt.Errorf("%w: alert project %q does not match %q", alerts.ErrBadRequest, cfg.Project, project)
	}
	if cfg.Name != name {
		return fmt.Errorf("%w: alert name %q does not match %q", alerts.ErrBadRequest, cfg.Name, name)
	}
	return nil
}

func (e *Engine) subscribe(a *alerts.AlertConfig) {
	for _, kind := range a.Trigger.Events {
		e.index.Subscribe(a.Project, kind, a.ID)
	}
}

func (e *Engine) unsubscribe(a *alerts.AlertConfig) {
	for _, kind := range a.Trigger.Events {
		e.index.Unsubscribe(a.Project, kind, a.ID)
	}
}

func secretRefs(notifications []alerts.Notification) map[string]bool {
	refs := make(map[string]bool)
	for _, n := range notifications {
		if ref, ok := secrets.SecretRef(n); ok {
			refs[ref] = true
		}
	}
	return refs
}

// unreferenced returns the masked notifications whose secret is not in keep.
func unreferenced(notifications []alerts.Notification, keep map[string]bool) []alerts.Notification {
	var out []alerts.Notification
	for _, n := range notifications {
		if ref, ok := secrets.SecretRef(n); ok && !keep[ref] {
			out = append(out, n)
		}
	}
	return out
}

// checkSecretRefs rejects masked notifications pointing at a secret the
// alert does not own.
func checkSecretRefs(notifications []alerts.Notification, owned map[string]bool) error {
	for _, n := range notifications {
		if ref, ok := secrets.SecretRef(n); ok && !owned[ref] {
			return fmt.Errorf("%w: notification %s references unknown secret %s", alerts.ErrBadRequest, n.Name, ref)
		}
	}
	return nil
}

// deleteSecrets removes notification secrets, logging failures.
func (e *Engine) deleteSecrets(ctx context.Context, project string, notifications []alerts.Notification) {
	for _, n := range notifications {
		if err := e.secrets.DeleteNotificationSecrets(ctx, project, n); err != nil {
			slog.Warn("Failed to delete notification secrets",
				"project", project,
				"notification", n.Name,
				"error", err,
			)
		}
	}
}
