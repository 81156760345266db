// Package validation checks alert definitions and events before they reach
// the store or the router.
package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/afikmenashe/alert-engine/internal/alerts"
)

var periodUnits = map[byte]time.Duration{
	'd': 24 * time.Hour,
	'h': time.Hour,
	'm': time.Minute,
	's': time.Second,
}

// ParsePeriod parses a single-unit period such as "10m" or "2d".
// Composite durations, zero and negative values are rejected.
func ParsePeriod(period string) (time.Duration, error) {
	p := strings.ToLower(strings.TrimSpace(period))
	if len(p) < 2 {
		return 0, fmt.Errorf("%w: invalid period %q", alerts.ErrBadRequest, period)
	}

	unit, ok := periodUnits[p[len(p)-1]]
	if !ok {
		return 0, fmt.Errorf("%w: invalid period %q", alerts.ErrBadRequest, period)
	}

	n, err := strconv.ParseInt(strings.TrimSpace(p[:len(p)-1]), 10, 64)
	if err != nil || n <= 0 || n > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("%w: invalid period %q", alerts.ErrBadRequest, period)
	}
	return time.Duration(n) * unit, nil
}

// ValidateAlert checks the structure of an alert definition. It does not
// touch the store; existence and rename checks are done by the caller.
func ValidateAlert(a *alerts.AlertConfig) error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: alert name is required", alerts.ErrValidation)
	}
	if strings.TrimSpace(a.Project) == "" {
		return fmt.Errorf("%w: project is required for alert %s", alerts.ErrValidation, a.Name)
	}
	if a.Entity.Kind == "" {
		return fmt.Errorf("%w: entity kind is required for alert %s", alerts.ErrValidation, a.Name)
	}
	if a.Entity.ID == "" {
		return fmt.Errorf("%w: entity id is required for alert %s", alerts.ErrValidation, a.Name)
	}
	if a.Entity.Project != a.Project {
		return fmt.Errorf("%w: invalid entity filter for alert %s: entity project %q does not match %q",
			alerts.ErrBadRequest, a.Name, a.Entity.Project, a.Project)
	}
	if len(a.Trigger.Events) == 0 {
		return fmt.Errorf("%w: at least one trigger event is required for alert %s", alerts.ErrValidation, a.Name)
	}
	if !a.Severity.Valid() {
		return fmt.Errorf("%w: invalid severity %q for alert %s", alerts.ErrValidation, a.Severity, a.Name)
	}
	if !a.ResetPolicy.Valid() {
		return fmt.Errorf("%w: invalid reset policy %q for alert %s", alerts.ErrValidation, a.ResetPolicy, a.Name)
	}

	if c := a.Criteria; c != nil {
		if c.Count < 0 {
			return fmt.Errorf("%w: criteria count must not be negative for alert %s", alerts.ErrValidation, a.Name)
		}
		if c.Period != "" {
			if _, err := ParsePeriod(c.Period); err != nil {
				return fmt.Errorf("alert %s in project %s: %w", a.Name, a.Project, err)
			}
		}
	}

	return ValidateNotifications(a.Notifications)
}

// ValidateNotifications checks kinds, names and per-kind parameters.
func ValidateNotifications(notifications []alerts.Notification) error {
	names := make(map[string]struct{}, len(notifications))
	for _, n := range notifications {
		if n.Name == "" {
			return fmt.Errorf("%w: notification name is required", alerts.ErrValidation)
		}
		if _, dup := names[n.Name]; dup {
			return fmt.Errorf("%w: duplicate notification name %q", alerts.ErrValidation, n.Name)
		}
		names[n.Name] = struct{}{}

		kind, err := alerts.ParseNotificationKind(string(n.Kind))
		if err != nil {
			return err
		}
		if err := validateParams(kind, n); err != nil {
			return err
		}
	}
	return nil
}

func validateParams(kind alerts.NotificationKind, n alerts.Notification) error {
	// A masked notification keeps its secret params in the secret store, so
	// anything missing from Params may be there.
	_, masked := n.SecretRef()
	has := func(key string) bool {
		_, ok := n.Param(key)
		return ok || masked
	}

	switch kind {
	case alerts.NotificationWebhook:
		if !has("url") {
			return fmt.Errorf("%w: webhook notification %s requires url", alerts.ErrValidation, n.Name)
		}
	case alerts.NotificationSlack:
		if !has("webhook") {
			return fmt.Errorf("%w: slack notification %s requires webhook", alerts.ErrValidation, n.Name)
		}
	case alerts.NotificationGit:
		if !has("repo") {
			return fmt.Errorf("%w: git notification %s requires repo", alerts.ErrValidation, n.Name)
		}
		if !has("issue") && !has("merge_request") {
			return fmt.Errorf("%w: git notification %s requires issue or merge_request", alerts.ErrValidation, n.Name)
		}
	default:
		return fmt.Errorf("%w: unsupported notification kind %q", alerts.ErrBadRequest, kind)
	}
	return nil
}

// ValidateRename rejects updates that change the alert name.
func ValidateRename(existing, updated *alerts.AlertConfig) error {
	if existing.Name != updated.Name {
		return fmt.Errorf("%w: alert name change not allowed for alert %s in project %s",
			alerts.ErrBadRequest, existing.Name, existing.Project)
	}
	return nil
}

// ValidateEvent checks that an event may be delivered to project.
func ValidateEvent(project string, e *alerts.Event) error {
	if e.Kind == "" {
		return fmt.Errorf("%w: event kind is required", alerts.ErrBadRequest)
	}
	if e.Entity.Kind == "" {
		return fmt.Errorf("%w: invalid event %s: entity kind is required", alerts.ErrBadRequest, e.Kind)
	}
	if e.Entity.Project != project {
		return fmt.Errorf("%w: invalid event %s: entity project %q does not match %q",
			alerts.ErrBadRequest, e.Kind, e.Entity.Project, project)
	}
	if !alerts.EntityKindAllowed(e.Kind, e.Entity.Kind) {
		return fmt.Errorf("%w: invalid event %s: entity kind %q cannot emit it",
			alerts.ErrBadRequest, e.Kind, e.Entity.Kind)
	}
	return nil
}
