// Package alerts defines the alert, notification, state and event types shared
// by the engine, the store and the HTTP layer.
package alerts

import (
	"fmt"
	"strings"
	"time"
)

// WildcardEntityID matches events from any entity.
const WildcardEntityID = "*"

// Alert state as exposed on enriched read models.
const (
	StateActive   = "active"
	StateInactive = "inactive"
)

// Severity of an alert.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// ResetPolicy controls what happens to an alert after it fires.
type ResetPolicy string

const (
	// ResetAuto clears the alert state right after firing.
	ResetAuto ResetPolicy = "auto"
	// ResetManual keeps the alert active until it is reset explicitly.
	ResetManual ResetPolicy = "manual"
)

// Valid reports whether p is a known reset policy.
func (p ResetPolicy) Valid() bool {
	return p == ResetAuto || p == ResetManual
}

// NotificationKind is the delivery channel of a notification.
type NotificationKind string

const (
	NotificationWebhook NotificationKind = "webhook"
	NotificationSlack   NotificationKind = "slack"
	NotificationGit     NotificationKind = "git"
)

// NotificationKinds lists every supported kind.
var NotificationKinds = []NotificationKind{NotificationWebhook, NotificationSlack, NotificationGit}

// ParseNotificationKind returns the kind named by s, or an ErrBadRequest
// wrapped error when the kind is not supported.
func ParseNotificationKind(s string) (NotificationKind, error) {
	switch k := NotificationKind(strings.ToLower(strings.TrimSpace(s))); k {
	case NotificationWebhook, NotificationSlack, NotificationGit:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unsupported notification kind %q", ErrBadRequest, s)
	}
}

// Entity identifies the originator of an event, or the filter of an alert.
type Entity struct {
	Kind    string `json:"kind"`
	Project string `json:"project"`
	ID      string `json:"id"`
}

// Trigger lists the event kinds an alert subscribes to.
type Trigger struct {
	Events []string `json:"events"`
}

// Criteria is the firing threshold of an alert. Period is a single-unit
// duration such as "10m"; an empty Period means a plain counter.
type Criteria struct {
	Count  int    `json:"count"`
	Period string `json:"period,omitempty"`
}

// Notification is one delivery target of an alert.
type Notification struct {
	Kind         NotificationKind `json:"kind"`
	Name         string           `json:"name"`
	Message      string           `json:"message,omitempty"`
	Severity     string           `json:"severity,omitempty"`
	Condition    string           `json:"condition,omitempty"`
	Params       map[string]any   `json:"params,omitempty"`
	SecretParams map[string]any   `json:"secret_params,omitempty"`
}

// Param returns a parameter from Params, falling back to SecretParams.
func (n Notification) Param(key string) (any, bool) {
	if v, ok := n.Params[key]; ok && v != nil && v != "" {
		return v, true
	}
	if v, ok := n.SecretParams[key]; ok && v != nil && v != "" {
		return v, true
	}
	return nil, false
}

// SecretRefParam is the only secret_params key of a masked notification.
const SecretRefParam = "secret"

// SecretRef returns the stored secret a masked notification points to.
func (n Notification) SecretRef() (string, bool) {
	if len(n.SecretParams) != 1 {
		return "", false
	}
	ref, ok := n.SecretParams[SecretRefParam].(string)
	return ref, ok && ref != ""
}

// AlertConfig is an alert definition.
// State and Count are only populated on enriched read models.
type AlertConfig struct {
	ID            int64          `json:"id"`
	Project       string         `json:"project"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Summary       string         `json:"summary"`
	Severity      Severity       `json:"severity"`
	Entity        Entity         `json:"entity"`
	Trigger       Trigger        `json:"trigger"`
	Criteria      *Criteria      `json:"criteria,omitempty"`
	ResetPolicy   ResetPolicy    `json:"reset_policy"`
	Notifications []Notification `json:"notifications"`
	State         string         `json:"state,omitempty"`
	Count         int            `json:"count"`
	Created       time.Time      `json:"created"`
	Updated       time.Time      `json:"updated"`
}

// Normalize fills defaults and removes duplicate trigger events, keeping the
// first occurrence of each kind.
func (a *AlertConfig) Normalize() {
	if a.ResetPolicy == "" {
		a.ResetPolicy = ResetManual
	}
	a.Severity = Severity(strings.ToLower(string(a.Severity)))

	seen := make(map[string]bool, len(a.Trigger.Events))
	events := make([]string, 0, len(a.Trigger.Events))
	for _, kind := range a.Trigger.Events {
		kind = strings.TrimSpace(kind)
		if kind == "" || seen[kind] {
			continue
		}
		seen[kind] = true
		events = append(events, kind)
	}
	a.Trigger.Events = events

	for i := range a.Notifications {
		if k, err := ParseNotificationKind(string(a.Notifications[i].Kind)); err == nil {
			a.Notifications[i].Kind = k
		}
	}
}

// MatchesEntity reports whether the alert's entity filter accepts id.
func (a *AlertConfig) MatchesEntity(id string) bool {
	return a.Entity.ID == WildcardEntityID || a.Entity.ID == id
}

// Enrich copies the state fields onto the read model.
func (a *AlertConfig) Enrich(state *AlertState) {
	if state == nil {
		a.State = StateInactive
		a.Count = 0
		return
	}
	a.Count = state.Count
	if state.Active {
		a.State = StateActive
	} else {
		a.State = StateInactive
	}
}

// StateObject is the rolling window persisted with a period-based alert.
type StateObject struct {
	Events []time.Time `json:"events"`
}

// AlertState is the trigger state of one alert.
type AlertState struct {
	AlertID     int64        `json:"alert_id"`
	Count       int          `json:"count"`
	Active      bool         `json:"active"`
	LastUpdated *time.Time   `json:"last_updated,omitempty"`
	FullObject  *StateObject `json:"full_object,omitempty"`
}

// Reset returns the state to inactive with every field cleared.
func (s *AlertState) Reset() {
	s.Count = 0
	s.Active = false
	s.LastUpdated = nil
	s.FullObject = nil
}

// Event is an inbound domain event. It is never persisted.
type Event struct {
	Kind      string    `json:"kind"`
	Entity    Entity    `json:"entity"`
	Timestamp time.Time `json:"timestamp"`
	Value     any       `json:"value,omitempty"`
}
