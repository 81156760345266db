package notifier

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/afikmenashe/alert-engine/internal/alerts"
)

// Message is the channel-independent content of one notification.
type Message struct {
	AlertID      int64
	AlertName    string
	Project      string
	Severity     string
	Summary      string
	Text         string
	Notification string
	EventKind    string
	Entity       alerts.Entity
	Value        any
	Timestamp    time.Time
}

var placeholder = regexp.MustCompile(`\{\{\s*\$([a-z_]+)\s*\}\}`)

// RenderSummary substitutes {{ $project }}, {{ $name }}, {{ $entity }},
// {{ $entity_kind }}, {{ $event }} and {{ $severity }} in tmpl. Unknown
// placeholders are left as they are.
func RenderSummary(tmpl string, alert *alerts.AlertConfig, event *alerts.Event) string {
	values := map[string]string{
		"project":     alert.Project,
		"name":        alert.Name,
		"severity":    string(alert.Severity),
		"entity":      event.Entity.ID,
		"entity_kind": event.Entity.Kind,
		"event":       event.Kind,
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		if v, ok := values[key]; ok {
			return v
		}
		return m
	})
}

// BuildMessage builds the message for one notification of a fired alert.
func BuildMessage(alert *alerts.AlertConfig, n alerts.Notification, event *alerts.Event) *Message {
	severity := n.Severity
	if severity == "" {
		severity = string(alert.Severity)
	}
	summary := RenderSummary(alert.Summary, alert, event)
	text := summary
	if n.Message != "" {
		text = RenderSummary(n.Message, alert, event)
	}
	return &Message{
		AlertID:      alert.ID,
		AlertName:    alert.Name,
		Project:      alert.Project,
		Severity:     severity,
		Summary:      summary,
		Text:         text,
		Notification: n.Name,
		EventKind:    event.Kind,
		Entity:       event.Entity,
		Value:        event.Value,
		Timestamp:    event.Timestamp,
	}
}

// SlackPayload represents a Slack webhook payload.
type SlackPayload struct {
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a Slack message attachment.
type Attachment struct {
	Color     string  `json:"color,omitempty"`
	Title     string  `json:"title,omitempty"`
	Text      string  `json:"text,omitempty"`
	Fields    []Field `json:"fields,omitempty"`
	Timestamp int64   `json:"ts,omitempty"`
}

// Field represents a field in a Slack attachment.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// BuildSlackPayload builds a Slack webhook payload from the message.
func BuildSlackPayload(msg *Message) SlackPayload {
	fields := []Field{
		{Title: "Project", Value: msg.Project, Short: true},
		{Title: "Severity", Value: msg.Severity, Short: true},
		{Title: "Event", Value: msg.EventKind, Short: true},
		{Title: "Entity", Value: fmt.Sprintf("%s/%s", msg.Entity.Kind, msg.Entity.ID), Short: true},
	}
	if msg.Value != nil {
		fields = append(fields, Field{Title: "Value", Value: fmt.Sprint(msg.Value), Short: false})
	}

	return SlackPayload{
		Text: msg.Text,
		Attachments: []Attachment{
			{
				Color:     severityColor(msg.Severity),
				Title:     fmt.Sprintf("Alert: %s - %s", msg.Severity, msg.AlertName),
				Text:      msg.Summary,
				Fields:    fields,
				Timestamp: msg.Timestamp.Unix(),
			},
		},
	}
}

// severityColor returns the Slack color for a given severity.
func severityColor(severity string) string {
	switch strings.ToLower(severity) {
	case "high":
		return "danger"
	case "medium":
		return "warning"
	default:
		return "good"
	}
}

// WebhookPayload is the JSON body posted to webhook notifications.
type WebhookPayload struct {
	AlertID      int64        `json:"alert_id"`
	AlertName    string       `json:"alert_name"`
	Project      string       `json:"project"`
	Severity     string       `json:"severity"`
	Summary      string       `json:"summary"`
	Message      string       `json:"message"`
	Notification string       `json:"notification"`
	Event        WebhookEvent `json:"event"`
	Timestamp    string       `json:"timestamp"`
}

// WebhookEvent is the event part of a webhook payload.
type WebhookEvent struct {
	Kind      string        `json:"kind"`
	Entity    alerts.Entity `json:"entity"`
	Value     any           `json:"value,omitempty"`
	Timestamp string        `json:"timestamp"`
}

// BuildWebhookPayload builds a webhook payload from the message.
func BuildWebhookPayload(msg *Message) WebhookPayload {
	return WebhookPayload{
		AlertID:      msg.AlertID,
		AlertName:    msg.AlertName,
		Project:      msg.Project,
		Severity:     msg.Severity,
		Summary:      msg.Summary,
		Message:      msg.Text,
		Notification: msg.Notification,
		Event: WebhookEvent{
			Kind:      msg.EventKind,
			Entity:    msg.Entity,
			Value:     msg.Value,
			Timestamp: msg.Timestamp.UTC().Format(time.RFC3339),
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// BuildGitComment builds the markdown body of an issue or merge request comment.
func BuildGitComment(msg *Message) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("### Alert %s (%s)\n\n", msg.AlertName, msg.Severity))
	sb.WriteString(msg.Text)
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("- Project: `%s`\n", msg.Project))
	sb.WriteString(fmt.Sprintf("- Event: `%s`\n", msg.EventKind))
	sb.WriteString(fmt.Sprintf("- Entity: `%s/%s`\n", msg.Entity.Kind, msg.Entity.ID))
	if msg.Value != nil {
		sb.WriteString(fmt.Sprintf("- Value: `%v`\n", msg.Value))
	}
	sb.WriteString(fmt.Sprintf("- Time: %s\n", msg.Timestamp.UTC().Format(time.RFC3339)))
	return sb.String()
}
