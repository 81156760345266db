package notifier

import (
	"strings"
	"testing"
	"time"

	"github.com/afikmenashe/alert-engine/internal/alerts"
)

func testAlert() *alerts.AlertConfig {
	return &alerts.AlertConfig{
		ID:       7,
		Project:  "proj",
		Name:     "drift",
		Severity: alerts.SeverityHigh,
		Summary:  "Drift on {{ $entity }} in {{$project}}",
		Entity:   alerts.Entity{Kind: alerts.EntityModelEndpointResult, Project: "proj", ID: "*"},
	}
}

func testEvent() *alerts.Event {
	return &alerts.Event{
		Kind:      "data_drift_detected",
		Entity:    alerts.Entity{Kind: alerts.EntityModelEndpointResult, Project: "proj", ID: "ep-1"},
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Value:     0.9,
	}
}

func TestRenderSummary(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{name: "no placeholders", tmpl: "plain text", want: "plain text"},
		{name: "spaced", tmpl: "{{ $project }}/{{ $name }}", want: "proj/drift"},
		{name: "compact", tmpl: "{{$event}} on {{$entity}}", want: "data_drift_detected on ep-1"},
		{name: "entity kind and severity", tmpl: "{{ $entity_kind }} {{ $severity }}", want: "model-endpoint-result high"},
		{name: "unknown left alone", tmpl: "{{ $other }}", want: "{{ $other }}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderSummary(tt.tmpl, testAlert(), testEvent())
			if got != tt.want {
				t.Errorf("RenderSummary(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}

func TestBuildMessage(t *testing.T) {
	alert := testAlert()
	event := testEvent()

	msg := BuildMessage(alert, alerts.Notification{Name: "n1"}, event)
	if msg.Severity != "high" {
		t.Errorf("Severity = %q, want alert severity high", msg.Severity)
	}
	if msg.Summary != "Drift on ep-1 in proj" || msg.Text != msg.Summary {
		t.Errorf("Summary = %q, Text = %q", msg.Summary, msg.Text)
	}

	msg = BuildMessage(alert, alerts.Notification{Name: "n2", Severity: "low", Message: "check {{ $name }}"}, event)
	if msg.Severity != "low" {
		t.Errorf("Severity = %q, want notification severity low", msg.Severity)
	}
	if msg.Text != "check drift" {
		t.Errorf("Text = %q, want %q", msg.Text, "check drift")
	}
	if msg.AlertID != 7 || msg.Notification != "n2" || msg.EventKind != "data_drift_detected" {
		t.Errorf("BuildMessage() = %+v", msg)
	}
}

func TestBuildSlackPayload(t *testing.T) {
	p := BuildSlackPayload(BuildMessage(testAlert(), alerts.Notification{Name: "slack"}, testEvent()))

	if len(p.Attachments) != 1 {
		t.Fatalf("Attachments = %d, want 1", len(p.Attachments))
	}
	a := p.Attachments[0]
	if a.Color != "danger" {
		t.Errorf("Color = %q, want danger", a.Color)
	}
	if len(a.Fields) != 5 {
		t.Errorf("Fields = %d, want 5 with value", len(a.Fields))
	}
	if a.Timestamp != testEvent().Timestamp.Unix() {
		t.Errorf("Timestamp = %d", a.Timestamp)
	}
}

func TestSeverityColor(t *testing.T) {
	for severity, want := range map[string]string{"high": "danger", "MEDIUM": "warning", "low": "good", "": "good"} {
		if got := severityColor(severity); got != want {
			t.Errorf("severityColor(%q) = %q, want %q", severity, got, want)
		}
	}
}

func TestBuildGitComment(t *testing.T) {
	body := BuildGitComment(BuildMessage(testAlert(), alerts.Notification{Name: "git"}, testEvent()))

	for _, want := range []string{"### Alert drift (high)", "Drift on ep-1 in proj", "`model-endpoint-result/ep-1`", "2026-01-02T03:04:05Z"} {
		if !strings.Contains(body, want) {
			t.Errorf("BuildGitComment() missing %q in:\n%s", want, body)
		}
	}
}
