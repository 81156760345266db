package generator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afikmenashe/alert-engine/internal/alerts"
	"github.com/afikmenashe/alert-engine/internal/consumer"
	"github.com/afikmenashe/alert-engine/internal/validation"
)

func TestParseDistribution(t *testing.T) {
	tests := []struct {
		name    string
		dist    string
		want    map[string]int
		wantErr bool
	}{
		{name: "valid", dist: "failed:40, data_drift_detected:60", want: map[string]int{"failed": 40, "data_drift_detected": 60}},
		{name: "trailing comma", dist: "failed:100,", want: map[string]int{"failed": 100}},
		{name: "empty", dist: "", wantErr: true},
		{name: "missing weight", dist: "failed", wantErr: true},
		{name: "not a number", dist: "failed:x", wantErr: true},
		{name: "out of range", dist: "failed:101", wantErr: true},
		{name: "does not sum to 100", dist: "failed:50", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDistribution(tt.dist)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Config{KindDist: "failed:100"})
	assert.Error(t, err, "no projects")

	_, err = New(Config{Projects: []string{"p1"}, KindDist: "failed:10"})
	assert.Error(t, err, "bad distribution")
}

func TestGenerate_ValidEvents(t *testing.T) {
	gen, err := New(Config{Projects: []string{"p1", "p2"}, KindDist: DefaultKindDist, EntityPool: 3, Seed: 42})
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		e := gen.Generate()
		require.NoError(t, validation.ValidateEvent(e.Project, e.Event()), "event %+v", e)
		assert.Equal(t, e.Project, e.Entity.Project)
		assert.Contains(t, []string{"p1", "p2"}, e.Project)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	cfg := Config{Projects: []string{"p1", "p2"}, KindDist: DefaultKindDist, EntityPool: 10, Seed: 7}
	a, err := New(cfg)
	require.NoError(t, err)
	b, err := New(cfg)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Generate(), b.Generate())
	}
}

func TestGenerate_SingleKind(t *testing.T) {
	gen, err := New(Config{Projects: []string{"p1"}, KindDist: "failed:100", Seed: 1})
	require.NoError(t, err)

	e := gen.Generate()
	assert.Equal(t, "failed", e.Kind)
	assert.Equal(t, alerts.EntityJob, e.Entity.Kind)
	assert.Equal(t, "job-0", e.Entity.ID)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, topic: "events.new"}

	event := &consumer.EventMessage{
		Project: "p1",
		Kind:    "failed",
		Entity:  alerts.Entity{Kind: alerts.EntityJob, Project: "p1", ID: "job-1"},
	}
	require.NoError(t, p.Publish(context.Background(), event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "p1", string(msg.Key))
	var decoded consumer.EventMessage
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, *event, decoded)

	w.err = errors.New("broker down")
	assert.Error(t, p.Publish(context.Background(), event))
}

type countingPublisher struct {
	n   int
	err error
}

func (p *countingPublisher) Publish(context.Context, *consumer.EventMessage) error {
	if p.err != nil {
		return p.err
	}
	p.n++
	return nil
}

func (p *countingPublisher) Close() error { return nil }

func newTestRunner(t *testing.T, pub EventPublisher) *Runner {
	t.Helper()
	gen, err := New(Config{Projects: []string{"p1"}, KindDist: DefaultKindDist, Seed: 3})
	require.NoError(t, err)
	return NewRunner(gen, pub)
}

func TestRunner_Burst(t *testing.T) {
	pub := &countingPublisher{}
	r := newTestRunner(t, pub)

	require.NoError(t, r.Burst(context.Background(), 25))
	assert.Equal(t, 25, pub.n)
	assert.Equal(t, 25, r.Sent())
}

func TestRunner_BurstPublishError(t *testing.T) {
	r := newTestRunner(t, &countingPublisher{err: errors.New("broker down")})
	assert.Error(t, r.Burst(context.Background(), 5))
	assert.Equal(t, 0, r.Sent())
}

func TestRunner_BurstCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newTestRunner(t, &countingPublisher{})
	assert.ErrorIs(t, r.Burst(ctx, 5), context.Canceled)
}

func TestRunner_Continuous(t *testing.T) {
	pub := &countingPublisher{}
	r := newTestRunner(t, pub)

	require.NoError(t, r.Continuous(context.Background(), 200, 100*time.Millisecond))
	assert.Greater(t, pub.n, 0)

	assert.Error(t, r.Continuous(context.Background(), 0, time.Second))
}
