package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afikmenashe/alert-engine/internal/alerts"
)

const testProject = "proj"

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	engine   *Engine
	repo     *fakeRepo
	notifier *fakeNotifier
	secrets  *fakeSecrets
	metrics  *fakeMetrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:     newFakeRepo(),
		notifier: &fakeNotifier{},
		secrets:  newFakeSecrets(),
		metrics:  newFakeMetrics(),
	}
	env.engine = New(env.repo, env.notifier, nil,
		WithSecrets(env.secrets),
		WithMetrics(env.metrics),
		WithClock(func() time.Time { return testNow }),
	)
	return env
}

func newAlert(name string, criteria *alerts.Criteria, policy alerts.ResetPolicy, events ...string) *alerts.AlertConfig {
	if len(events) == 0 {
		events = []string{"drift_detected"}
	}
	return &alerts.AlertConfig{
		Project:     testProject,
		Name:        name,
		Summary:     "Model {{ $project }}/{{ $entity }} is drifting.",
		Severity:    alerts.SeverityHigh,
		Entity:      alerts.Entity{Kind: alerts.EntityModel, Project: testProject, ID: alerts.WildcardEntityID},
		Trigger:     alerts.Trigger{Events: events},
		Criteria:    criteria,
		ResetPolicy: policy,
		Notifications: []alerts.Notification{
			{
				Kind:         alerts.NotificationSlack,
				Name:         "slack_drift",
				SecretParams: map[string]any{"webhook": "https://hooks.slack.com/services/x"},
			},
		},
	}
}

func (env *testEnv) create(t *testing.T, cfg *alerts.AlertConfig) *alerts.AlertConfig {
	t.Helper()
	created, err := env.engine.CreateAlert(context.Background(), cfg.Project, cfg.Name, cfg)
	require.NoError(t, err)
	return created
}

func driftEvent(entityID string) *alerts.Event {
	return &alerts.Event{
		Kind:   "drift_detected",
		Entity: alerts.Entity{Kind: alerts.EntityModel, Project: testProject, ID: entityID},
	}
}

func (env *testEnv) send(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, env.engine.HandleEvent(context.Background(), testProject, driftEvent("ep-1")))
	}
}

func TestNoCriteriaFiresOnFirstEvent(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, newAlert("drift", nil, alerts.ResetManual))

	env.send(t, 1)

	state := env.repo.state(a.ID)
	assert.True(t, state.Active)
	assert.Equal(t, 1, state.Count)
	require.NotNil(t, state.LastUpdated)
	assert.Equal(t, testNow, *state.LastUpdated)
	assert.Equal(t, 1, env.notifier.count())
	assert.Equal(t, 1, env.metrics.fired)
}

func TestCountCriteriaRequiresExactlyN(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, newAlert("drift", &alerts.Criteria{Count: 3}, alerts.ResetManual))

	env.send(t, 2)
	state := env.repo.state(a.ID)
	assert.False(t, state.Active, "alert must stay inactive after N-1 events")
	assert.Equal(t, 2, state.Count)
	assert.Nil(t, state.FullObject)
	assert.Equal(t, 0, env.notifier.count())

	env.send(t, 1)
	state = env.repo.state(a.ID)
	assert.True(t, state.Active)
	assert.Equal(t, 3, state.Count)
	assert.Equal(t, 1, env.notifier.count())
}

func TestActiveAlertIgnoresEvents(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, newAlert("drift", nil, alerts.ResetManual))

	env.send(t, 5)

	state := env.repo.state(a.ID)
	assert.True(t, state.Active)
	assert.Equal(t, 1, state.Count)
	assert.Equal(t, 1, env.notifier.count())
}

func TestAutoResetNeverStaysActive(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, newAlert("drift", &alerts.Criteria{Count: 2}, alerts.ResetAuto))

	env.send(t, 2)
	state := env.repo.state(a.ID)
	assert.False(t, state.Active)
	assert.Equal(t, 0, state.Count)
	assert.Nil(t, state.LastUpdated)
	assert.Equal(t, 1, env.notifier.count())

	env.send(t, 2)
	assert.False(t, env.repo.state(a.ID).Active)
	assert.Equal(t, 2, env.notifier.count())
}

func TestPeriodWindowExcludesAgedEntries(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, newAlert("drift", &alerts.Criteria{Count: 2, Period: "10m"}, alerts.ResetManual))

	env.repo.setState(&alerts.AlertState{
		AlertID: a.ID,
		Count:   2,
		FullObject: &alerts.StateObject{Events: []time.Time{
			testNow.Add(-time.Hour),
			testNow.Add(-30 * time.Minute),
		}},
	})

	env.send(t, 1)
	state := env.repo.state(a.ID)
	assert.False(t, state.Active, "aged entries must not count")
	assert.Equal(t, 1, state.Count)
	require.NotNil(t, state.FullObject)
	assert.Equal(t, []time.Time{testNow}, state.FullObject.Events)

	env.send(t, 1)
	state = env.repo.state(a.ID)
	assert.True(t, state.Active)
	assert.Equal(t, 2, state.Count)
	assert.Len(t, state.FullObject.Events, 2)
}

func TestPeriodWindowDropsFarFutureEntries(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, newAlert("drift", &alerts.Criteria{Count: 2, Period: "1m"}, alerts.ResetManual))

	env.repo.setState(&alerts.AlertState{
		AlertID:    a.ID,
		FullObject: &alerts.StateObject{Events: []time.Time{testNow.Add(time.Hour)}},
	})

	env.send(t, 1)
	state := env.repo.state(a.ID)
	assert.False(t, state.Active)
	assert.Equal(t, []time.Time{testNow}, state.FullObject.Events)
}

func TestEntityFilterMismatchIsNoop(t *testing.T) {
	env := newTestEnv(t)
	cfg := newAlert("drift", nil, alerts.ResetManual)
	cfg.Entity.ID = "ep-2"
	a := env.create(t, cfg)

	env.send(t, 1)

	state := env.repo.state(a.ID)
	assert.False(t, state.Active)
	assert.Equal(t, 0, state.Count)
	assert.Equal(t, 0, env.notifier.count())
}

func TestResetAlert(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.create(t, newAlert("drift", nil, alerts.ResetManual))
	env.send(t, 1)
	require.True(t, env.repo.state(a.ID).Active)

	require.NoError(t, env.engine.ResetAlert(ctx, testProject, a.ID))
	first := env.repo.state(a.ID)
	assert.Equal(t, &alerts.AlertState{AlertID: a.ID}, first)

	require.NoError(t, env.engine.ResetAlert(ctx, testProject, a.ID), "second reset must succeed")
	assert.Equal(t, first, env.repo.state(a.ID))
	assert.Equal(t, 2, env.metrics.custom[MetricAlertsReset])

	env.send(t, 1)
	assert.True(t, env.repo.state(a.ID).Active, "reset alert fires again")
	assert.Equal(t, 2, env.notifier.count())
}

func TestResetMissingAlertIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	err := env.engine.ResetAlert(context.Background(), testProject, 42)
	assert.True(t, errors.Is(err, alerts.ErrNotFound))

	a := env.create(t, newAlert("drift", nil, alerts.ResetManual))
	err = env.engine.ResetAlert(context.Background(), "other", a.ID)
	assert.True(t, errors.Is(err, alerts.ErrNotFound), "alert of another project")
}

func TestDriftScenario(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, newAlert("drift", nil, alerts.ResetManual))

	got, err := env.engine.GetAlert(context.Background(), testProject, a.ID)
	require.NoError(t, err)
	assert.Equal(t, alerts.StateInactive, got.State)

	env.send(t, 1)

	got, err = env.engine.GetAlert(context.Background(), testProject, a.ID)
	require.NoError(t, err)
	assert.Equal(t, alerts.StateActive, got.State)
	assert.Equal(t, 1, got.Count)
}

func TestHandleEventRejectsProjectMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, newAlert("drift", nil, alerts.ResetManual))

	ev := driftEvent("ep-1")
	ev.Entity.Project = "other"
	err := env.engine.HandleEvent(context.Background(), testProject, ev)

	assert.True(t, errors.Is(err, alerts.ErrBadRequest))
	assert.Equal(t, 0, env.repo.updates(), "rejected event must not reach any alert")
	assert.Equal(t, 1, env.metrics.custom[MetricEventsRejected])
}

func TestHandleEventRejectsDisallowedEntityKind(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, newAlert("drift", nil, alerts.ResetManual))

	ev := driftEvent("ep-1")
	ev.Entity.Kind = alerts.EntityJob
	err := env.engine.HandleEvent(context.Background(), testProject, ev)

	assert.True(t, errors.Is(err, alerts.ErrBadRequest))
	assert.Equal(t, 0, env.repo.updates())
}

func TestHandleEventUnroutedIsIgnored(t *testing.T) {
	env := newTestEnv(t)

	err := env.engine.HandleEvent(context.Background(), testProject, driftEvent("ep-1"))
	assert.NoError(t, err)
	assert.Equal(t, 1, env.metrics.custom[MetricEventsUnrouted])
	assert.Equal(t, 1, env.metrics.received)
}

func TestHandleEventStampsTimestamp(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, newAlert("drift", nil, alerts.ResetManual))

	ev := driftEvent("ep-1")
	ev.Timestamp = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, env.engine.HandleEvent(context.Background(), testProject, ev))

	assert.Equal(t, testNow, ev.Timestamp)
	require.Equal(t, 1, env.notifier.count())
	assert.Equal(t, testNow, env.notifier.pushes[0].event.Timestamp)
}

func TestHandleEventSkipsVanishedAlert(t *testing.T) {
	env := newTestEnv(t)
	env.engine.Index().Subscribe(testProject, "drift_detected", 99)
	a := env.create(t, newAlert("drift", nil, alerts.ResetManual))

	require.NoError(t, env.engine.HandleEvent(context.Background(), testProject, driftEvent("ep-1")))
	assert.True(t, env.repo.state(a.ID).Active)
	assert.Equal(t, 0, env.metrics.errors)
}

func TestHandleEventPropagatesStoreErrors(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, newAlert("drift", nil, alerts.ResetManual))
	env.repo.updateErr = errors.New("connection reset")

	err := env.engine.HandleEvent(context.Background(), testProject, driftEvent("ep-1"))
	assert.Error(t, err)
	assert.Equal(t, 1, env.metrics.errors)
	assert.Equal(t, 0, env.notifier.count())
}

func TestConcurrentEventsFireOnce(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, newAlert("drift", &alerts.Criteria{Count: 3}, alerts.ResetManual))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, env.engine.HandleEvent(context.Background(), testProject, driftEvent("ep-1")))
		}()
	}
	wg.Wait()

	state := env.repo.state(a.ID)
	assert.True(t, state.Active)
	assert.Equal(t, 3, state.Count)
	assert.Equal(t, 1, env.notifier.count())
	assert.Equal(t, 0, env.engine.locks.size(), "idle locks must be released")
}

func TestConcurrentEventsAcrossAlerts(t *testing.T) {
	env := newTestEnv(t)
	first := env.create(t, newAlert("first", &alerts.Criteria{Count: 100}, alerts.ResetManual))
	second := env.create(t, newAlert("second", &alerts.Criteria{Count: 100}, alerts.ResetManual))

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, env.engine.HandleEvent(context.Background(), testProject, driftEvent("ep-1")))
		}()
	}
	wg.Wait()

	assert.Equal(t, 40, env.repo.state(first.ID).Count)
	assert.Equal(t, 40, env.repo.state(second.ID).Count)
}
