package engine

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/afikmenashe/alert-engine/internal/alerts"
)

// fakeRepo is an in-memory Repository. UpdateAlertState releases the store
// lock between read and write so unserialized callers would race.
type fakeRepo struct {
	mu      sync.Mutex
	nextID  int64
	alertsM map[int64]*alerts.AlertConfig
	states  map[int64]*alerts.AlertState

	updateCalls int
	updateErr   error
	createErr   error
	storeErr    error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		alertsM: make(map[int64]*alerts.AlertConfig),
		states:  make(map[int64]*alerts.AlertState),
	}
}

func copyAlert(a *alerts.AlertConfig) *alerts.AlertConfig {
	c := *a
	c.Trigger.Events = append([]string(nil), a.Trigger.Events...)
	c.Notifications = append([]alerts.Notification(nil), a.Notifications...)
	if a.Criteria != nil {
		crit := *a.Criteria
		c.Criteria = &crit
	}
	return &c
}

func copyState(s *alerts.AlertState) *alerts.AlertState {
	c := *s
	if s.FullObject != nil {
		c.FullObject = &alerts.StateObject{Events: append([]time.Time(nil), s.FullObject.Events...)}
	}
	return &c
}

func (r *fakeRepo) GetAlert(_ context.Context, project, name string) (*alerts.AlertConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.alertsM {
		if a.Project == project && a.Name == name {
			return copyAlert(a), nil
		}
	}
	return nil, fmt.Errorf("%w: alert %s", alerts.ErrNotFound, name)
}

func (r *fakeRepo) GetAlertByID(_ context.Context, id int64) (*alerts.AlertConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alertsM[id]
	if !ok {
		return nil, fmt.Errorf("%w: alert %d", alerts.ErrNotFound, id)
	}
	return copyAlert(a), nil
}

func (r *fakeRepo) CreateAlert(_ context.Context, a *alerts.AlertConfig) (*alerts.AlertConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.nextID++
	c := copyAlert(a)
	c.ID = r.nextID
	r.alertsM[c.ID] = c
	r.states[c.ID] = &alerts.AlertState{AlertID: c.ID}
	return copyAlert(c), nil
}

func (r *fakeRepo) StoreAlert(_ context.Context, a *alerts.AlertConfig) (*alerts.AlertConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.storeErr != nil {
		return nil, r.storeErr
	}
	if _, ok := r.alertsM[a.ID]; !ok {
		return nil, fmt.Errorf("%w: alert %d", alerts.ErrNotFound, a.ID)
	}
	c := copyAlert(a)
	r.alertsM[a.ID] = c
	return copyAlert(c), nil
}

func (r *fakeRepo) DeleteAlert(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.alertsM, id)
	delete(r.states, id)
	return nil
}

func (r *fakeRepo) DeleteProjectAlerts(_ context.Context, project string) ([]*alerts.AlertConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted []*alerts.AlertConfig
	for id, a := range r.alertsM {
		if a.Project == project {
			deleted = append(deleted, a)
			delete(r.alertsM, id)
			delete(r.states, id)
		}
	}
	return deleted, nil
}

func (r *fakeRepo) ListAlerts(_ context.Context, project string) ([]*alerts.AlertConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*alerts.AlertConfig
	for _, a := range r.alertsM {
		if a.Project == project {
			c := copyAlert(a)
			c.Enrich(r.states[a.ID])
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRepo) ListAllAlerts(_ context.Context) ([]*alerts.AlertConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*alerts.AlertConfig
	for _, a := range r.alertsM {
		out = append(out, copyAlert(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRepo) GetAlertState(_ context.Context, id int64) (*alerts.AlertState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[id]
	if !ok {
		return nil, fmt.Errorf("%w: state of alert %d", alerts.ErrNotFound, id)
	}
	return copyState(s), nil
}

func (r *fakeRepo) StoreAlertState(_ context.Context, s *alerts.AlertState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[s.AlertID]; !ok {
		return fmt.Errorf("%w: state of alert %d", alerts.ErrNotFound, s.AlertID)
	}
	r.states[s.AlertID] = copyState(s)
	return nil
}

func (r *fakeRepo) UpdateAlertState(ctx context.Context, id int64, fn func(*alerts.AlertState) (bool, error)) error {
	r.mu.Lock()
	r.updateCalls++
	if r.updateErr != nil {
		r.mu.Unlock()
		return r.updateErr
	}
	s, ok := r.states[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: state of alert %d", alerts.ErrNotFound, id)
	}
	working := copyState(s)
	r.mu.Unlock()

	runtime.Gosched()
	changed, err := fn(working)
	if err != nil || !changed {
		return err
	}
	runtime.Gosched()

	return r.StoreAlertState(ctx, working)
}

func (r *fakeRepo) EnrichAlert(_ context.Context, a *alerts.AlertConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.Enrich(r.states[a.ID])
	return nil
}

func (r *fakeRepo) state(id int64) *alerts.AlertState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyState(r.states[id])
}

func (r *fakeRepo) setState(s *alerts.AlertState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[s.AlertID] = copyState(s)
}

func (r *fakeRepo) updates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateCalls
}

type pushed struct {
	alert *alerts.AlertConfig
	event *alerts.Event
}

// fakeNotifier records pushes.
type fakeNotifier struct {
	mu     sync.Mutex
	pushes []pushed
}

func (n *fakeNotifier) Push(_ context.Context, a *alerts.AlertConfig, e *alerts.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushes = append(n.pushes, pushed{alert: a, event: e})
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pushes)
}

// fakeSecrets records masked and deleted notifications. Like the Redis
// store it leaves masked notifications alone and never reuses a key.
type fakeSecrets struct {
	mu      sync.Mutex
	seq     int
	stored  map[string]map[string]any
	deleted []string
	maskErr error
}

func newFakeSecrets() *fakeSecrets {
	return &fakeSecrets{stored: make(map[string]map[string]any)}
}

func (s *fakeSecrets) MaskAndStoreNotificationSecrets(_ context.Context, ns []alerts.Notification, entityID, project string) ([]alerts.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maskErr != nil {
		return nil, s.maskErr
	}
	out := make([]alerts.Notification, len(ns))
	for i, n := range ns {
		if _, masked := n.SecretParams["secret"].(string); masked && len(n.SecretParams) == 1 {
			out[i] = n
			continue
		}
		if len(n.SecretParams) > 0 {
			s.seq++
			key := fmt.Sprintf("%s/%s/%s/%d", project, entityID, n.Name, s.seq)
			s.stored[key] = n.SecretParams
			n.SecretParams = map[string]any{"secret": key}
		}
		out[i] = n
	}
	return out, nil
}

func (s *fakeSecrets) DeleteNotificationSecrets(_ context.Context, project string, n alerts.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key, ok := n.SecretParams["secret"].(string); ok {
		delete(s.stored, key)
		s.deleted = append(s.deleted, key)
	}
	return nil
}

// fakeMetrics counts metric calls.
type fakeMetrics struct {
	mu       sync.Mutex
	received int
	fired    int
	errors   int
	custom   map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{custom: make(map[string]int)}
}

func (m *fakeMetrics) RecordReceived() {
	m.mu.Lock()
	m.received++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordProcessed(time.Duration) {}

func (m *fakeMetrics) RecordFired() {
	m.mu.Lock()
	m.fired++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordError() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

func (m *fakeMetrics) IncrementCustom(name string) {
	m.mu.Lock()
	m.custom[name]++
	m.mu.Unlock()
}
