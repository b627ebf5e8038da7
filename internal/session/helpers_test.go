package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/live_polling_system/internal/event"
	"github.com/Guizzs26/live_polling_system/internal/metrics"
	"github.com/Guizzs26/live_polling_system/internal/model"
	"github.com/Guizzs26/live_polling_system/internal/pubsub"
	"github.com/Guizzs26/live_polling_system/internal/store"
)

var connSeq atomic.Int64

type fakeConn struct {
	id          string
	participant string
	role        model.Role

	mu     sync.Mutex
	msgs   []pubsub.Envelope
	closed bool
}

func newConn(participant string, role model.Role) *fakeConn {
	return &fakeConn{
		id:          fmt.Sprintf("%s-%d", participant, connSeq.Add(1)),
		participant: participant,
		role:        role,
	}
}

func (f *fakeConn) ID() string            { return f.id }
func (f *fakeConn) ParticipantID() string { return f.participant }
func (f *fakeConn) Role() model.Role      { return f.role }

func (f *fakeConn) Send(msg []byte) bool {
	env, err := pubsub.Decode(msg)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.msgs = append(f.msgs, env)
	return true
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, m.Type)
	}
	return out
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = nil
}

// last decodes the payload of the most recent event of type eventType.
func (f *fakeConn) last(t *testing.T, eventType string, into any) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.msgs) - 1; i >= 0; i-- {
		if f.msgs[i].Type == eventType {
			require.NoError(t, json.Unmarshal(f.msgs[i].Payload, into))
			return
		}
	}
	t.Fatalf("no %s event received, got %v", eventType, f.typesLocked())
}

func (f *fakeConn) typesLocked() []string {
	out := make([]string, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, m.Type)
	}
	return out
}

// flakyStore fails persistence calls while failing is set.
type flakyStore struct {
	*store.MemoryStore
	failing atomic.Bool
}

var errDown = errors.New("database down")

func (s *flakyStore) CreatePoll(ctx context.Context, rec model.PollRecord) (string, error) {
	if s.failing.Load() {
		return "", errDown
	}
	return s.MemoryStore.CreatePoll(ctx, rec)
}

func (s *flakyStore) MarkShared(ctx context.Context, groupID, id string) error {
	if s.failing.Load() {
		return errDown
	}
	return s.MemoryStore.MarkShared(ctx, groupID, id)
}

// recordingPublisher keeps every event. delay makes each publish slow, as
// a lagging Kafka broker would.
type recordingPublisher struct {
	delay time.Duration

	mu     sync.Mutex
	events []event.PollEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, ev event.PollEvent) error {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []event.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Type, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func (p *recordingPublisher) count(t event.Type) int {
	n := 0
	for _, got := range p.types() {
		if got == t {
			n++
		}
	}
	return n
}

type fixture struct {
	mgr     *Manager
	store   *flakyStore
	live    *store.MemoryLiveStore
	pub     *recordingPublisher
	metrics *metrics.SessionMetrics
	group   model.Group
}

func newFixture(t *testing.T, opts ...func(*Deps)) *fixture {
	t.Helper()
	st := &flakyStore{MemoryStore: store.NewMemoryStore()}
	g, err := st.CreateGroup(context.Background(), model.Group{Code: "PHY101", Name: "Physics"})
	require.NoError(t, err)

	f := &fixture{
		store:   st,
		live:    store.NewMemoryLiveStore(),
		pub:     &recordingPublisher{},
		metrics: metrics.NewSessionMetrics(prometheus.NewRegistry(), "test"),
		group:   g,
	}
	deps := Deps{
		Store:          st,
		Live:           f.live,
		Publisher:      f.pub,
		Metrics:        f.metrics,
		PersistTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.mgr = NewManager(deps)
	return f
}

func (f *fixture) join(t *testing.T, participant string, role model.Role) (*Session, *fakeConn) {
	t.Helper()
	c := newConn(participant, role)
	s, err := f.mgr.Join(context.Background(), f.group, c)
	require.NoError(t, err)
	return s, c
}

func (f *fixture) start(t *testing.T, s *Session, admin *fakeConn, spec model.StartSpec) string {
	t.Helper()
	require.NoError(t, s.StartPoll(context.Background(), admin, spec))
	v, err := s.CurrentPollView(context.Background(), "", model.RoleAdmin)
	require.NoError(t, err)
	require.NotNil(t, v)
	return v.ID
}

func mcSpec(options ...string) model.StartSpec {
	return model.StartSpec{Text: "Pick one", Type: model.MultipleChoice, Options: options}
}

func frSpec() model.StartSpec {
	return model.StartSpec{Text: "Name an HTTP verb", Type: model.FreeResponse}
}

func counts(v *model.PollView) []*int {
	out := make([]*int, 0, len(v.AnswerChoices))
	for _, c := range v.AnswerChoices {
		out = append(out, c.Count)
	}
	return out
}

func intp(n int) *int { return &n }

func frame(t *testing.T, eventType string, payload any) pubsub.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return pubsub.Envelope{Type: eventType, Payload: raw}
}
