package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/Guizzs26/live_polling_system/internal/model"
	"github.com/Guizzs26/live_polling_system/internal/pubsub"
)

// Manager is the table of running group sessions, keyed by group id with a
// second index from group code to id.
type Manager struct {
	deps     Deps
	logger   *slog.Logger
	sessions cmap.ConcurrentMap[string, *Session]
	codes    cmap.ConcurrentMap[string, string]
}

func NewManager(deps Deps) *Manager {
	if deps.Store == nil {
		panic("session: Deps.Store is required")
	}
	deps = deps.withDefaults()
	return &Manager{
		deps:     deps,
		logger:   deps.Logger,
		sessions: cmap.New[*Session](),
		codes:    cmap.New[string](),
	}
}

// StartNewGroup returns the running session of group, creating it if none
// is running.
func (m *Manager) StartNewGroup(group model.Group) *Session {
	created := false
	s := m.sessions.Upsert(group.ID, nil, func(exists bool, old, _ *Session) *Session {
		if exists {
			return old
		}
		created = true
		return newSession(group, m.deps, m.remove)
	})
	if created {
		m.codes.Set(group.Code, group.ID)
		m.deps.Metrics.ActiveSessions.Inc()
		m.logger.Info("group session started", "group", group.Code, "group_id", group.ID)
	}
	return s
}

// remove drops s from the table if it is still the entry for its group.
func (m *Manager) remove(s *Session) {
	g := s.Group()
	removed := m.sessions.RemoveCb(g.ID, func(_ string, v *Session, exists bool) bool {
		return exists && v == s
	})
	if !removed {
		return
	}
	m.codes.RemoveCb(g.Code, func(_ string, id string, exists bool) bool {
		return exists && id == g.ID
	})
	m.deps.Metrics.ActiveSessions.Dec()
	m.logger.Info("group session removed", "group", g.Code, "group_id", g.ID)
}

// Join connects c to the group's session, starting it if needed. A session
// that tears itself down between lookup and connect is replaced once.
func (m *Manager) Join(ctx context.Context, group model.Group, c pubsub.Conn) (*Session, error) {
	for attempt := 0; attempt < 2; attempt++ {
		s := m.StartNewGroup(group)
		err := s.Connect(ctx, c)
		if errors.Is(err, ErrSessionClosed) {
			m.remove(s)
			continue
		}
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("join group %s: %w", group.Code, ErrSessionClosed)
}

// EndGroup disconnects everyone and removes the session. With persistLast
// the live poll is persisted first; otherwise it is discarded and the group
// is deleted from storage together with its persisted polls.
func (m *Manager) EndGroup(ctx context.Context, group model.Group, persistLast bool) error {
	if s, ok := m.sessions.Get(group.ID); ok {
		err := s.Close(ctx, persistLast)
		if err != nil && !errors.Is(err, ErrSessionClosed) {
			return err
		}
		m.remove(s)
	}

	if !persistLast {
		if err := m.deps.Store.DeleteGroup(ctx, group.ID); err != nil {
			return &PersistError{Err: err}
		}
		m.logger.Info("group deleted", "group", group.Code, "group_id", group.ID)
	}
	return nil
}

// FindSession looks a running session up by group code or id.
func (m *Manager) FindSession(codeOrID string) (*Session, bool) {
	if s, ok := m.sessions.Get(codeOrID); ok {
		return s, true
	}
	if id, ok := m.codes.Get(codeOrID); ok {
		return m.sessions.Get(id)
	}
	return nil, false
}

// IsLive reports whether a poll runs for the group code, here or on another
// instance sharing the live store.
func (m *Manager) IsLive(ctx context.Context, code string) bool {
	if s, ok := m.FindSession(code); ok && s.IsLive() {
		return true
	}
	if m.deps.Live == nil {
		return false
	}
	live, err := m.deps.Live.LiveCodes(ctx, []string{code})
	if err != nil {
		m.logger.Warn("live store lookup failed", "group", code, "error", err)
		return false
	}
	return len(live) > 0
}

// LiveGroups returns the codes, in input order, whose poll is running.
func (m *Manager) LiveGroups(ctx context.Context, codes []string) []string {
	live := make(map[string]bool, len(codes))
	var remote []string
	for _, code := range codes {
		if s, ok := m.FindSession(code); ok && s.IsLive() {
			live[code] = true
			continue
		}
		remote = append(remote, code)
	}

	if m.deps.Live != nil && len(remote) > 0 {
		found, err := m.deps.Live.LiveCodes(ctx, remote)
		if err != nil {
			m.logger.Warn("live store lookup failed", "error", err)
		}
		for _, code := range found {
			live[code] = true
		}
	}

	out := make([]string, 0, len(live))
	for _, code := range codes {
		if live[code] {
			out = append(out, code)
			delete(live, code)
		}
	}
	return out
}

// Shutdown ends every session, persisting live polls. A session whose poll
// cannot be persisted is closed anyway and the poll is lost.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, s := range m.sessions.Items() {
		g := s.Group()
		if err := s.Close(ctx, true); err != nil && !errors.Is(err, ErrSessionClosed) {
			m.logger.Error("could not persist live poll at shutdown, discarding", "group", g.Code, "error", err)
			if err := s.Close(ctx, false); err != nil && !errors.Is(err, ErrSessionClosed) {
				m.logger.Error("could not close session", "group", g.Code, "error", err)
			}
		}
		m.remove(s)
		if err := s.Wait(ctx); err != nil {
			m.logger.Warn("side effects not flushed", "group", g.Code, "error", err)
		}
	}
}

// Len is the number of running sessions.
func (m *Manager) Len() int { return m.sessions.Count() }
