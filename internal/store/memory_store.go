package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Guizzs26/live_polling_system/internal/model"
)

// MemoryStore keeps everything in process. It backs the "memory" database
// type and the tests.
type MemoryStore struct {
	mu      sync.Mutex
	polls   map[string]model.PollRecord
	groups  map[string]model.Group
	members map[string]map[string]model.Role
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		polls:   make(map[string]model.PollRecord),
		groups:  make(map[string]model.Group),
		members: make(map[string]map[string]model.Role),
	}
}

func (s *MemoryStore) CreatePoll(ctx context.Context, rec model.PollRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = uuid.NewString()
	s.polls[rec.ID] = rec
	return rec.ID, nil
}

func (s *MemoryStore) GetPoll(ctx context.Context, id string) (model.PollRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.polls[id]
	if !ok {
		return model.PollRecord{}, fmt.Errorf("poll %s: %w", id, ErrNotFound)
	}
	return rec, nil
}

// Polls lists the stored polls of a group.
func (s *MemoryStore) Polls(groupID string) []model.PollRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.PollRecord
	for _, rec := range s.polls {
		if rec.GroupID == groupID {
			out = append(out, rec)
		}
	}
	return out
}

func (s *MemoryStore) DeletePoll(ctx context.Context, groupID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.polls[id]; !ok || rec.GroupID != groupID {
		return fmt.Errorf("poll %s: %w", id, ErrNotFound)
	}
	delete(s.polls, id)
	return nil
}

func (s *MemoryStore) MarkShared(ctx context.Context, groupID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.polls[id]
	if !ok || rec.GroupID != groupID {
		return fmt.Errorf("poll %s: %w", id, ErrNotFound)
	}
	rec.Shared = true
	s.polls[id] = rec
	return nil
}

func (s *MemoryStore) DeleteGroupPolls(ctx context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rec := range s.polls {
		if rec.GroupID == groupID {
			delete(s.polls, id)
		}
	}
	return nil
}

func (s *MemoryStore) CreateGroup(ctx context.Context, g model.Group) (model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	for _, existing := range s.groups {
		if existing.Code == g.Code {
			return model.Group{}, fmt.Errorf("group code %q already taken", g.Code)
		}
	}
	s.groups[g.ID] = g
	return g, nil
}

func (s *MemoryStore) FindGroup(ctx context.Context, codeOrID string) (model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g, ok := s.groups[codeOrID]; ok {
		return g, nil
	}
	for _, g := range s.groups {
		if g.Code == codeOrID {
			return g, nil
		}
	}
	return model.Group{}, fmt.Errorf("group %s: %w", codeOrID, ErrNotFound)
}

func (s *MemoryStore) DeleteGroup(ctx context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.groups, groupID)
	delete(s.members, groupID)
	for id, rec := range s.polls {
		if rec.GroupID == groupID {
			delete(s.polls, id)
		}
	}
	return nil
}

func (s *MemoryStore) AddMember(ctx context.Context, groupID, participantID string, role model.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}
	if s.members[groupID] == nil {
		s.members[groupID] = make(map[string]model.Role)
	}
	s.members[groupID][participantID] = role
	return nil
}

func (s *MemoryStore) MemberRole(ctx context.Context, groupID, participantID string) (model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.members[groupID][participantID]
	if !ok {
		return "", fmt.Errorf("member %s of group %s: %w", participantID, groupID, ErrNotFound)
	}
	return role, nil
}

func (s *MemoryStore) Close() error { return nil }
