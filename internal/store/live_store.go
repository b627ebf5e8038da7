package store

import (
	"context"
	"maps"
	"sync"
)

// MemoryLiveStore is the single-instance LiveStore used when no Redis URL
// is configured.
type MemoryLiveStore struct {
	mu      sync.Mutex
	live    map[string]string
	tallies map[string]map[string]int
}

func NewMemoryLiveStore() *MemoryLiveStore {
	return &MemoryLiveStore{
		live:    make(map[string]string),
		tallies: make(map[string]map[string]int),
	}
}

func (s *MemoryLiveStore) SetLive(_ context.Context, groupCode, pollID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[groupCode] = pollID
	delete(s.tallies, groupCode)
	return nil
}

func (s *MemoryLiveStore) ClearLive(_ context.Context, groupCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, groupCode)
	delete(s.tallies, groupCode)
	return nil
}

func (s *MemoryLiveStore) SetTallies(_ context.Context, groupCode string, tallies map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tallies[groupCode] = maps.Clone(tallies)
	return nil
}

func (s *MemoryLiveStore) GetTallies(_ context.Context, groupCode string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.tallies[groupCode]), nil
}

// LivePoll returns the live poll id mirrored for the group.
func (s *MemoryLiveStore) LivePoll(groupCode string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.live[groupCode]
	return id, ok
}

func (s *MemoryLiveStore) LiveCodes(_ context.Context, codes []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range codes {
		if _, ok := s.live[c]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryLiveStore) Close() error { return nil }
