package storage

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStorage implements TranscriptStorage with a map.
// Data is lost when the process terminates.
type InMemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string][]Exchange
}

// NewInMemoryStorage creates a new in-memory storage.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		sessions: make(map[string][]Exchange),
	}
}

// Append records one exchange.
func (s *InMemoryStorage) Append(_ context.Context, e Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[e.SessionID] = append(s.sessions[e.SessionID], e)
	return nil
}

// History returns a copy of the session's exchanges.
func (s *InMemoryStorage) History(_ context.Context, sessionID string) ([]Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.sessions[sessionID]
	copied := make([]Exchange, len(history))
	copy(copied, history)
	return copied, nil
}

// Delete removes a session's exchanges.
func (s *InMemoryStorage) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// ListSessions lists session IDs by latest exchange, newest first.
func (s *InMemoryStorage) ListSessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.sessions))
	for sessionID := range s.sessions {
		sessions = append(sessions, sessionID)
	}
	last := func(id string) int64 {
		h := s.sessions[id]
		return h[len(h)-1].Time.UnixNano()
	}
	sort.Slice(sessions, func(i, j int) bool { return last(sessions[i]) > last(sessions[j]) })
	return sessions, nil
}

// Verify InMemoryStorage implements TranscriptStorage
var _ TranscriptStorage = (*InMemoryStorage)(nil)
