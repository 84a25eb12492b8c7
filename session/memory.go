package session

import (
	"context"
	"sync"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// MemoryStore keeps the session in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	current *interfaces.AuthSession
}

var _ interfaces.SessionStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, patch *interfaces.AuthSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.current.Clone()
	if merged == nil {
		merged = &interfaces.AuthSession{}
	}
	merged.Merge(patch)
	s.current = merged
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (*interfaces.AuthSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil, interfaces.ErrSessionNotFound
	}
	return s.current.Clone(), nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	return nil
}
