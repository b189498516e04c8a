package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/browserctl/internal/coretypes"
)

// MemorySessionStore is an in-process map-based SessionStore, the
// default when no Redis backend is configured or reachable.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*coretypes.Session
}

// NewMemorySessionStore returns an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*coretypes.Session)}
}

func (s *MemorySessionStore) Create(ctx context.Context, session *coretypes.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return coretypes.ErrSessionAlreadyExists
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, id string) (*coretypes.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[id]
	if !exists {
		return nil, coretypes.ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *MemorySessionStore) GetByUserID(ctx context.Context, userID string) ([]*coretypes.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*coretypes.Session
	for _, session := range s.sessions {
		if session.Data.UserID == userID {
			cp := *session
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemorySessionStore) Update(ctx context.Context, session *coretypes.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; !exists {
		return coretypes.ErrSessionNotFound
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemorySessionStore) Touch(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, exists := s.sessions[id]
	if !exists {
		return coretypes.ErrSessionNotFound
	}
	session.LastAccessedAt = now
	return nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[id]; !exists {
		return coretypes.ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *MemorySessionStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			count++
		}
	}
	if count > 0 {
		log.Debug().Int("expired_count", count).Msg("memory session store: expired sessions cleaned up")
	}
	return count, nil
}

func (s *MemorySessionStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.sessions[id]
	return exists, nil
}

func (s *MemorySessionStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}

func (s *MemorySessionStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*coretypes.Session)
	return nil
}

func (s *MemorySessionStore) Close() error {
	return nil
}
