package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/browserctl/internal/coretypes"
)

// MemoryContextStore is an in-process map-based ContextStore.
type MemoryContextStore struct {
	mu       sync.RWMutex
	contexts map[string]*coretypes.Context
}

// NewMemoryContextStore returns an empty store.
func NewMemoryContextStore() *MemoryContextStore {
	return &MemoryContextStore{contexts: make(map[string]*coretypes.Context)}
}

func (s *MemoryContextStore) Create(ctx context.Context, c *coretypes.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.contexts[c.ID]; exists {
		return coretypes.NewValidationError("id", "context already exists")
	}
	cp := *c
	s.contexts[c.ID] = &cp
	return nil
}

func (s *MemoryContextStore) Get(ctx context.Context, id string) (*coretypes.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, exists := s.contexts[id]
	if !exists {
		return nil, coretypes.ErrContextNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryContextStore) GetByUserID(ctx context.Context, userID string) ([]*coretypes.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*coretypes.Context
	for _, c := range s.contexts {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryContextStore) GetBySessionID(ctx context.Context, sessionID string) ([]*coretypes.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*coretypes.Context
	for _, c := range s.contexts {
		if c.SessionID == sessionID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryContextStore) Update(ctx context.Context, c *coretypes.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.contexts[c.ID]; !exists {
		return coretypes.ErrContextNotFound
	}
	cp := *c
	cp.UpdatedAt = time.Now()
	s.contexts[c.ID] = &cp
	return nil
}

func (s *MemoryContextStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.contexts[id]; !exists {
		return coretypes.ErrContextNotFound
	}
	delete(s.contexts, id)
	return nil
}

func (s *MemoryContextStore) DeleteExpired(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, c := range s.contexts {
		if c.Status != coretypes.ContextStatusClosed && now.Sub(c.UpdatedAt) > ttl {
			delete(s.contexts, id)
			count++
		}
	}
	if count > 0 {
		log.Debug().Int("expired_count", count).Msg("memory context store: idle contexts cleaned up")
	}
	return count, nil
}

func (s *MemoryContextStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.contexts[id]
	return exists, nil
}

func (s *MemoryContextStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contexts), nil
}

func (s *MemoryContextStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts = make(map[string]*coretypes.Context)
	return nil
}

func (s *MemoryContextStore) Close() error {
	return nil
}
