package auth

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

// MemoryStore provides an in-memory implementation of the Store interface,
// intended for development and testing scenarios.
type MemoryStore struct {
	mu      sync.RWMutex
	byToken map[string]*Subject
	nextID  int64
}

// NewMemoryStore initialises the store with the provided seed tokens.
func NewMemoryStore(seeds []Seed) *MemoryStore {
	store := &MemoryStore{
		byToken: make(map[string]*Subject),
		nextID:  1,
	}
	for _, seed := range seeds {
		token := strings.TrimSpace(seed.Token)
		if token == "" {
			continue
		}
		if _, exists := store.byToken[token]; exists {
			continue
		}
		id := strings.TrimSpace(seed.ID)
		if id == "" {
			id = "user-" + strconv.FormatInt(store.nextID, 10)
		}
		store.byToken[token] = &Subject{
			ID:       id,
			Name:     seed.Name,
			Disabled: seed.Disabled,
		}
		store.nextID++
	}
	return store
}

// LookupToken implements the Store interface.
func (s *MemoryStore) LookupToken(_ context.Context, token string) (*Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subject, ok := s.byToken[strings.TrimSpace(token)]
	if !ok {
		return nil, ErrInvalidToken
	}
	if subject.Disabled {
		return nil, ErrSubjectRevoked
	}
	clone := *subject
	return &clone, nil
}

// Revoke disables an existing token.
func (s *MemoryStore) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if subject, ok := s.byToken[strings.TrimSpace(token)]; ok {
		subject.Disabled = true
	}
}
