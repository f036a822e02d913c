package session

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps sessions in process. Entries expire with the session.
type MemoryStore struct {
	items *cache.Cache
}

// NewMemoryStore creates a store that sweeps expired sessions every
// cleanupInterval (0 disables the sweeper; expired entries are still
// invisible to Get).
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{items: cache.New(cache.NoExpiration, cleanupInterval)}
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	ttl, err := memoryTTL(s)
	if err != nil {
		return err
	}
	m.items.Set(s.Token, s.Clone(), ttl)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, token string) (*Session, error) {
	v, ok := m.items.Get(token)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return v.(*Session).Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, s *Session) error {
	ttl, err := memoryTTL(s)
	if err != nil {
		return err
	}
	// Replace fails when the key is gone, which is what Update promises.
	if err := m.items.Replace(s.Token, s.Clone(), ttl); err != nil {
		return ErrSessionNotFound
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.items.Delete(token)
	return nil
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	return m.items.ItemCount()
}

// memoryTTL guards against non-positive durations, which go-cache treats as
// "never expire".
func memoryTTL(s *Session) (time.Duration, error) {
	if s == nil || s.Token == "" {
		return 0, ErrInvalidSession
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return 0, ErrSessionExpired
	}
	return ttl, nil
}
