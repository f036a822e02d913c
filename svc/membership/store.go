package membership

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// UserStore is the persistence boundary of the lifecycle. Writes are single
// statements; no multi-step transaction spans a provider call.
type UserStore interface {
	// FindByID returns ErrUserNotFound for unknown ids.
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	// SetPaymentCustomerRef stores ref only if no reference is stored yet
	// (or the same one is). Otherwise it returns the stored reference
	// together with ErrCustomerRefConflict.
	SetPaymentCustomerRef(ctx context.Context, id uuid.UUID, ref string) (string, error)
	// SetRole writes the role and returns the updated user.
	SetRole(ctx context.Context, id uuid.UUID, role Role) (*User, error)
}

// MemoryUserStore is a UserStore for tests and local development.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[uuid.UUID]User
	now   func() time.Time
}

func NewMemoryUserStore(users ...User) *MemoryUserStore {
	s := &MemoryUserStore{users: make(map[uuid.UUID]User, len(users)), now: time.Now}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

// Put inserts or replaces a user.
func (s *MemoryUserStore) Put(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *MemoryUserStore) FindByID(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *MemoryUserStore) SetPaymentCustomerRef(_ context.Context, id uuid.UUID, ref string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return "", ErrUserNotFound
	}
	if u.PaymentCustomerRef != "" && u.PaymentCustomerRef != ref {
		return u.PaymentCustomerRef, ErrCustomerRefConflict
	}
	u.PaymentCustomerRef = ref
	u.UpdatedAt = s.now()
	s.users[id] = u
	return ref, nil
}

func (s *MemoryUserStore) SetRole(_ context.Context, id uuid.UUID, role Role) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u.Role = role
	u.UpdatedAt = s.now()
	s.users[id] = u
	return &u, nil
}
