package session

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Session is one browser or API client conversation with the server.
type Session struct {
	ID             uuid.UUID         `json:"id"`
	Token          string            `json:"token"`
	Identity       *Identity         `json:"identity,omitempty"`
	Data           map[string]string `json:"data,omitempty"`
	ExpiresAt      time.Time         `json:"expires_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
	CreatedAt      time.Time         `json:"created_at"`
}

func newSession(token string, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:             uuid.New(),
		Token:          token,
		ExpiresAt:      now.Add(ttl),
		LastActivityAt: now,
		CreatedAt:      now,
	}
}

// IsAuthenticated reports whether an identity is bound.
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.Identity != nil && !s.Identity.IsZero()
}

func (s *Session) IsExpired() bool {
	return s != nil && time.Now().After(s.ExpiresAt)
}

// Get returns a flash-style string value.
func (s *Session) Get(key string) (string, bool) {
	if s == nil || s.Data == nil {
		return "", false
	}
	v, ok := s.Data[key]
	return v, ok
}

func (s *Session) Set(key, value string) {
	if s.Data == nil {
		s.Data = make(map[string]string)
	}
	s.Data[key] = value
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Identity != nil {
		id := s.Identity.clone()
		c.Identity = &id
	}
	if s.Data != nil {
		c.Data = maps.Clone(s.Data)
	}
	return &c
}
