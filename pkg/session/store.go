package session

import "context"

// Store persists sessions by token.
type Store interface {
	Create(ctx context.Context, s *Session) error
	// Get returns ErrSessionNotFound for unknown or expired tokens.
	Get(ctx context.Context, token string) (*Session, error)
	// Update overwrites an existing session; ErrSessionNotFound otherwise.
	Update(ctx context.Context, s *Session) error
	Delete(ctx context.Context, token string) error
}
