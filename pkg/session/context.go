package session

import "context"

type sessionKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}

// IdentityFromContext returns the identity of an authenticated session.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	s, ok := FromContext(ctx)
	if !ok || !s.IsAuthenticated() {
		return Identity{}, false
	}
	return *s.Identity, true
}
