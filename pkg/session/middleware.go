package session

import (
	"errors"
	"fmt"
	"net/http"
)

// Middleware loads the session, if any, into the request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess, err := m.Get(r.Context(), r); err == nil {
			r = r.WithContext(WithSession(r.Context(), sess))
		}
		next.ServeHTTP(w, r)
	})
}

// Reject writes the response for a request the guards refuse. err is
// ErrNotAuthenticated or ErrForbidden.
type Reject func(w http.ResponseWriter, r *http.Request, err error)

// PlainReject answers with a bare status text.
func PlainReject(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusUnauthorized
	if errors.Is(err, ErrForbidden) {
		status = http.StatusForbidden
	}
	http.Error(w, http.StatusText(status), status)
}

// RequireAuth rejects requests without an authenticated session in context.
// Mount it after Middleware.
func RequireAuth(next http.Handler) http.Handler {
	return RequireAuthWith(PlainReject)(next)
}

// RequireAuthWith is RequireAuth with a custom rejection response.
func RequireAuthWith(reject Reject) func(http.Handler) http.Handler {
	if reject == nil {
		reject = PlainReject
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := IdentityFromContext(r.Context()); !ok {
				reject(w, r, ErrNotAuthenticated)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuthority rejects requests whose identity lacks authority.
func RequireAuthority(authority string) func(http.Handler) http.Handler {
	return RequireAuthorityWith(authority, PlainReject)
}

// RequireAuthorityWith is RequireAuthority with a custom rejection response.
func RequireAuthorityWith(authority string, reject Reject) func(http.Handler) http.Handler {
	if reject == nil {
		reject = PlainReject
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				reject(w, r, ErrNotAuthenticated)
				return
			}
			if !id.HasAuthority(authority) {
				reject(w, r, fmt.Errorf("%w: missing %s", ErrForbidden, authority))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
