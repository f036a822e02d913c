package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"time"
)

// Manager ties a Store to a Transport.
type Manager struct {
	store     Store
	transport Transport
	config    Config
	now       func() time.Time
}

// New builds a Manager. store and transport are required.
func New(store Store, transport Transport, opts ...Option) *Manager {
	if store == nil {
		panic("session: store is required")
	}
	if transport == nil {
		panic("session: transport is required")
	}
	m := &Manager{
		store:     store,
		transport: transport,
		config:    DefaultConfig(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get loads the session referenced by the request.
func (m *Manager) Get(ctx context.Context, r *http.Request) (*Session, error) {
	token, err := m.transport.GetToken(r)
	if err != nil {
		return nil, err
	}
	sess, err := m.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if m.now().After(sess.ExpiresAt) {
		_ = m.store.Delete(ctx, token)
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Ensure returns the current session or starts an anonymous one.
func (m *Manager) Ensure(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Session, error) {
	if sess, err := m.Get(ctx, r); err == nil {
		return sess, nil
	}
	sess, err := m.create(ctx, nil)
	if err != nil {
		return nil, err
	}
	if err := m.transport.SetToken(w, sess.Token, m.config.ttl(false)); err != nil {
		_ = m.store.Delete(ctx, sess.Token)
		return nil, err
	}
	return sess, nil
}

// Authenticate is the login path: it binds identity under a fresh token,
// dropping any previous session of the request.
func (m *Manager) Authenticate(ctx context.Context, w http.ResponseWriter, r *http.Request, identity Identity) (*Session, error) {
	if identity.IsZero() {
		return nil, ErrNotAuthenticated
	}
	if token, err := m.transport.GetToken(r); err == nil {
		_ = m.store.Delete(ctx, token)
	}
	sess, err := m.create(ctx, &identity)
	if err != nil {
		return nil, err
	}
	if err := m.transport.SetToken(w, sess.Token, m.config.ttl(true)); err != nil {
		_ = m.store.Delete(ctx, sess.Token)
		return nil, err
	}
	return sess, nil
}

// Bind replaces the identity of the current authenticated session in place.
// The token is kept, so the client needs no new credentials; every request
// that loads the session after Bind returns sees the new identity.
func (m *Manager) Bind(ctx context.Context, w http.ResponseWriter, r *http.Request, identity Identity) (*Session, error) {
	sess, err := m.Get(ctx, r)
	if err != nil {
		return nil, err
	}
	if !sess.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	if sess.Identity.UserID != identity.UserID {
		return nil, ErrIdentityMismatch
	}

	id := identity.clone()
	if id.BoundAt.IsZero() {
		id.BoundAt = m.now()
	}
	sess.Identity = &id
	sess.LastActivityAt = m.now()
	sess.ExpiresAt = m.now().Add(m.config.ttl(true))

	if err := m.store.Update(ctx, sess); err != nil {
		return nil, err
	}
	if err := m.transport.SetToken(w, sess.Token, m.config.ttl(true)); err != nil {
		return nil, err
	}
	return sess, nil
}

// Destroy deletes the session and clears the token on the client.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if token, err := m.transport.GetToken(r); err == nil {
		if err := m.store.Delete(ctx, token); err != nil {
			return err
		}
	}
	return m.transport.ClearToken(w)
}

func (m *Manager) create(ctx context.Context, identity *Identity) (*Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	sess := newSession(token, m.config.ttl(identity != nil))
	if identity != nil {
		id := identity.clone()
		if id.BoundAt.IsZero() {
			id.BoundAt = m.now()
		}
		sess.Identity = &id
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(ErrTokenGeneration, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
