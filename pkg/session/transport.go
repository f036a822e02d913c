package session

import (
	"net/http"
	"strings"
	"time"
)

// Transport moves the session token between client and server.
type Transport interface {
	GetToken(r *http.Request) (string, error)
	SetToken(w http.ResponseWriter, token string, ttl time.Duration) error
	ClearToken(w http.ResponseWriter) error
}

// CookieTransport carries the token in an HttpOnly cookie. The token is a
// 256-bit random value, so it is stored as is.
type CookieTransport struct {
	name   string
	secure bool
}

func NewCookieTransport(cfg Config) *CookieTransport {
	return &CookieTransport{name: cfg.CookieName, secure: cfg.SecureCookies}
}

func (t *CookieTransport) GetToken(r *http.Request) (string, error) {
	c, err := r.Cookie(t.name)
	if err != nil || c.Value == "" {
		return "", ErrSessionNotFound
	}
	return c.Value, nil
}

func (t *CookieTransport) SetToken(w http.ResponseWriter, token string, ttl time.Duration) error {
	http.SetCookie(w, &http.Cookie{
		Name:     t.name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (t *CookieTransport) ClearToken(w http.ResponseWriter) error {
	http.SetCookie(w, &http.Cookie{
		Name:     t.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// HeaderTransport carries the token as "Authorization: Bearer <token>" for
// API clients.
type HeaderTransport struct {
	header string
	prefix string
}

func NewHeaderTransport(header string) *HeaderTransport {
	if header == "" {
		header = "Authorization"
	}
	return &HeaderTransport{header: header, prefix: "Bearer "}
}

func (t *HeaderTransport) GetToken(r *http.Request) (string, error) {
	v := strings.TrimPrefix(r.Header.Get(t.header), t.prefix)
	if v == "" {
		return "", ErrSessionNotFound
	}
	return v, nil
}

func (t *HeaderTransport) SetToken(w http.ResponseWriter, token string, _ time.Duration) error {
	w.Header().Set(t.header, t.prefix+token)
	return nil
}

func (t *HeaderTransport) ClearToken(w http.ResponseWriter) error {
	w.Header().Del(t.header)
	return nil
}

// MultiTransport reads from the first transport that yields a token and
// writes to all of them.
type MultiTransport []Transport

func (m MultiTransport) GetToken(r *http.Request) (string, error) {
	for _, t := range m {
		if token, err := t.GetToken(r); err == nil {
			return token, nil
		}
	}
	return "", ErrSessionNotFound
}

func (m MultiTransport) SetToken(w http.ResponseWriter, token string, ttl time.Duration) error {
	for _, t := range m {
		if err := t.SetToken(w, token, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiTransport) ClearToken(w http.ResponseWriter) error {
	for _, t := range m {
		if err := t.ClearToken(w); err != nil {
			return err
		}
	}
	return nil
}
