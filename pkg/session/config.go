package session

import "time"

type Config struct {
	CookieName    string `env:"SESSION_COOKIE_NAME" envDefault:"sid"`
	SecureCookies bool   `env:"SESSION_SECURE_COOKIES" envDefault:"false"`

	AnonTTL time.Duration `env:"SESSION_ANON_TTL" envDefault:"30m"`
	AuthTTL time.Duration `env:"SESSION_AUTH_TTL" envDefault:"24h"`

	CleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"5m"`
}

// DefaultConfig mirrors the envDefault values.
func DefaultConfig() Config {
	return Config{
		CookieName:      "sid",
		AnonTTL:         30 * time.Minute,
		AuthTTL:         24 * time.Hour,
		CleanupInterval: 5 * time.Minute,
	}
}

func (c Config) ttl(authenticated bool) time.Duration {
	if authenticated {
		return c.AuthTTL
	}
	return c.AnonTTL
}
