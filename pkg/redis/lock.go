package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/i-daichi/nagoyameshi/pkg/logger"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another holder is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out exclusive leases on string keys.
type Locker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	poll   time.Duration
	log    *slog.Logger
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithLockLogger reports failed releases to log.
func WithLockLogger(log *slog.Logger) LockerOption {
	return func(l *Locker) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLocker builds a Locker from cfg. Zero values fall back to a 60s lease
// polled every 50ms.
func NewLocker(client redis.UniversalClient, cfg Config, opts ...LockerOption) *Locker {
	l := &Locker{
		client: client,
		prefix: cfg.LockPrefix,
		ttl:    cfg.LockTTL,
		poll:   cfg.LockPollInterval,
		log:    logger.Nop(),
	}
	if l.ttl <= 0 {
		l.ttl = 60 * time.Second
	}
	if l.poll <= 0 {
		l.poll = 50 * time.Millisecond
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TTL is the lease length. Work done under a lease must finish before it.
func (l *Locker) TTL() time.Duration { return l.ttl }

// Lock blocks until the lease on key is held or ctx is done. The returned
// func releases the lease; it is safe to call more than once and from
// several goroutines.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	full := l.prefix + key

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, full, token, l.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, errors.Join(ErrLockNotAcquired, err)
		}
		if ok {
			return l.releaser(full, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Locker) releaser(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// Release must run even when the request context is already cancelled.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
				// The lease stays until its TTL runs out.
				l.log.WarnContext(ctx, "release lock failed",
					slog.String("key", key),
					slog.Duration("ttl", l.ttl),
					logger.Error(err),
				)
			}
		})
	}
}
