package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions as JSON values whose key TTL follows ExpiresAt.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store writing keys under "session:".
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "session:"}
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}

func (s *RedisStore) Create(ctx context.Context, sess *Session) error {
	return s.write(ctx, sess, false)
}

func (s *RedisStore) Update(ctx context.Context, sess *Session) error {
	return s.write(ctx, sess, true)
}

func (s *RedisStore) write(ctx context.Context, sess *Session, mustExist bool) error {
	if sess == nil || sess.Token == "" {
		return ErrInvalidSession
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return ErrSessionExpired
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return errors.Join(ErrStore, err)
	}

	if !mustExist {
		if err := s.client.Set(ctx, s.key(sess.Token), raw, ttl).Err(); err != nil {
			return errors.Join(ErrStore, err)
		}
		return nil
	}

	ok, err := s.client.SetXX(ctx, s.key(sess.Token), raw, ttl).Result()
	if err != nil {
		return errors.Join(ErrStore, err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	raw, err := s.client.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStore, err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, errors.Join(ErrInvalidSession, err)
	}
	return &sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return errors.Join(ErrStore, err)
	}
	return nil
}
