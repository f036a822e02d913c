package ratelimiter

import (
	"context"
	"time"
)

// Store keeps bucket state. ConsumeTokens may return a negative remainder,
// in which case the tokens were not taken.
type Store interface {
	ConsumeTokens(ctx context.Context, key string, tokens int, cfg Config) (remaining int, resetAt time.Time, err error)
	Reset(ctx context.Context, key string) error
}
