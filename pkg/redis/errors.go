package redis

import "errors"

var (
	ErrParseURL          = errors.New("redis.parse_url")
	ErrNotReady          = errors.New("redis.not_ready")
	ErrHealthcheckFailed = errors.New("redis.healthcheck_failed")
	ErrLockNotAcquired   = errors.New("redis.lock_not_acquired")
)
