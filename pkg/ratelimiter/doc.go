// Package ratelimiter is a token bucket limiter with in-memory and Redis
// stores and an HTTP middleware.
//
// A bucket holds up to Capacity tokens and gains RefillRate tokens every
// RefillInterval. Each request consumes one; a negative remainder means the
// request is over the limit.
//
//	limiter, err := ratelimiter.NewBucket(ratelimiter.NewRedisStore(rdb, "rl:"), cfg)
//	r.With(ratelimiter.Middleware(limiter, ratelimiter.ByIP)).Post("/user/charge", h)
package ratelimiter
