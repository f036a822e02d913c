package ratelimiter

import "time"

// Result is the outcome of one check.
type Result struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Allowed reports whether the request fits in the bucket.
func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter is zero for allowed requests.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed() {
		return 0
	}
	return max(r.ResetAt.Sub(now), 0)
}

// Config is the bucket shape. Defaults allow a burst of five card
// operations, then one more every two minutes.
type Config struct {
	Capacity       int           `env:"CARD_RATE_LIMIT_CAPACITY" envDefault:"5"`
	RefillRate     int           `env:"CARD_RATE_LIMIT_REFILL_RATE" envDefault:"1"`
	RefillInterval time.Duration `env:"CARD_RATE_LIMIT_REFILL_INTERVAL" envDefault:"2m"`
}

func (c Config) validate() error {
	switch {
	case c.Capacity <= 0:
		return ErrInvalidConfig
	case c.RefillRate <= 0:
		return ErrInvalidConfig
	case c.RefillInterval <= 0:
		return ErrInvalidConfig
	}
	return nil
}

// refill returns the token count after the intervals elapsed since
// refilledAt, and the new refill mark.
func (c Config) refill(tokens int, refilledAt, now time.Time) (int, time.Time) {
	elapsed := now.Sub(refilledAt)
	if elapsed < c.RefillInterval {
		return tokens, refilledAt
	}
	// Capped so a long idle period cannot overflow.
	maxIntervals := int64(c.Capacity/c.RefillRate + 1)
	intervals := min(int64(elapsed/c.RefillInterval), maxIntervals)
	return min(tokens+int(intervals)*c.RefillRate, c.Capacity), now
}
