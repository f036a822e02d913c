package ratelimiter

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/i-daichi/nagoyameshi/pkg/clientip"
)

// KeyFunc derives the bucket key of a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// ByIP keys on the client address.
func ByIP(r *http.Request) string {
	if ip := clientip.FromRequest(r); ip != "" {
		return "ip:" + ip
	}
	return ""
}

// Reject writes the response for a request that was not let through. err
// is ErrLimitExceeded or the store failure.
type Reject func(w http.ResponseWriter, r *http.Request, err error)

func defaultReject(w http.ResponseWriter, _ *http.Request, err error) {
	if errors.Is(err, ErrLimitExceeded) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// Middleware limits requests per key. reject may be nil.
func Middleware(limiter RateLimiter, keyFunc KeyFunc, reject Reject) func(http.Handler) http.Handler {
	if reject == nil {
		reject = defaultReject
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := limiter.Allow(r.Context(), key)
			if err != nil {
				reject(w, r, err)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed() {
				if secs := int(res.RetryAfter(time.Now()).Round(time.Second).Seconds()); secs > 0 {
					h.Set("Retry-After", strconv.Itoa(secs))
				}
				reject(w, r, ErrLimitExceeded)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
