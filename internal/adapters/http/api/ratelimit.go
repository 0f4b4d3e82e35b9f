package api

import (
	"net/http"
	"strconv"

	"golang.org/x/time/rate"
)

// Limiter bounds the rate of expensive requests for the whole server.
// A nil Limiter allows everything.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter returns nil when perSecond is not positive.
func NewLimiter(perSecond float64, burst int) *Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow reports whether one more request may proceed now.
func (l *Limiter) Allow() bool {
	return l == nil || l.limiter.Allow()
}

// Wrap rejects requests over the limit with 429.
func (l *Limiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow() {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
			writeError(w, http.StatusTooManyRequests, "rate_limited", ErrRateLimited)
			return
		}
		next(w, r)
	}
}
