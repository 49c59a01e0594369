package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter throttles incoming "req" and "event" frames per connection using a token-bucket
// limiter per client id. rpm <= 0 disables limiting entirely.
type RateLimiter struct {
	rpm   int
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter builds a RateLimiter. rpm is requests per minute; burst is
// the token bucket's burst size.
func NewRateLimiter(rpm, burst int) *RateLimiter {
	return &RateLimiter{rpm: rpm, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

// Enabled reports whether rate limiting is turned on.
func (r *RateLimiter) Enabled() bool { return r.rpm > 0 }

// Allow reports whether clientID may make another request right now.
func (r *RateLimiter) Allow(clientID string) bool {
	if !r.Enabled() {
		return true
	}
	r.mu.Lock()
	l, ok := r.limiters[clientID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(r.rpm)/60.0), r.burst)
		r.limiters[clientID] = l
	}
	r.mu.Unlock()
	return l.Allow()
}

// Forget drops a client's limiter state, called on disconnect.
func (r *RateLimiter) Forget(clientID string) {
	r.mu.Lock()
	delete(r.limiters, clientID)
	r.mu.Unlock()
}
