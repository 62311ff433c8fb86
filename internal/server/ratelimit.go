package server

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter enforces a minimum interval between requests per key.
type RateLimiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	lastSeen    map[string]time.Time
	now         func() time.Time
}

func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		minInterval: minInterval,
		lastSeen:    make(map[string]time.Time),
		now:         time.Now,
	}
}

func (r *RateLimiter) Allow(key string) (bool, time.Duration) {
	if r == nil || r.minInterval <= 0 {
		return true, 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	last, ok := r.lastSeen[key]
	if ok {
		if elapsed := now.Sub(last); elapsed < r.minInterval {
			return false, r.minInterval - elapsed
		}
	}
	r.lastSeen[key] = now
	return true, 0
}

// Prune forgets keys idle for longer than the interval.
func (r *RateLimiter) Prune() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.minInterval)
	for key, last := range r.lastSeen {
		if last.Before(cutoff) {
			delete(r.lastSeen, key)
		}
	}
}

// Middleware rejects requests arriving faster than the interval with 429.
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ok, wait := r.Allow(clientKey(req))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeError(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// clientKey identifies the caller: the bearer token when signed in,
// otherwise the remote IP.
func clientKey(r *http.Request) string {
	if token := extractToken(r); token != "" {
		return "t:" + token
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
