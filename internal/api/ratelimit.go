package api

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/asride/kessler/internal/httputil"
	"github.com/asride/kessler/internal/metrics"
)

// ipRateLimiter keeps one token bucket per client IP.
type ipRateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	lastAccess map[string]time.Time
	rate       rate.Limit
	burst      int
	trustProxy bool
}

// newIPRateLimiter allows rps requests per second per IP with the given
// burst. A non-positive rps disables limiting.
func newIPRateLimiter(rps float64, burst int, trustProxy bool) *ipRateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &ipRateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		lastAccess: make(map[string]time.Time),
		rate:       limit,
		burst:      max(1, burst),
		trustProxy: trustProxy,
	}
}

func (l *ipRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, exists := l.limiters[ip]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[ip] = limiter
	}
	l.lastAccess[ip] = time.Now()
	return limiter.Allow()
}

// Evict removes limiters that haven't been used within maxAge.
func (l *ipRateLimiter) Evict(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	for ip, last := range l.lastAccess {
		if last.Before(cutoff) {
			delete(l.limiters, ip)
			delete(l.lastAccess, ip)
		}
	}
}

func (l *ipRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// limit wraps next, answering 429 once the caller's bucket is empty.
func (l *ipRateLimiter) limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(httputil.ClientIP(r, l.trustProxy)) {
			metrics.IncRateLimited()
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}
