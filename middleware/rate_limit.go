package middleware

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const visitorIdleTTL = 10 * time.Minute

// RateLimiterStats is reported by the status endpoint.
type RateLimiterStats struct {
	Enabled  bool    `json:"enabled"`
	Rate     float64 `json:"rate"`
	Burst    int     `json:"burst"`
	Clients  int     `json:"clients"`
	Allowed  int64   `json:"allowed"`
	Rejected int64   `json:"rejected"`
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// VoteRateLimiter is a token bucket per client IP for vote submissions.
type VoteRateLimiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time

	allowed  atomic.Int64
	rejected atomic.Int64

	now func() time.Time
}

// NewVoteRateLimiter allows perSecond votes per client with the given burst.
// perSecond <= 0 disables limiting.
func NewVoteRateLimiter(perSecond float64, burst int) *VoteRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &VoteRateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// Enabled reports whether votes are limited at all.
func (l *VoteRateLimiter) Enabled() bool {
	return l != nil && l.limit > 0
}

// Allow consumes one token for key.
func (l *VoteRateLimiter) Allow(key string) bool {
	if !l.Enabled() {
		return true
	}

	now := l.now()
	l.mu.Lock()
	l.sweep(now)
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	ok = v.limiter.AllowN(now, 1)
	l.mu.Unlock()

	if ok {
		l.allowed.Add(1)
	} else {
		l.rejected.Add(1)
	}
	return ok
}

// sweep forgets idle visitors at most once per TTL. Called with mu held.
func (l *VoteRateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < visitorIdleTTL {
		return
	}
	l.lastSweep = now
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorIdleTTL {
			delete(l.visitors, key)
		}
	}
}

// Middleware rejects over-limit clients with 429 before the handler runs.
func (l *VoteRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many votes, slow down"})
			return
		}
		c.Next()
	}
}

// Stats returns the counters shown on /status.
func (l *VoteRateLimiter) Stats() RateLimiterStats {
	if l == nil {
		return RateLimiterStats{}
	}
	l.mu.Lock()
	clients := len(l.visitors)
	l.mu.Unlock()

	return RateLimiterStats{
		Enabled:  l.Enabled(),
		Rate:     float64(l.limit),
		Burst:    l.burst,
		Clients:  clients,
		Allowed:  l.allowed.Load(),
		Rejected: l.rejected.Load(),
	}
}
