// Package middleware – per-client rate limiting for the ops API.
//
// The limiter keeps one token bucket per client IP with opportunistic
// garbage collection of idle buckets. It protects the stats endpoint, whose
// queries hit the audit database; it is process-local by nature.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// gcEveryLookups triggers a sweep of idle buckets.
const gcEveryLookups = 1000

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-IP token-bucket limiter. Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups int
}

// NewRateLimiter allows rps requests per second per IP with the given burst
// (coerced to at least 1).
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    10 * time.Minute,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// reserve consumes a token for key. It returns 0 when the request may
// proceed, otherwise the wait until a token is available.
func (rl *RateLimiter) reserve(key string) time.Duration {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Sweep before touching key so an idle bucket for key is dropped too.
	rl.lookups++
	if rl.lookups >= gcEveryLookups {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idle {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now

	if b.limiter.AllowN(now, 1) {
		return 0
	}
	deficit := 1 - b.limiter.TokensAt(now)
	return time.Duration(deficit / float64(rl.rps) * float64(time.Second))
}

// Handler enforces the limit, answering 429 with Retry-After (whole
// seconds, at least 1) when a client exceeds it.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		wait := rl.reserve(c.ClientIP())
		if wait <= 0 {
			c.Next()
			return
		}
		secs := int(math.Max(1, math.Ceil(wait.Seconds())))
		c.Header("Retry-After", strconv.Itoa(secs))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": asString(c.Value(requestIDKey)),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}
