// Package ratelimit implements the per-user query cooldown.
//
// Each user gets a single-token bucket from golang.org/x/time/rate that
// refills once per cooldown period. Consuming the token records the query;
// a rejected attempt leaves the bucket untouched, so hammering the bot never
// extends the wait.
//
// The limiter is process-local by design: state is lost on restart and is not
// shared between instances.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// gcEvery is the number of lookups between idle-entry sweeps.
const gcEvery = 1000

// visitor holds a user's bucket and the time of their last accepted query.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Cooldown enforces a minimum interval between accepted queries per user.
//
// Idle entries (no accepted query for at least one full cooldown) are evicted
// opportunistically. Such an entry holds a full bucket, so dropping it never
// changes a decision.
//
// This type is safe for concurrent use.
type Cooldown struct {
	every time.Duration

	mu       sync.Mutex
	visitors map[int64]*visitor
	lookups  uint64
}

// NewCooldown returns a limiter admitting one query per user every period.
// A period <= 0 disables limiting.
func NewCooldown(period time.Duration) *Cooldown {
	return &Cooldown{
		every:    period,
		visitors: make(map[int64]*visitor),
	}
}

// Allow reports whether userID may query at now. On success the query is
// recorded. On rejection retryAfter is the remaining wait and no state changes.
func (c *Cooldown) Allow(userID int64, now time.Time) (allowed bool, retryAfter time.Duration) {
	if c.every <= 0 {
		return true, 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Sweep before touching the requested visitor so a stale entry for this
	// very user is treated as absent.
	c.lookups++
	if c.lookups >= gcEvery {
		c.sweep(now)
		c.lookups = 0
	}

	v, ok := c.visitors[userID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(c.every), 1)}
		c.visitors[userID] = v
	}

	if v.limiter.AllowN(now, 1) {
		v.lastSeen = now
		return true, 0
	}

	deficit := 1 - v.limiter.TokensAt(now)
	wait := time.Duration(math.Ceil(deficit * float64(c.every)))
	if wait <= 0 {
		wait = time.Nanosecond
	}
	if wait > c.every {
		wait = c.every
	}
	return false, wait
}

// Len returns the number of tracked users.
func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.visitors)
}

// sweep drops visitors idle for at least one cooldown period. Caller holds mu.
func (c *Cooldown) sweep(now time.Time) {
	for id, v := range c.visitors {
		if now.Sub(v.lastSeen) >= c.every {
			delete(c.visitors, id)
		}
	}
}
