// Package cache holds rendered reports between the initial reply and later
// page-navigation callbacks.
//
// ReportCache is a bounded LRU (hashicorp/golang-lru/v2) whose entries also
// carry their insertion time. An entry older than the TTL is treated as absent
// and dropped on lookup; PurgeExpired sweeps the rest eagerly. Capacity
// pressure evicts the least recently used report first.
//
// Reports are memory-resident only and do not survive a restart.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tbourn/go-report-bot/internal/domain"
)

// Defaults used when the caller passes zero values.
const (
	DefaultSize = 500
	DefaultTTL  = time.Hour
)

type entry struct {
	pages    domain.Report
	storedAt time.Time
}

// Option customizes a ReportCache.
type Option func(*ReportCache)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *ReportCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithEvictionHook registers fn to run whenever an insert pushes out an
// existing report because the cache is full.
func WithEvictionHook(fn func()) Option {
	return func(c *ReportCache) { c.onEvict = fn }
}

// ReportCache maps a query key to its report. Safe for concurrent use.
type ReportCache struct {
	mu      sync.Mutex
	lru     *lru.Cache[string, entry]
	ttl     time.Duration
	now     func() time.Time
	onEvict func()
}

// New builds a cache holding at most size reports, each for at most ttl.
func New(size int, ttl time.Duration, opts ...Option) (*ReportCache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	l, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	c := &ReportCache{lru: l, ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Put stores pages under key, replacing any report already stored there.
// The slice is copied so later changes by the caller are not observed.
func (c *ReportCache) Put(key string, pages domain.Report) {
	cp := make(domain.Report, len(pages))
	copy(cp, pages)

	c.mu.Lock()
	evicted := c.lru.Add(key, entry{pages: cp, storedAt: c.now()})
	c.mu.Unlock()

	if evicted && c.onEvict != nil {
		c.onEvict()
	}
}

// Get returns the report stored under key. A missing, evicted, or expired
// report yields ok=false. The returned slice must be treated as read-only.
func (c *ReportCache) Get(key string) (pages domain.Report, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if c.expired(e) {
		c.lru.Remove(key)
		return nil, false
	}
	return e.pages, true
}

// Len returns the number of stored reports, including expired ones that have
// not been purged yet.
func (c *ReportCache) Len() int {
	return c.lru.Len()
}

// PurgeExpired removes every expired report and returns how many were dropped.
func (c *ReportCache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, k := range c.lru.Keys() {
		if e, ok := c.lru.Peek(k); ok && c.expired(e) {
			c.lru.Remove(k)
			n++
		}
	}
	return n
}

func (c *ReportCache) expired(e entry) bool {
	return c.now().Sub(e.storedAt) >= c.ttl
}
