package handlers

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tbourn/go-report-bot/internal/bot"
)

// StatsSource exposes the bot's runtime state to the stats endpoint.
type StatsSource interface {
	// CacheEntries is the number of cached reports.
	CacheEntries() int
	// TrackedUsers is the number of users inside their query cooldown.
	TrackedUsers() int
	// OutcomeCounts tallies audited queries per outcome since the given
	// time. A nil map means auditing is disabled.
	OutcomeCounts(ctx context.Context, since time.Time) (map[string]int64, error)
	// LastQueryAt is the time of the newest audited query, nil if none.
	LastQueryAt(ctx context.Context) (*time.Time, error)
	// UserQueryCount counts one user's audited queries since the given time.
	UserQueryCount(ctx context.Context, userID int64, since time.Time) (int64, error)
}

// UpdateSink accepts updates received over the webhook.
type UpdateSink interface {
	Submit(u bot.Update)
}

// seenUpdates bounds the update_id replay window of the webhook.
const seenUpdates = 4096

// Handlers groups the ops endpoints.
type Handlers struct {
	stats   StatsSource
	updates UpdateSink
	seen    *lru.Cache[int, struct{}]
	now     func() time.Time
}

// New constructs Handlers. updates may be nil when the bot polls.
func New(stats StatsSource, updates UpdateSink) *Handlers {
	// Only fails for a non-positive size.
	seen, _ := lru.New[int, struct{}](seenUpdates)
	return &Handlers{stats: stats, updates: updates, seen: seen, now: time.Now}
}
