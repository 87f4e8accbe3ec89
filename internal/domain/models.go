// Package domain defines the core types of the report bot: inbound queries,
// rendered reports, navigation keyboards, and the persisted query audit
// record. Transport packages translate their own wire types into these.
package domain

import (
	"strconv"
	"time"
)

// Query is an accepted free-text search request. It lives only for the
// duration of a single inbound message.
type Query struct {
	ID        int64 // random correlation id, embedded in navigation callbacks
	UserID    int64
	Username  string
	ChatID    int64
	MessageID int
	Text      string
}

// Key returns the report cache key for this query.
func (q Query) Key() string { return strconv.FormatInt(q.ID, 10) }

// Report is the ordered, immutable page sequence produced for one query.
// Pages are HTML-formatted and individually bounded by the display limit.
type Report []string

// PageView is reconstructed on every navigation callback; it is never stored.
type PageView struct {
	QueryID string
	Index   int
	Count   int
}

// Button is a single inline control. Data is the opaque callback payload
// echoed back by the transport when the button is pressed.
type Button struct {
	Text string
	Data string
}

// Keyboard is a transport-agnostic grid of inline controls.
type Keyboard struct {
	Rows [][]Button
}

// Query outcomes recorded in the audit log and exported as metric labels.
const (
	OutcomeOK                   = "ok"
	OutcomeNoResults            = "no_results"
	OutcomeRateLimited          = "rate_limited"
	OutcomeEmptyQuery           = "empty_query"
	OutcomeNetworkError         = "network_error"
	OutcomeServiceResponseError = "service_response_error"
	OutcomeServiceError         = "service_error"
)

// QueryRecord is one row of the query audit log.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - QueryID: the correlation id used in navigation callbacks (0 when rate limited).
//   - UserID / Username: the requesting Telegram user.
//   - Query: first line of the query, optionally PII-redacted.
//   - Outcome: one of the Outcome* constants.
//   - PageCount: number of rendered pages (0 unless Outcome is "ok").
//   - LatencyMS: time spent in the search call, in milliseconds.
type QueryRecord struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	QueryID   int64     `json:"query_id"   gorm:"not null;index"`
	UserID    int64     `json:"user_id"    gorm:"not null;index:idx_records_user"`
	Username  string    `json:"username"   gorm:"type:varchar(64)"`
	Query     string    `json:"query"      gorm:"type:text;not null"`
	Outcome   string    `json:"outcome"    gorm:"type:varchar(32);not null;index"`
	PageCount int       `json:"page_count" gorm:"not null;default:0"`
	LatencyMS int64     `json:"latency_ms" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// TableName returns the database table name for QueryRecord.
func (QueryRecord) TableName() string { return "query_records" }
