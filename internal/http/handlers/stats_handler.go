package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// StatsResponse is the body of GET {API_BASE_PATH}/stats. The audit-backed
// fields are omitted when the audit log is disabled.
type StatsResponse struct {
	CacheEntries int              `json:"cache_entries"`
	TrackedUsers int              `json:"tracked_users"`
	Since        *time.Time       `json:"since,omitempty"`
	Queries      map[string]int64 `json:"queries,omitempty"`
	LastQueryAt  *time.Time       `json:"last_query_at,omitempty"`
	UserQueries  *int64           `json:"user_queries,omitempty"`
}

// Stats serves the bot counters:
//
//	GET {API_BASE_PATH}/stats?since=24h&user_id=42
//
// since is an optional Go duration bounding the audited query window; it is
// counted back from now. Without it every retained record is counted.
// user_id adds that user's query count over the same window.
func (h *Handlers) Stats(c *gin.Context) {
	var since time.Time
	resp := StatsResponse{
		CacheEntries: h.stats.CacheEntries(),
		TrackedUsers: h.stats.TrackedUsers(),
	}

	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid since duration")
			return
		}
		since = h.now().Add(-d).UTC()
		resp.Since = &since
	}

	var userID int64
	rawUser := strings.TrimSpace(c.Query("user_id"))
	if rawUser != "" {
		id, err := strconv.ParseInt(rawUser, 10, 64)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid user_id")
			return
		}
		userID = id
	}

	ctx := c.Request.Context()
	counts, err := h.stats.OutcomeCounts(ctx, since)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, "could not load query stats")
		return
	}
	if counts == nil {
		ok(c, http.StatusOK, resp)
		return
	}
	resp.Queries = counts

	if resp.LastQueryAt, err = h.stats.LastQueryAt(ctx); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, "could not load query stats")
		return
	}
	if rawUser != "" {
		n, err := h.stats.UserQueryCount(ctx, userID, since)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, "could not load user stats")
			return
		}
		resp.UserQueries = &n
	}

	ok(c, http.StatusOK, resp)
}
