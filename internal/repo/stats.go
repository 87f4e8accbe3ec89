// Package repo – aggregate queries over the audit log for the ops stats
// endpoint.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-report-bot/internal/domain"
)

// LastQueryAt returns the creation time of the newest audit record, or nil
// when the log is empty.
func LastQueryAt(ctx context.Context, db *gorm.DB) (*time.Time, error) {
	// ORDER BY + LIMIT rather than MAX(): SQLite returns MAX() as TEXT.
	var row struct {
		CreatedAt time.Time
	}
	res := db.WithContext(ctx).Model(&domain.QueryRecord{}).
		Select("created_at").
		Order("created_at DESC").
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &row.CreatedAt, nil
}
