// Package repo – query audit log.
//
// One row is written per handled query (including rate-limited ones). Rows
// are never read back by the bot itself; they back the ops stats endpoint
// and offline analysis.
//
// Functions:
//
//   - CreateQueryRecord(ctx, db, rec) -> error
//   - OutcomeCounts(ctx, db, since) -> map[outcome]count, error
//   - UserQueryCount(ctx, db, userID, since) -> count, error
//   - PruneQueryRecords(ctx, db, before) -> deleted, error
//
// LastQueryAt lives in stats.go.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-report-bot/internal/domain"
)

// CreateQueryRecord inserts rec, assigning its ID and CreatedAt when unset.
func CreateQueryRecord(ctx context.Context, db *gorm.DB, rec *domain.QueryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(rec).Error
}

// OutcomeCounts returns the number of records per outcome created at or after
// since. A zero since counts every record.
func OutcomeCounts(ctx context.Context, db *gorm.DB, since time.Time) (map[string]int64, error) {
	var rows []struct {
		Outcome string
		N       int64
	}
	q := db.WithContext(ctx).Model(&domain.QueryRecord{})
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}
	if err := q.Select("outcome, COUNT(*) AS n").Group("outcome").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Outcome] = r.N
	}
	return out, nil
}

// UserQueryCount returns how many queries userID made at or after since.
func UserQueryCount(ctx context.Context, db *gorm.DB, userID int64, since time.Time) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.QueryRecord{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&n).Error
	return n, err
}

// PruneQueryRecords deletes records created before the cutoff.
func PruneQueryRecords(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("created_at < ?", before).Delete(&domain.QueryRecord{})
	return res.RowsAffected, res.Error
}

// QueryLog adapts the package functions to the bot's audit interface.
type QueryLog struct {
	DB *gorm.DB
}

// RecordQuery inserts one audit row.
func (l QueryLog) RecordQuery(ctx context.Context, rec *domain.QueryRecord) error {
	return CreateQueryRecord(ctx, l.DB, rec)
}
