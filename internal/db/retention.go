package db

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runRetentionOnce deletes append-only rows created before cutoff. Sessions
// and daily summaries are kept. It returns the number of rows removed.
func runRetentionOnce(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	var total int64
	for _, model := range []any{&PageView{}, &Event{}, &PerformanceMetric{}, &ErrorRecord{}} {
		res := db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(model)
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

// StartRetentionWorker runs the cleanup once at startup and then once per
// day. It does nothing when days is not positive.
func StartRetentionWorker(ctx context.Context, db *gorm.DB, days int) {
	if days <= 0 {
		return
	}
	sweep := func(now time.Time) {
		n, err := runRetentionOnce(ctx, db, now.AddDate(0, 0, -days))
		if err != nil {
			zap.S().Errorw("retention cleanup failed", "error", err)
			return
		}
		if n > 0 {
			zap.S().Infow("retention cleanup", "deleted", n, "days", days)
		}
	}

	go func() {
		sweep(time.Now())

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				sweep(t)
			}
		}
	}()
}
