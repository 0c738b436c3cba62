package db

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const dateLayout = "2006-01-02"

// runRollupOnce recomputes the DailySummary row for the UTC day starting at
// dayStart and upserts it on date.
func runRollupOnce(ctx context.Context, db *gorm.DB, dayStart time.Time) error {
	dayStart = dayStart.UTC().Truncate(24 * time.Hour)

	ov, err := NewReporter(db).overview(ctx, window{from: dayStart, to: dayStart.Add(24 * time.Hour)})
	if err != nil {
		return err
	}

	topPages, err := json.Marshal(ov.TopPages)
	if err != nil {
		return err
	}
	devices, err := json.Marshal(ov.DeviceBreakdown)
	if err != nil {
		return err
	}
	browsers, err := json.Marshal(ov.BrowserBreakdown)
	if err != nil {
		return err
	}

	row := DailySummary{
		Date:               dayStart.Format(dateLayout),
		TotalVisitors:      ov.TotalVisitors,
		TotalPageViews:     ov.TotalPageViews,
		TotalSessions:      ov.TotalSessions,
		BounceRate:         float64(ov.BounceRate),
		AvgSessionDuration: ov.AvgSessionDuration,
		TopPages:           datatypes.JSON(topPages),
		DeviceBreakdown:    datatypes.JSON(devices),
		BrowserBreakdown:   datatypes.JSON(browsers),
	}

	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_visitors",
			"total_page_views",
			"total_sessions",
			"bounce_rate",
			"avg_session_duration",
			"top_pages",
			"device_breakdown",
			"browser_breakdown",
			"updated_at",
		}),
	}).Create(&row).Error
}

// rollupRecent refreshes yesterday and today so late page views landing
// just after midnight are folded into the right day.
func rollupRecent(ctx context.Context, db *gorm.DB, now time.Time) {
	today := now.UTC().Truncate(24 * time.Hour)
	for _, day := range []time.Time{today.Add(-24 * time.Hour), today} {
		if err := runRollupOnce(ctx, db, day); err != nil {
			zap.S().Errorw("daily rollup failed", "date", day.Format(dateLayout), "error", err)
		}
	}
}

// StartRollupWorker fills daily_summary at startup and then every hour
// until ctx is cancelled.
func StartRollupWorker(ctx context.Context, db *gorm.DB) {
	go func() {
		rollupRecent(ctx, db, time.Now())

		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				rollupRecent(ctx, db, t)
			}
		}
	}()
}
