package db

import (
	"context"

	"gorm.io/gorm"
)

// eventBatchSize bounds the rows per INSERT when writing heatmap points.
const eventBatchSize = 200

// InsertPageView appends a page view row. The caller is responsible for the
// matching session upsert.
func InsertPageView(ctx context.Context, db *gorm.DB, pv *PageView) error {
	return db.WithContext(ctx).Create(pv).Error
}

// InsertEvents appends events in batches. An empty slice is a no-op.
func InsertEvents(ctx context.Context, db *gorm.DB, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(events, eventBatchSize).Error
}

func InsertPerformance(ctx context.Context, db *gorm.DB, m *PerformanceMetric) error {
	return db.WithContext(ctx).Create(m).Error
}

func InsertError(ctx context.Context, db *gorm.DB, e *ErrorRecord) error {
	return db.WithContext(ctx).Create(e).Error
}

// UpdateEngagement records time on page and scroll depth on the session's
// page views for pageURL. Nil values are left untouched. It returns the
// number of rows changed.
func UpdateEngagement(ctx context.Context, db *gorm.DB, sessionID, pageURL string, timeOnPage *int64, scrollDepth *float64) (int64, error) {
	updates := map[string]any{}
	if timeOnPage != nil {
		updates["time_on_page"] = *timeOnPage
	}
	if scrollDepth != nil {
		updates["scroll_depth"] = *scrollDepth
	}
	if len(updates) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Model(&PageView{}).
		Where("session_id = ? AND page_url = ?", sessionID, pageURL).
		Updates(updates)
	return res.RowsAffected, res.Error
}
