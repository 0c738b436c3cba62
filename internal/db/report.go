package db

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Metric names accepted by Reporter.Report.
const (
	MetricOverview     = "overview"
	MetricPageViews    = "pageviews"
	MetricEvents       = "events"
	MetricPerformance  = "performance"
	MetricErrors       = "errors"
	MetricInteractions = "interactions"
	MetricSummary      = "summary"
)

// ErrUnknownMetric is returned for a metric name Report does not serve.
var ErrUnknownMetric = errors.New("invalid metric type")

// Period is a rolling reporting window ending at query time.
type Period struct {
	Label string
	Days  int
}

var periods = map[string]Period{
	"1d":  {Label: "1d", Days: 1},
	"7d":  {Label: "7d", Days: 7},
	"30d": {Label: "30d", Days: 30},
	"90d": {Label: "90d", Days: 90},
}

// DefaultPeriod is used when the requested period is empty or unknown.
var DefaultPeriod = periods["7d"]

// ParsePeriod maps 1d|7d|30d|90d to a Period. Anything else falls back to
// DefaultPeriod rather than failing.
func ParsePeriod(s string) Period {
	if p, ok := periods[strings.ToLower(strings.TrimSpace(s))]; ok {
		return p
	}
	return DefaultPeriod
}

// Since returns the inclusive lower bound of the window.
func (p Period) Since(now time.Time) time.Time {
	return now.UTC().AddDate(0, 0, -p.Days)
}

// window is a [from, to) time range; a zero to leaves it open-ended.
type window struct {
	from, to time.Time
}

func (w window) scope(column string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		tx = tx.Where(column+" >= ?", w.from)
		if !w.to.IsZero() {
			tx = tx.Where(column+" < ?", w.to)
		}
		return tx
	}
}

type PageCount struct {
	PageURL string `gorm:"column:page_url" json:"page_url"`
	Views   int64  `gorm:"column:views" json:"views"`
}

type DeviceCount struct {
	DeviceType string `gorm:"column:device_type" json:"device_type"`
	Count      int64  `gorm:"column:count" json:"count"`
}

type BrowserCount struct {
	Browser string `gorm:"column:browser" json:"browser"`
	Count   int64  `gorm:"column:count" json:"count"`
}

type Overview struct {
	TotalVisitors      int64          `json:"totalVisitors"`
	TotalPageViews     int64          `json:"totalPageViews"`
	TotalSessions      int64          `json:"totalSessions"`
	BounceRate         int64          `json:"bounceRate"`
	AvgSessionDuration int64          `json:"avgSessionDuration"`
	TopPages           []PageCount    `json:"topPages"`
	DeviceBreakdown    []DeviceCount  `json:"deviceBreakdown"`
	BrowserBreakdown   []BrowserCount `json:"browserBreakdown"`
}

type DailyViews struct {
	Date           string `gorm:"column:date" json:"date"`
	Views          int64  `gorm:"column:views" json:"views"`
	UniqueVisitors int64  `gorm:"column:unique_visitors" json:"unique_visitors"`
}

type PageViewReport struct {
	PageViews []DailyViews `json:"pageViews"`
}

type EventCount struct {
	EventType     string `gorm:"column:event_type" json:"event_type"`
	EventCategory string `gorm:"column:event_category" json:"event_category"`
	EventAction   string `gorm:"column:event_action" json:"event_action"`
	Count         int64  `gorm:"column:count" json:"count"`
}

type EventReport struct {
	Events []EventCount `json:"events"`
}

// PerformanceAverages holds column-wise means; an empty window yields zeros.
type PerformanceAverages struct {
	AvgLoadTime  float64 `json:"avg_load_time"`
	AvgDOMLoaded float64 `json:"avg_dom_loaded"`
	AvgFCP       float64 `json:"avg_fcp"`
	AvgLCP       float64 `json:"avg_lcp"`
	AvgFID       float64 `json:"avg_fid"`
	AvgCLS       float64 `json:"avg_cls"`
	AvgTTI       float64 `json:"avg_tti"`
}

type PerformanceReport struct {
	Performance PerformanceAverages `json:"performance"`
}

type ErrorCount struct {
	ErrorType      string `gorm:"column:error_type" json:"error_type"`
	ErrorMessage   string `gorm:"column:error_message" json:"error_message"`
	Count          int64  `gorm:"column:count" json:"count"`
	LastOccurrence string `gorm:"column:last_occurrence" json:"last_occurrence"`
}

type ErrorReport struct {
	Errors []ErrorCount `json:"errors"`
}

type KindCount struct {
	Kind  string `gorm:"column:kind" json:"kind"`
	Count int64  `gorm:"column:count" json:"count"`
}

type InteractionReport struct {
	Interactions []KindCount `json:"interactions"`
}

type SummaryReport struct {
	Days []DailySummary `json:"days"`
}

// Reporter answers read-only metric queries over a rolling window.
type Reporter struct {
	db *gorm.DB
}

func NewReporter(db *gorm.DB) *Reporter {
	return &Reporter{db: db}
}

// Report computes metric over period ending at now. The result is fully
// populated or an error is returned; there are no partial results.
func (r *Reporter) Report(ctx context.Context, metric string, period Period, now time.Time) (any, error) {
	since := period.Since(now)
	switch metric {
	case MetricOverview:
		return r.overview(ctx, window{from: since})
	case MetricPageViews:
		return r.pageViews(ctx, since)
	case MetricEvents:
		return r.events(ctx, since)
	case MetricPerformance:
		return r.performance(ctx, since)
	case MetricErrors:
		return r.errorCounts(ctx, since)
	case MetricInteractions:
		return r.interactions(ctx, since)
	case MetricSummary:
		return r.summary(ctx, since)
	default:
		return nil, ErrUnknownMetric
	}
}

func (r *Reporter) overview(ctx context.Context, w window) (*Overview, error) {
	out := &Overview{}
	var bounce, avgDuration struct {
		Value *float64 `gorm:"column:value"`
	}

	g, gctx := errgroup.WithContext(ctx)
	pageViews := func() *gorm.DB {
		return r.db.WithContext(gctx).Model(&PageView{}).Scopes(w.scope("created_at"))
	}
	sessions := func() *gorm.DB {
		return r.db.WithContext(gctx).Model(&Session{}).Scopes(w.scope("first_visit"))
	}

	g.Go(func() error {
		return pageViews().Distinct("session_id").Count(&out.TotalVisitors).Error
	})
	g.Go(func() error {
		return pageViews().Count(&out.TotalPageViews).Error
	})
	g.Go(func() error {
		return sessions().Count(&out.TotalSessions).Error
	})
	g.Go(func() error {
		// Sessions still on their first view count as bounces, so the rate
		// reflects state at query time.
		return sessions().
			Select("AVG(CASE WHEN total_page_views = 1 THEN 1.0 ELSE 0.0 END) AS value").
			Scan(&bounce).Error
	})
	g.Go(func() error {
		return sessions().Select("AVG(total_time_spent) AS value").Scan(&avgDuration).Error
	})
	g.Go(func() error {
		return pageViews().
			Select("page_url, COUNT(*) AS views").
			Group("page_url").
			Order("views DESC, page_url").
			Limit(10).
			Scan(&out.TopPages).Error
	})
	g.Go(func() error {
		return sessions().
			Select("device_type, COUNT(*) AS count").
			Group("device_type").
			Order("count DESC, device_type").
			Scan(&out.DeviceBreakdown).Error
	})
	g.Go(func() error {
		return sessions().
			Select("browser, COUNT(*) AS count").
			Group("browser").
			Order("count DESC, browser").
			Scan(&out.BrowserBreakdown).Error
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out.BounceRate = int64(math.Round(deref(bounce.Value) * 100))
	out.AvgSessionDuration = int64(math.Round(deref(avgDuration.Value)))
	out.TopPages = nonNil(out.TopPages)
	out.DeviceBreakdown = nonNil(out.DeviceBreakdown)
	out.BrowserBreakdown = nonNil(out.BrowserBreakdown)
	return out, nil
}

func (r *Reporter) pageViews(ctx context.Context, since time.Time) (*PageViewReport, error) {
	day := dayExpr(r.db, "created_at")
	var rows []DailyViews
	err := r.db.WithContext(ctx).Model(&PageView{}).
		Select(day+" AS date, COUNT(*) AS views, COUNT(DISTINCT session_id) AS unique_visitors").
		Where("created_at >= ?", since).
		Group(day).
		Order("date DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return &PageViewReport{PageViews: nonNil(rows)}, nil
}

func (r *Reporter) events(ctx context.Context, since time.Time) (*EventReport, error) {
	var rows []EventCount
	err := r.db.WithContext(ctx).Model(&Event{}).
		Select("event_type, event_category, event_action, COUNT(*) AS count").
		Where("kind = ? AND created_at >= ?", KindEvent, since).
		Group("event_type, event_category, event_action").
		Order("count DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return &EventReport{Events: nonNil(rows)}, nil
}

func (r *Reporter) performance(ctx context.Context, since time.Time) (*PerformanceReport, error) {
	var row struct {
		AvgLoadTime  *float64 `gorm:"column:avg_load_time"`
		AvgDOMLoaded *float64 `gorm:"column:avg_dom_loaded"`
		AvgFCP       *float64 `gorm:"column:avg_fcp"`
		AvgLCP       *float64 `gorm:"column:avg_lcp"`
		AvgFID       *float64 `gorm:"column:avg_fid"`
		AvgCLS       *float64 `gorm:"column:avg_cls"`
		AvgTTI       *float64 `gorm:"column:avg_tti"`
	}
	err := r.db.WithContext(ctx).Model(&PerformanceMetric{}).
		Select(`AVG(load_time) AS avg_load_time,
			AVG(dom_content_loaded) AS avg_dom_loaded,
			AVG(first_contentful_paint) AS avg_fcp,
			AVG(largest_contentful_paint) AS avg_lcp,
			AVG(first_input_delay) AS avg_fid,
			AVG(cumulative_layout_shift) AS avg_cls,
			AVG(time_to_interactive) AS avg_tti`).
		Where("created_at >= ?", since).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &PerformanceReport{Performance: PerformanceAverages{
		AvgLoadTime:  deref(row.AvgLoadTime),
		AvgDOMLoaded: deref(row.AvgDOMLoaded),
		AvgFCP:       deref(row.AvgFCP),
		AvgLCP:       deref(row.AvgLCP),
		AvgFID:       deref(row.AvgFID),
		AvgCLS:       deref(row.AvgCLS),
		AvgTTI:       deref(row.AvgTTI),
	}}, nil
}

func (r *Reporter) errorCounts(ctx context.Context, since time.Time) (*ErrorReport, error) {
	var rows []ErrorCount
	err := r.db.WithContext(ctx).Model(&ErrorRecord{}).
		Select("error_type, error_message, COUNT(*) AS count, MAX(created_at) AS last_occurrence").
		Where("created_at >= ?", since).
		Group("error_type, error_message").
		Order("count DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].LastOccurrence = normalizeTimestamp(rows[i].LastOccurrence)
	}
	return &ErrorReport{Errors: nonNil(rows)}, nil
}

func (r *Reporter) interactions(ctx context.Context, since time.Time) (*InteractionReport, error) {
	var rows []KindCount
	err := r.db.WithContext(ctx).Model(&Event{}).
		Select("kind, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("kind").
		Order("count DESC, kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return &InteractionReport{Interactions: nonNil(rows)}, nil
}

func (r *Reporter) summary(ctx context.Context, since time.Time) (*SummaryReport, error) {
	var rows []DailySummary
	err := r.db.WithContext(ctx).
		Where("date >= ?", since.Format(dateLayout)).
		Order("date DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return &SummaryReport{Days: nonNil(rows)}, nil
}

// Timestamp layouts seen when aggregates come back as text: the SQLite
// driver's storage format and RFC 3339 from PostgreSQL.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// normalizeTimestamp rewrites a driver-formatted timestamp as RFC 3339 UTC.
// Unparseable input is returned unchanged.
func normalizeTimestamp(s string) string {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return s
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
