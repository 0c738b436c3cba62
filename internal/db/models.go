package db

import (
	"time"

	"gorm.io/datatypes"
)

// Session is the single mutable row kept per visitor session. It is
// written only through SessionStore, which keeps one row per SessionID.
type Session struct {
	ID uint `gorm:"primaryKey" json:"-"`

	SessionID string `gorm:"uniqueIndex;size:128;not null" json:"sessionId"`

	FirstVisit   time.Time `gorm:"index;not null" json:"firstVisit"`
	LastActivity time.Time `gorm:"not null" json:"lastActivity"`

	// TotalPageViews only ever increases.
	TotalPageViews int64 `gorm:"not null" json:"totalPageViews"`
	// TotalTimeSpent is in seconds, as last reported by the client.
	TotalTimeSpent int64 `gorm:"not null" json:"totalTimeSpent"`

	IPAddress  string `gorm:"column:ip_address;size:64" json:"ipAddress"`
	UserAgent  string `json:"userAgent"`
	DeviceType string `gorm:"size:32" json:"deviceType"`
	Browser    string `gorm:"size:64" json:"browser"`
	OS         string `gorm:"column:os;size:64" json:"os"`

	EntryPage string `json:"entryPage"`
	ExitPage  string `json:"exitPage"`

	// IsBounce is true while exactly one page view has been recorded.
	IsBounce bool `gorm:"not null" json:"isBounce"`
}

func (Session) TableName() string {
	return "user_sessions"
}

// EnhancedSession is the extended session shape carrying marketing,
// audience, consent and engagement attributes. Fields are merged in as
// the tracker reports them.
type EnhancedSession struct {
	ID uint `gorm:"primaryKey" json:"-"`

	SessionID string `gorm:"uniqueIndex;size:128;not null" json:"sessionId"`

	FirstVisit   time.Time `gorm:"not null" json:"firstVisit"`
	LastActivity time.Time `gorm:"not null" json:"lastActivity"`

	DeviceType       string `gorm:"size:32" json:"deviceType"`
	Browser          string `gorm:"size:64" json:"browser"`
	OS               string `gorm:"column:os;size:64" json:"os"`
	UserAgent        string `json:"userAgent"`
	ScreenResolution string `gorm:"size:32" json:"screenResolution"`
	ViewportSize     string `gorm:"size:32" json:"viewportSize"`

	Timezone    string `gorm:"size:64" json:"timezone"`
	Language    string `gorm:"size:32" json:"language"`
	Country     string `gorm:"size:64" json:"country"`
	IsReturning bool   `json:"isReturning"`

	Referrer      string `json:"referrer"`
	TrafficSource string `gorm:"size:64" json:"trafficSource"`
	UTMSource     string `gorm:"column:utm_source" json:"utmSource"`
	UTMMedium     string `gorm:"column:utm_medium" json:"utmMedium"`
	UTMCampaign   string `gorm:"column:utm_campaign" json:"utmCampaign"`
	UTMTerm       string `gorm:"column:utm_term" json:"utmTerm"`
	UTMContent    string `gorm:"column:utm_content" json:"utmContent"`

	ConsentGiven       bool  `json:"consentGiven"`
	ExitIntentDetected bool  `json:"exitIntentDetected"`
	SocialShares       int64 `gorm:"not null" json:"socialShares"`
}

func (EnhancedSession) TableName() string {
	return "enhanced_sessions"
}

// PageView is an append-only record of one page load.
type PageView struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time `gorm:"index"`

	SessionID string `gorm:"index;size:128;not null"`
	PageURL   string `gorm:"column:page_url;index;not null"`
	PageTitle string
	Referrer  string
	UserAgent string
	IPAddress string `gorm:"column:ip_address;size:64"`

	TimeOnPage  *int64
	ScrollDepth *float64

	DeviceType       string `gorm:"size:32"`
	Browser          string `gorm:"size:64"`
	OS               string `gorm:"column:os;size:64"`
	ScreenResolution string `gorm:"size:32"`
	ViewportSize     string `gorm:"size:32"`
}

// Event kinds stored in the generic events table.
const (
	KindEvent      = "event"
	KindClick      = "click"
	KindScroll     = "scroll"
	KindNavigation = "navigation"
	KindForm       = "form"
	KindMedia      = "media"
	KindSearch     = "search"
	KindConversion = "conversion"
	KindHeatmap    = "heatmap"
	KindSecurity   = "security"
	KindSegment    = "segment"
	KindFeature    = "feature"
	KindChurn      = "churn"
)

// Event is the generic append-only interaction row. Kind discriminates
// the source; fields that have no dedicated column travel in CustomData.
type Event struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time `gorm:"index"`

	Kind      string `gorm:"index:idx_events_kind_type,priority:1;size:32;not null"`
	SessionID string `gorm:"index;size:128"`

	EventType     string `gorm:"index:idx_events_kind_type,priority:2;size:128"`
	EventCategory string `gorm:"size:128"`
	EventAction   string `gorm:"size:128"`
	EventLabel    string
	EventValue    *float64

	PageURL   string `gorm:"column:page_url"`
	IPAddress string `gorm:"column:ip_address;size:64"`

	CustomData datatypes.JSONMap `gorm:"type:json"`
}

// PerformanceMetric holds page load, paint and interactivity timings in ms
// (layout shift is unitless).
type PerformanceMetric struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time `gorm:"index"`

	SessionID string `gorm:"index;size:128;not null"`
	PageURL   string `gorm:"column:page_url;not null"`

	LoadTime               *float64
	DOMContentLoaded       *float64 `gorm:"column:dom_content_loaded"`
	FirstContentfulPaint   *float64
	LargestContentfulPaint *float64
	FirstInputDelay        *float64
	CumulativeLayoutShift  *float64
	TimeToInteractive      *float64

	ConnectionType string `gorm:"size:32"`
	DeviceMemory   *float64
}

// ErrorRecord is a client-side error report.
type ErrorRecord struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time `gorm:"index"`

	SessionID    string `gorm:"index;size:128"`
	ErrorType    string `gorm:"size:128;not null"`
	ErrorMessage string
	ErrorStack   string
	PageURL      string `gorm:"column:page_url"`
	UserAgent    string
	IPAddress    string `gorm:"column:ip_address;size:64"`
}

func (ErrorRecord) TableName() string {
	return "errors"
}

// DailySummary stores precomputed per-day aggregates, one row per UTC
// date. Filled by the rollup worker.
type DailySummary struct {
	ID uint `gorm:"primaryKey" json:"-"`

	Date string `gorm:"uniqueIndex;size:10;not null" json:"date"` // YYYY-MM-DD

	TotalVisitors      int64   `gorm:"not null" json:"totalVisitors"`
	TotalPageViews     int64   `gorm:"not null" json:"totalPageViews"`
	TotalSessions      int64   `gorm:"not null" json:"totalSessions"`
	BounceRate         float64 `gorm:"not null" json:"bounceRate"`
	AvgSessionDuration int64   `gorm:"not null" json:"avgSessionDuration"`

	TopPages         datatypes.JSON `json:"topPages"`
	DeviceBreakdown  datatypes.JSON `json:"deviceBreakdown"`
	BrowserBreakdown datatypes.JSON `json:"browserBreakdown"`

	UpdatedAt time.Time `json:"updatedAt"`
}

func (DailySummary) TableName() string {
	return "daily_summary"
}
