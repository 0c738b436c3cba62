package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSessionNotFound is returned by SessionStore.Get for unknown ids.
var ErrSessionNotFound = errors.New("session not found")

// PageVisit is the slice of a page view that feeds the session row.
type PageVisit struct {
	SessionID  string
	PageURL    string
	IPAddress  string
	UserAgent  string
	DeviceType string
	Browser    string
	OS         string
	At         time.Time
}

// SessionStore keeps exactly one Session row per session id.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*Session, error)
	// RecordPageView creates the session on its first view and otherwise
	// bumps the counters, all in a single statement.
	RecordPageView(ctx context.Context, visit PageVisit) error
	// RecordSessionEnd stores the client-reported total time spent.
	RecordSessionEnd(ctx context.Context, sessionID string, seconds int64) error
}

// EnhancedSessionStore merges partial attribute updates into the
// extended session row.
type EnhancedSessionStore interface {
	GetEnhanced(ctx context.Context, sessionID string) (*EnhancedSession, error)
	Merge(ctx context.Context, sessionID string, update EnhancedUpdate) error
}

// GormSessionStore implements SessionStore and EnhancedSessionStore.
type GormSessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *GormSessionStore {
	return &GormSessionStore{db: db}
}

func (s *GormSessionStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *GormSessionStore) RecordPageView(ctx context.Context, visit PageVisit) error {
	at := visit.At
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	row := Session{
		SessionID:      visit.SessionID,
		FirstVisit:     at,
		LastActivity:   at,
		TotalPageViews: 1,
		IPAddress:      visit.IPAddress,
		UserAgent:      visit.UserAgent,
		DeviceType:     visit.DeviceType,
		Browser:        visit.Browser,
		OS:             visit.OS,
		EntryPage:      visit.PageURL,
		ExitPage:       visit.PageURL,
		IsBounce:       true,
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_activity":    at,
			"total_page_views": gorm.Expr("user_sessions.total_page_views + 1"),
			"is_bounce":        false,
			"exit_page":        visit.PageURL,
			"device_type":      gorm.Expr("COALESCE(NULLIF(user_sessions.device_type, ''), excluded.device_type)"),
			"browser":          gorm.Expr("COALESCE(NULLIF(user_sessions.browser, ''), excluded.browser)"),
			"os":               gorm.Expr("COALESCE(NULLIF(user_sessions.os, ''), excluded.os)"),
		}),
	}).Create(&row).Error
}

func (s *GormSessionStore) RecordSessionEnd(ctx context.Context, sessionID string, seconds int64) error {
	if seconds < 0 {
		seconds = 0
	}
	return s.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"total_time_spent": gorm.Expr("CASE WHEN total_time_spent > ? THEN total_time_spent ELSE ? END", seconds, seconds),
			"last_activity":    time.Now().UTC(),
		}).Error
}

// EnhancedUpdate lists the attributes to merge; nil fields are left as
// stored. SocialShares is added to the running count.
type EnhancedUpdate struct {
	FirstVisit *time.Time

	DeviceType       *string
	Browser          *string
	OS               *string
	UserAgent        *string
	ScreenResolution *string
	ViewportSize     *string

	Timezone    *string
	Language    *string
	Country     *string
	IsReturning *bool

	Referrer      *string
	TrafficSource *string
	UTMSource     *string
	UTMMedium     *string
	UTMCampaign   *string
	UTMTerm       *string
	UTMContent    *string

	ConsentGiven       *bool
	ExitIntentDetected *bool

	SocialShares int64
}

// apply copies set fields onto row and returns their column names.
func (u EnhancedUpdate) apply(row *EnhancedSession) []string {
	var cols []string
	setStr := func(col string, dst *string, v *string) {
		if v != nil {
			*dst = *v
			cols = append(cols, col)
		}
	}
	setBool := func(col string, dst *bool, v *bool) {
		if v != nil {
			*dst = *v
			cols = append(cols, col)
		}
	}

	if u.FirstVisit != nil {
		row.FirstVisit = u.FirstVisit.UTC()
		cols = append(cols, "first_visit")
	}
	setStr("device_type", &row.DeviceType, u.DeviceType)
	setStr("browser", &row.Browser, u.Browser)
	setStr("os", &row.OS, u.OS)
	setStr("user_agent", &row.UserAgent, u.UserAgent)
	setStr("screen_resolution", &row.ScreenResolution, u.ScreenResolution)
	setStr("viewport_size", &row.ViewportSize, u.ViewportSize)
	setStr("timezone", &row.Timezone, u.Timezone)
	setStr("language", &row.Language, u.Language)
	setStr("country", &row.Country, u.Country)
	setBool("is_returning", &row.IsReturning, u.IsReturning)
	setStr("referrer", &row.Referrer, u.Referrer)
	setStr("traffic_source", &row.TrafficSource, u.TrafficSource)
	setStr("utm_source", &row.UTMSource, u.UTMSource)
	setStr("utm_medium", &row.UTMMedium, u.UTMMedium)
	setStr("utm_campaign", &row.UTMCampaign, u.UTMCampaign)
	setStr("utm_term", &row.UTMTerm, u.UTMTerm)
	setStr("utm_content", &row.UTMContent, u.UTMContent)
	setBool("consent_given", &row.ConsentGiven, u.ConsentGiven)
	setBool("exit_intent_detected", &row.ExitIntentDetected, u.ExitIntentDetected)
	return cols
}

func (s *GormSessionStore) GetEnhanced(ctx context.Context, sessionID string) (*EnhancedSession, error) {
	var sess EnhancedSession
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Merge upserts the enhanced session in one statement: provided fields
// win, everything else keeps its stored value.
func (s *GormSessionStore) Merge(ctx context.Context, sessionID string, update EnhancedUpdate) error {
	now := time.Now().UTC()
	row := EnhancedSession{
		SessionID:    sessionID,
		FirstVisit:   now,
		LastActivity: now,
		SocialShares: update.SocialShares,
	}
	cols := update.apply(&row)

	set := clause.AssignmentColumns(append(cols, "last_activity"))
	set = append(set, clause.Assignment{
		Column: clause.Column{Name: "social_shares"},
		Value:  gorm.Expr("enhanced_sessions.social_shares + excluded.social_shares"),
	})

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: set,
	}).Create(&row).Error
}
