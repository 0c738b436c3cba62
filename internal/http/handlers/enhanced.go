package handlers

import (
	"context"

	"github.com/valyala/fasthttp"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"pageinsight/internal/config"
	dbpkg "pageinsight/internal/db"
)

// EventRoute maps an interaction endpoint onto the generic events table.
// The *Key fields name the payload keys copied into the typed columns;
// every other key except sessionId, pageUrl and ipAddress lands in
// custom_data.
type EventRoute struct {
	Path     string
	Kind     string
	Required []string
	FailMsg  string

	TypeKey     string
	CategoryKey string
	ActionKey   string
	LabelKey    string
	ValueKey    string
}

// EventRoutes lists the interaction endpoints served under /api/analytics.
var EventRoutes = []EventRoute{
	{
		Path: "/click-tracking", Kind: dbpkg.KindClick,
		Required: []string{"sessionId", "elementType"}, FailMsg: "Failed to track click",
		TypeKey: "elementType", CategoryKey: "elementId", ActionKey: "elementClass", LabelKey: "elementText",
	},
	{
		Path: "/scroll-tracking", Kind: dbpkg.KindScroll,
		Required: []string{"sessionId", "pageUrl"}, FailMsg: "Failed to track scroll",
		ValueKey: "scrollDepth",
	},
	{
		Path: "/navigation-path", Kind: dbpkg.KindNavigation,
		Required: []string{"sessionId", "pageUrl"}, FailMsg: "Failed to track navigation path",
		CategoryKey: "funnelName", ActionKey: "conversionStep", LabelKey: "pageTitle", ValueKey: "stepNumber",
	},
	{
		Path: "/form-analytics", Kind: dbpkg.KindForm,
		Required: []string{"sessionId", "formId"}, FailMsg: "Failed to track form analytics",
		TypeKey: "actionType", CategoryKey: "formId", ActionKey: "fieldName", LabelKey: "formName", ValueKey: "completionTime",
	},
	{
		Path: "/media-engagement", Kind: dbpkg.KindMedia,
		Required: []string{"sessionId", "mediaType", "engagementType"}, FailMsg: "Failed to track media engagement",
		TypeKey: "mediaType", ActionKey: "engagementType", LabelKey: "mediaId", ValueKey: "engagementValue",
	},
	{
		Path: "/search", Kind: dbpkg.KindSearch,
		Required: []string{"sessionId", "searchQuery"}, FailMsg: "Failed to track search",
		TypeKey: "searchType", CategoryKey: "searchEngine", LabelKey: "searchQuery",
	},
	{
		Path: "/conversion-goal", Kind: dbpkg.KindConversion,
		Required: []string{"sessionId", "goalName"}, FailMsg: "Failed to track conversion goal",
		TypeKey: "goalName", CategoryKey: "goalData.type", ValueKey: "goalData.value",
	},
	{
		Path: "/security-event", Kind: dbpkg.KindSecurity,
		Required: []string{"sessionId", "eventType"}, FailMsg: "Failed to track security event",
		TypeKey: "eventType", CategoryKey: "severity", ActionKey: "actionTaken",
	},
	{
		Path: "/user-segment", Kind: dbpkg.KindSegment,
		Required: []string{"sessionId", "segment"}, FailMsg: "Failed to track user segment",
		TypeKey: "segment",
	},
	{
		Path: "/feature-usage", Kind: dbpkg.KindFeature,
		Required: []string{"sessionId", "featureName"}, FailMsg: "Failed to track feature usage",
		TypeKey: "featureName", ValueKey: "usageCount",
	},
	{
		Path: "/churn-prediction", Kind: dbpkg.KindChurn,
		Required: []string{"sessionId"}, FailMsg: "Failed to track churn prediction",
		TypeKey: "churnRisk", ValueKey: "engagementScore",
	},
}

// event builds the row for p. Dotted keys read nested objects and leave
// the parent object in custom_data.
func (r EventRoute) event(p payload, meta requestMeta) dbpkg.Event {
	ev := dbpkg.Event{
		Kind:          r.Kind,
		SessionID:     p.String("sessionId"),
		EventType:     p.String(r.TypeKey),
		EventCategory: p.String(r.CategoryKey),
		EventAction:   p.String(r.ActionKey),
		EventLabel:    p.String(r.LabelKey),
		PageURL:       p.String("pageUrl"),
		IPAddress:     meta.IP,
	}
	if r.ValueKey != "" {
		ev.EventValue = p.Float(r.ValueKey)
	}
	consumed := []string{"sessionId", "pageUrl", "ipAddress", r.TypeKey, r.CategoryKey, r.ActionKey, r.LabelKey, r.ValueKey}
	if rest := p.without(consumed...); rest != nil {
		ev.CustomData = datatypes.JSONMap(rest)
	}
	return ev
}

// EventKind serves one EventRoute.
func EventKind(db *gorm.DB, cfg *config.Config, route EventRoute) fasthttp.RequestHandler {
	return ingestHandler(cfg, route.Kind, route.Required, route.FailMsg, func(ctx context.Context, p payload, meta requestMeta) error {
		return dbpkg.InsertEvents(ctx, db, []dbpkg.Event{route.event(p, meta)})
	})
}

// Heatmap stores one heatmap event per point in heatmapData, in a single
// batch.
func Heatmap(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	required := []string{"sessionId", "pageUrl"}
	return ingestHandler(cfg, dbpkg.KindHeatmap, required, "Failed to track heatmap data", func(ctx context.Context, p payload, meta requestMeta) error {
		var points []any
		if raw, ok := p.lookup("heatmapData"); ok {
			list, isList := raw.([]any)
			if !isList {
				return &validationError{msg: "heatmapData must be an array"}
			}
			points = list
		}

		sessionID, pageURL := p.String("sessionId"), p.String("pageUrl")
		events := make([]dbpkg.Event, 0, len(points))
		for _, raw := range points {
			pt, ok := raw.(map[string]any)
			if !ok {
				return &validationError{msg: "heatmapData entries must be objects"}
			}
			point := payload(pt)
			kind := point.String("type")
			if kind == "" {
				kind = "click"
			}
			events = append(events, dbpkg.Event{
				Kind:       dbpkg.KindHeatmap,
				SessionID:  sessionID,
				EventType:  kind,
				EventLabel: point.String("element"),
				PageURL:    pageURL,
				IPAddress:  meta.IP,
				CustomData: datatypes.JSONMap(point.without("type", "element")),
			})
		}
		return dbpkg.InsertEvents(ctx, db, events)
	})
}

// ContentEngagement writes time on page and scroll depth back onto the
// session's existing page views for pageUrl.
func ContentEngagement(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	required := []string{"sessionId", "pageUrl"}
	return ingestHandler(cfg, "content_engagement", required, "Failed to track content engagement", func(ctx context.Context, p payload, _ requestMeta) error {
		_, err := dbpkg.UpdateEngagement(ctx, db, p.String("sessionId"), p.String("pageUrl"), p.Int("timeOnPage"), p.Float("scrollDepth"))
		return err
	})
}

// TraitRoute maps an endpoint onto a partial enhanced-session merge.
type TraitRoute struct {
	Path     string
	Kind     string
	Required []string
	FailMsg  string
	Update   func(p payload) dbpkg.EnhancedUpdate
}

// TraitRoutes lists the session attribute endpoints served under
// /api/analytics.
var TraitRoutes = []TraitRoute{
	{
		Path: "/device-info", Kind: "device_info",
		Required: []string{"sessionId"}, FailMsg: "Failed to track device info",
		Update: func(p payload) dbpkg.EnhancedUpdate {
			return dbpkg.EnhancedUpdate{
				DeviceType:       p.StringPtr("deviceType"),
				Browser:          p.StringPtr("browser"),
				OS:               p.StringPtr("os"),
				UserAgent:        p.StringPtr("userAgent"),
				ScreenResolution: p.StringPtr("screenResolution"),
				ViewportSize:     p.StringPtr("viewportSize"),
			}
		},
	},
	{
		Path: "/geographic-info", Kind: "geographic_info",
		Required: []string{"sessionId"}, FailMsg: "Failed to track geographic info",
		Update: func(p payload) dbpkg.EnhancedUpdate {
			return dbpkg.EnhancedUpdate{
				Timezone: p.StringPtr("timezone"),
				Language: p.StringPtr("language"),
				Country:  p.StringPtr("country"),
			}
		},
	},
	{
		Path: "/visitor-type", Kind: "visitor_type",
		Required: []string{"sessionId"}, FailMsg: "Failed to track visitor type",
		Update: func(p payload) dbpkg.EnhancedUpdate {
			return dbpkg.EnhancedUpdate{
				IsReturning: p.Bool("isReturning"),
				FirstVisit:  p.Time("firstVisit"),
			}
		},
	},
	{
		Path: "/traffic-source", Kind: "traffic_source",
		Required: []string{"sessionId"}, FailMsg: "Failed to track traffic source",
		Update: func(p payload) dbpkg.EnhancedUpdate {
			return dbpkg.EnhancedUpdate{
				Referrer:      p.StringPtr("referrer"),
				TrafficSource: p.StringPtr("trafficSource"),
				UTMSource:     p.StringPtr("utmParams.utm_source"),
				UTMMedium:     p.StringPtr("utmParams.utm_medium"),
				UTMCampaign:   p.StringPtr("utmParams.utm_campaign"),
				UTMTerm:       p.StringPtr("utmParams.utm_term"),
				UTMContent:    p.StringPtr("utmParams.utm_content"),
			}
		},
	},
	{
		Path: "/consent", Kind: "consent",
		Required: []string{"sessionId"}, FailMsg: "Failed to track consent",
		Update: func(p payload) dbpkg.EnhancedUpdate {
			return dbpkg.EnhancedUpdate{ConsentGiven: p.Bool("consent")}
		},
	},
	{
		Path: "/exit-intent", Kind: "exit_intent",
		Required: []string{"sessionId", "pageUrl"}, FailMsg: "Failed to track exit intent",
		Update: func(payload) dbpkg.EnhancedUpdate {
			detected := true
			return dbpkg.EnhancedUpdate{ExitIntentDetected: &detected}
		},
	},
	{
		Path: "/social-share", Kind: "social_share",
		Required: []string{"sessionId", "platform"}, FailMsg: "Failed to track social share",
		Update: func(payload) dbpkg.EnhancedUpdate {
			return dbpkg.EnhancedUpdate{SocialShares: 1}
		},
	},
}

// SessionTrait serves one TraitRoute.
func SessionTrait(sessions dbpkg.EnhancedSessionStore, cfg *config.Config, route TraitRoute) fasthttp.RequestHandler {
	return ingestHandler(cfg, route.Kind, route.Required, route.FailMsg, func(ctx context.Context, p payload, _ requestMeta) error {
		return sessions.Merge(ctx, p.String("sessionId"), route.Update(p))
	})
}

// SessionEnd records the client-reported visit length (totalTimeSpent, ms).
func SessionEnd(sessions dbpkg.SessionStore, cfg *config.Config) fasthttp.RequestHandler {
	required := []string{"sessionId"}
	return ingestHandler(cfg, "session_end", required, "Failed to track session end", func(ctx context.Context, p payload, _ requestMeta) error {
		var seconds int64
		if ms := p.Int("totalTimeSpent"); ms != nil {
			seconds = *ms / 1000
		}
		return sessions.RecordSessionEnd(ctx, p.String("sessionId"), seconds)
	})
}
