package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"pageinsight/internal/config"
	dbpkg "pageinsight/internal/db"
)

var (
	ingestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pageinsight",
			Name:      "ingested_total",
			Help:      "Total number of stored ingest payloads by kind.",
		},
		[]string{"kind"},
	)
	ingestRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pageinsight",
			Name:      "ingest_rejected_total",
			Help:      "Total number of ingest payloads rejected, by kind and reason.",
		},
		[]string{"kind", "reason"},
	)
	sessionUpsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pageinsight",
			Name:      "session_upserts_total",
			Help:      "Session upserts triggered by page views, by result.",
		},
		[]string{"result"},
	)
	reportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pageinsight",
			Name:      "report_duration_seconds",
			Help:      "Histogram of analytics report query durations in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"metric"},
	)

	registerOnce sync.Once
)

// InitPrometheusMetrics registers the collectors with the default registry.
// Calling it more than once is harmless.
func InitPrometheusMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ingestedTotal, ingestRejectedTotal, sessionUpsertsTotal, reportDuration)
	})
}

// storeTimeout bounds the database work behind a single request.
const storeTimeout = 10 * time.Second

// requestMeta carries what the server stamps onto rows when the payload
// leaves it out.
type requestMeta struct {
	IP        string
	UserAgent string
}

func metaFor(ctx *fasthttp.RequestCtx, p payload) requestMeta {
	m := requestMeta{IP: p.String("ipAddress"), UserAgent: p.String("userAgent")}
	if m.IP == "" {
		m.IP = clientIP(ctx)
	}
	if m.UserAgent == "" {
		m.UserAgent = string(ctx.UserAgent())
	}
	return m
}

// ingestFunc persists one validated payload.
type ingestFunc func(ctx context.Context, p payload, meta requestMeta) error

// validationError is a malformed (rather than incomplete) payload.
type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }

// ingestHandler is the shared ingest envelope: decode, check required
// keys, write, answer {success:true}. failMsg is the 500 message.
func ingestHandler(cfg *config.Config, kind string, required []string, failMsg string, write ingestFunc) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		p, err := decodePayload(ctx.PostBody())
		if err != nil {
			ingestRejectedTotal.WithLabelValues(kind, "invalid_json").Inc()
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := requireFields(p, required); err != nil {
			ingestRejectedTotal.WithLabelValues(kind, "missing_field").Inc()
			errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}

		storeCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		if err := write(storeCtx, p, metaFor(ctx, p)); err != nil {
			var verr *validationError
			if errors.As(err, &verr) {
				ingestRejectedTotal.WithLabelValues(kind, "invalid_field").Inc()
				errResponse(ctx, fasthttp.StatusBadRequest, verr.msg)
				return
			}
			ingestRejectedTotal.WithLabelValues(kind, "storage").Inc()
			storageError(ctx, cfg, failMsg, err)
			return
		}

		ingestedTotal.WithLabelValues(kind).Inc()
		success(ctx)
	}
}

// PageView stores the view and then upserts its session. The two writes
// are independent; a failed upsert leaves the view in place.
func PageView(db *gorm.DB, sessions dbpkg.SessionStore, cfg *config.Config) fasthttp.RequestHandler {
	required := []string{"sessionId", "pageUrl"}
	return ingestHandler(cfg, "pageview", required, "Failed to track page view", func(ctx context.Context, p payload, meta requestMeta) error {
		pv := dbpkg.PageView{
			SessionID:        p.String("sessionId"),
			PageURL:          p.String("pageUrl"),
			PageTitle:        p.String("pageTitle"),
			Referrer:         p.String("referrer"),
			UserAgent:        meta.UserAgent,
			IPAddress:        meta.IP,
			TimeOnPage:       p.Int("timeOnPage"),
			ScrollDepth:      p.Float("scrollDepth"),
			DeviceType:       p.String("deviceType"),
			Browser:          p.String("browser"),
			OS:               p.String("os"),
			ScreenResolution: p.String("screenResolution"),
			ViewportSize:     p.String("viewportSize"),
		}
		if err := dbpkg.InsertPageView(ctx, db, &pv); err != nil {
			return err
		}

		err := sessions.RecordPageView(ctx, dbpkg.PageVisit{
			SessionID:  pv.SessionID,
			PageURL:    pv.PageURL,
			IPAddress:  meta.IP,
			UserAgent:  meta.UserAgent,
			DeviceType: pv.DeviceType,
			Browser:    pv.Browser,
			OS:         pv.OS,
			At:         pv.CreatedAt,
		})
		if err != nil {
			sessionUpsertsTotal.WithLabelValues("error").Inc()
			zap.S().Warnw("session upsert failed after page view", "session_id", pv.SessionID, "error", err)
			return err
		}
		sessionUpsertsTotal.WithLabelValues("ok").Inc()
		return nil
	})
}

// Event stores a generic custom event.
func Event(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	required := []string{"sessionId", "eventType"}
	return ingestHandler(cfg, dbpkg.KindEvent, required, "Failed to track event", func(ctx context.Context, p payload, meta requestMeta) error {
		ev := dbpkg.Event{
			Kind:          dbpkg.KindEvent,
			SessionID:     p.String("sessionId"),
			EventType:     p.String("eventType"),
			EventCategory: p.String("eventCategory"),
			EventAction:   p.String("eventAction"),
			EventLabel:    p.String("eventLabel"),
			EventValue:    p.Float("eventValue"),
			PageURL:       p.String("pageUrl"),
			IPAddress:     meta.IP,
		}
		if custom := p.Object("customData"); custom != nil {
			ev.CustomData = datatypes.JSONMap(custom)
		}
		return dbpkg.InsertEvents(ctx, db, []dbpkg.Event{ev})
	})
}

func Performance(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	required := []string{"sessionId", "pageUrl"}
	return ingestHandler(cfg, "performance", required, "Failed to track performance metrics", func(ctx context.Context, p payload, _ requestMeta) error {
		return dbpkg.InsertPerformance(ctx, db, &dbpkg.PerformanceMetric{
			SessionID:              p.String("sessionId"),
			PageURL:                p.String("pageUrl"),
			LoadTime:               p.Float("loadTime"),
			DOMContentLoaded:       p.Float("domContentLoaded"),
			FirstContentfulPaint:   p.Float("firstContentfulPaint"),
			LargestContentfulPaint: p.Float("largestContentfulPaint"),
			FirstInputDelay:        p.Float("firstInputDelay"),
			CumulativeLayoutShift:  p.Float("cumulativeLayoutShift"),
			TimeToInteractive:      p.Float("timeToInteractive"),
			ConnectionType:         p.String("connectionType"),
			DeviceMemory:           p.Float("deviceMemory"),
		})
	})
}

// ClientError stores a client-side error report. sessionId is optional.
func ClientError(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	required := []string{"errorType", "errorMessage"}
	return ingestHandler(cfg, "error", required, "Failed to track error", func(ctx context.Context, p payload, meta requestMeta) error {
		return dbpkg.InsertError(ctx, db, &dbpkg.ErrorRecord{
			SessionID:    p.String("sessionId"),
			ErrorType:    p.String("errorType"),
			ErrorMessage: p.String("errorMessage"),
			ErrorStack:   p.String("errorStack"),
			PageURL:      p.String("pageUrl"),
			UserAgent:    meta.UserAgent,
			IPAddress:    meta.IP,
		})
	})
}
