package handlers

import (
	"context"
	"testing"

	"github.com/valyala/fasthttp"

	"pageinsight/internal/config"
	dbpkg "pageinsight/internal/db"
)

func TestPageView_CreatesSession(t *testing.T) {
	db := newTestDB(t)
	store := dbpkg.NewSessionStore(db)
	h := PageView(db, store, devConfig())

	resp := call(h, "POST", "/api/analytics/pageview", `{"sessionId":"s1","pageUrl":"/home","pageTitle":"Home","scrollDepth":"55.5","deviceType":"desktop"}`)
	expectSuccess(t, resp)

	var pv dbpkg.PageView
	if err := db.First(&pv).Error; err != nil {
		t.Fatalf("page view row: %v", err)
	}
	if pv.PageTitle != "Home" || pv.ScrollDepth == nil || *pv.ScrollDepth != 55.5 {
		t.Errorf("page view = %+v", pv)
	}
	if pv.IPAddress == "" {
		t.Error("server should stamp an IP address")
	}

	sess, err := store.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if sess.TotalPageViews != 1 || !sess.IsBounce || sess.DeviceType != "desktop" {
		t.Errorf("session = %+v", sess)
	}

	expectSuccess(t, call(h, "POST", "/api/analytics/pageview", `{"sessionId":"s1","pageUrl":"/about"}`))
	sess, _ = store.Get(context.Background(), "s1")
	if sess.TotalPageViews != 2 || sess.IsBounce || sess.ExitPage != "/about" {
		t.Errorf("after second view session = %+v", sess)
	}
}

func TestPageView_MissingFields(t *testing.T) {
	db := newTestDB(t)
	h := PageView(db, dbpkg.NewSessionStore(db), devConfig())

	expectError(t, call(h, "POST", "/", `{"pageUrl":"/home"}`), fasthttp.StatusBadRequest, "sessionId is required")
	expectError(t, call(h, "POST", "/", `{}`), fasthttp.StatusBadRequest, "sessionId and pageUrl are required")
	expectError(t, call(h, "POST", "/", `not json`), fasthttp.StatusBadRequest, "invalid JSON body")

	if n := countRows(t, db, &dbpkg.PageView{}); n != 0 {
		t.Errorf("rejected payloads wrote %d page views", n)
	}
	if n := countRows(t, db, &dbpkg.Session{}); n != 0 {
		t.Errorf("rejected payloads wrote %d sessions", n)
	}
}

func TestEvent(t *testing.T) {
	db := newTestDB(t)
	h := Event(db, devConfig())

	expectSuccess(t, call(h, "POST", "/", `{"sessionId":"s1","eventType":"signup","eventCategory":"cta","eventValue":3,"customData":{"plan":"pro"},"ipAddress":"203.0.113.9"}`))

	var ev dbpkg.Event
	if err := db.First(&ev).Error; err != nil {
		t.Fatalf("event row: %v", err)
	}
	if ev.Kind != dbpkg.KindEvent || ev.EventType != "signup" || ev.EventCategory != "cta" {
		t.Errorf("event = %+v", ev)
	}
	if ev.EventValue == nil || *ev.EventValue != 3 {
		t.Errorf("EventValue = %v", ev.EventValue)
	}
	if ev.CustomData["plan"] != "pro" {
		t.Errorf("CustomData = %v", ev.CustomData)
	}
	if ev.IPAddress != "203.0.113.9" {
		t.Errorf("IPAddress = %q, want the payload value", ev.IPAddress)
	}
}

func TestEvent_MissingFieldsWriteNothing(t *testing.T) {
	db := newTestDB(t)
	h := Event(db, devConfig())

	for _, body := range []string{
		`{"eventType":"click"}`,
		`{"sessionId":"s1"}`,
		`{"sessionId":"","eventType":""}`,
	} {
		resp := call(h, "POST", "/", body)
		if resp.StatusCode() != fasthttp.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, resp.StatusCode())
		}
	}
	if n := countRows(t, db, &dbpkg.Event{}); n != 0 {
		t.Errorf("rejected events wrote %d rows", n)
	}
}

func TestPerformance(t *testing.T) {
	db := newTestDB(t)
	h := Performance(db, devConfig())

	expectSuccess(t, call(h, "POST", "/", `{"sessionId":"s1","pageUrl":"/","loadTime":1200,"domContentLoaded":800,"connectionType":"4g"}`))
	expectError(t, call(h, "POST", "/", `{"loadTime":1}`), fasthttp.StatusBadRequest, "sessionId and pageUrl are required")

	var m dbpkg.PerformanceMetric
	if err := db.First(&m).Error; err != nil {
		t.Fatalf("performance row: %v", err)
	}
	if m.LoadTime == nil || *m.LoadTime != 1200 || m.DOMContentLoaded == nil || *m.DOMContentLoaded != 800 {
		t.Errorf("metric = %+v", m)
	}
	if m.FirstInputDelay != nil {
		t.Errorf("absent timings should stay NULL, got %v", *m.FirstInputDelay)
	}
}

func TestClientError_SessionOptional(t *testing.T) {
	db := newTestDB(t)
	h := ClientError(db, devConfig())

	expectSuccess(t, call(h, "POST", "/", `{"errorType":"TypeError","errorMessage":"x is undefined","errorStack":"at main.js:1"}`))
	expectError(t, call(h, "POST", "/", `{"sessionId":"s1","errorType":"TypeError"}`), fasthttp.StatusBadRequest, "errorMessage is required")

	if n := countRows(t, db, &dbpkg.ErrorRecord{}); n != 1 {
		t.Errorf("error rows = %d, want 1", n)
	}
}

func TestStorageError_Redaction(t *testing.T) {
	tests := []struct {
		env        string
		wantDetail bool
	}{
		{"development", true},
		{"production", false},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			db := newTestDB(t)
			if err := dbpkg.Close(db); err != nil {
				t.Fatal(err)
			}
			h := Event(db, &config.Config{Environment: tt.env})

			resp := call(h, "POST", "/", `{"sessionId":"s1","eventType":"x"}`)
			if resp.StatusCode() != fasthttp.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", resp.StatusCode())
			}
			body := decodeBody(t, resp)
			if body["error"] != "Failed to track event" {
				t.Errorf("error = %v", body["error"])
			}
			if _, has := body["detail"]; has != tt.wantDetail {
				t.Errorf("detail present = %v, want %v", has, tt.wantDetail)
			}
		})
	}
}

func TestPerformance_NonFiniteTimingsIgnored(t *testing.T) {
	db := newTestDB(t)
	cfg := devConfig()
	h := Performance(db, cfg)

	expectSuccess(t, call(h, "POST", "/", `{"sessionId":"s1","pageUrl":"/","loadTime":"Infinity","domContentLoaded":800,"firstInputDelay":"NaN"}`))
	expectSuccess(t, call(h, "POST", "/", `{"sessionId":"s1","pageUrl":"/","loadTime":1200}`))

	var m dbpkg.PerformanceMetric
	if err := db.Order("id").First(&m).Error; err != nil {
		t.Fatal(err)
	}
	if m.LoadTime != nil || m.FirstInputDelay != nil {
		t.Errorf("non-finite timings should be stored as NULL, got %v / %v", m.LoadTime, m.FirstInputDelay)
	}

	resp := call(Data(dbpkg.NewReporter(db), cfg), "GET", "/api/analytics/data?metric=performance&period=1d", "")
	if resp.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("report status = %d, body = %s", resp.StatusCode(), resp.Body())
	}
	perf := decodeBody(t, resp)["performance"].(map[string]any)
	if perf["avg_load_time"] != 1200.0 || perf["avg_dom_loaded"] != 800.0 {
		t.Errorf("performance = %v", perf)
	}
}

func TestPageView_NonScalarRequiredFields(t *testing.T) {
	db := newTestDB(t)
	h := PageView(db, dbpkg.NewSessionStore(db), devConfig())

	expectError(t, call(h, "POST", "/", `{"sessionId":{"a":1},"pageUrl":["x"]}`), fasthttp.StatusBadRequest, "sessionId and pageUrl are required")
	if n := countRows(t, db, &dbpkg.Session{}); n != 0 {
		t.Errorf("object session id wrote %d sessions", n)
	}
}
