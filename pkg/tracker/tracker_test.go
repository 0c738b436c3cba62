package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// collector answers with the given statuses in order, repeating the last.
func collector(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statuses[n])
		if statuses[n] == http.StatusOK {
			_, _ = w.Write([]byte(`{"success":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"error":"nope"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func fastClient(url string, opts ...Option) *Client {
	return New(url, append([]Option{WithBaseDelay(time.Millisecond)}, opts...)...)
}

func TestSend_PostsJSONWithToken(t *testing.T) {
	var got map[string]any
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", WithToken("k1"))
	depth := 40.0
	err := c.PageView(context.Background(), PageViewPayload{SessionID: "s1", PageURL: "/home", ScrollDepth: &depth})
	if err != nil {
		t.Fatalf("PageView: %v", err)
	}
	if path != "/api/analytics/pageview" {
		t.Errorf("path = %q", path)
	}
	if auth != "Bearer k1" {
		t.Errorf("Authorization = %q", auth)
	}
	if got["sessionId"] != "s1" || got["pageUrl"] != "/home" || got["scrollDepth"] != 40.0 {
		t.Errorf("payload = %v", got)
	}
	if _, has := got["pageTitle"]; has {
		t.Error("empty optional fields should be omitted")
	}
}

func TestSend_RetriesTransientFailures(t *testing.T) {
	srv, hits := collector(t, http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusOK)

	err := fastClient(srv.URL).Event(context.Background(), EventPayload{SessionID: "s1", EventType: "signup"})
	if err != nil {
		t.Fatalf("Event: %v", err)
	}
	if n := hits.Load(); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestSend_DropsAfterMaxRetries(t *testing.T) {
	srv, hits := collector(t, http.StatusInternalServerError)

	err := fastClient(srv.URL, WithMaxRetries(2)).Send(context.Background(), "event", map[string]string{"sessionId": "s1"})
	if !errors.Is(err, ErrDropped) {
		t.Fatalf("err = %v, want ErrDropped", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError {
		t.Errorf("last error = %v, want a 500 StatusError", err)
	}
	if n := hits.Load(); n != 3 {
		t.Errorf("attempts = %d, want 1 + 2 retries", n)
	}
}

func TestSend_ClientErrorsArePermanent(t *testing.T) {
	srv, hits := collector(t, http.StatusBadRequest)

	err := fastClient(srv.URL).Error(context.Background(), ErrorPayload{ErrorType: "E"})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest || se.Temporary() {
		t.Fatalf("err = %v, want permanent 400", err)
	}
	if !errors.Is(err, ErrDropped) {
		t.Error("undelivered events should report ErrDropped")
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestSend_NetworkErrorRetried(t *testing.T) {
	srv, _ := collector(t, http.StatusOK)
	url := srv.URL
	srv.Close()

	start := time.Now()
	err := fastClient(url, WithMaxRetries(1), WithTimeout(time.Second)).Send(context.Background(), "pageview", map[string]string{})
	if !errors.Is(err, ErrDropped) {
		t.Fatalf("err = %v, want ErrDropped", err)
	}
	if time.Since(start) < time.Millisecond {
		t.Error("a retry should have waited for the backoff")
	}
}

func TestSend_ContextCanceled(t *testing.T) {
	srv, _ := collector(t, http.StatusServiceUnavailable)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(srv.URL).Send(ctx, "event", map[string]string{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDispatch_OnDrop(t *testing.T) {
	srv, _ := collector(t, http.StatusUnprocessableEntity)

	var mu sync.Mutex
	var dropped []string
	c := fastClient(srv.URL, OnDrop(func(endpoint string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if !errors.Is(err, ErrDropped) {
			t.Errorf("OnDrop err = %v", err)
		}
		dropped = append(dropped, endpoint)
	}))

	c.Dispatch(context.Background(), "click-tracking", map[string]string{"sessionId": "s1"})
	c.Dispatch(context.Background(), "search", map[string]string{"sessionId": "s1"})
	c.Wait()

	if len(dropped) != 2 {
		t.Errorf("dropped = %v, want 2 endpoints", dropped)
	}
}

func TestEndSession(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	if err := New(srv.URL).EndSession(context.Background(), "s1", 95*time.Second); err != nil {
		t.Fatal(err)
	}
	if got["totalTimeSpent"] != 95000.0 {
		t.Errorf("totalTimeSpent = %v, want ms", got["totalTimeSpent"])
	}
}

func TestNewSessionID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	if a == "" || a == b {
		t.Errorf("session ids %q and %q should be unique", a, b)
	}
}
