package middleware

import (
	"testing"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"pageinsight/internal/config"
	dbpkg "pageinsight/internal/db"
	httpctx "pageinsight/internal/http/ctx"
)

func newTestDB(t *testing.T, cfg *config.Config) *gorm.DB {
	t.Helper()
	db, err := dbpkg.Connect(&config.Config{DatabaseURL: ":memory:"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = dbpkg.Close(db) })
	if err := dbpkg.EnsureBootstrapAPIKey(db, cfg); err != nil {
		t.Fatalf("EnsureBootstrapAPIKey: %v", err)
	}
	return db
}

func serve(h fasthttp.RequestHandler, method string, headers map[string]string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI("/api/analytics/data")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	h(ctx)
	return ctx
}

func okHandler(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusOK)
}

func TestBearerAuth_OpenWithoutKey(t *testing.T) {
	cfg := &config.Config{}
	h := BearerAuth(newTestDB(t, cfg), cfg)(okHandler)

	if ctx := serve(h, "GET", nil); ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Errorf("status = %d, want 200 with no key configured", ctx.Response.StatusCode())
	}
}

func TestBearerAuth(t *testing.T) {
	cfg := &config.Config{APIKey: "secret-token"}
	h := BearerAuth(newTestDB(t, cfg), cfg)(func(ctx *fasthttp.RequestCtx) {
		if _, ok := httpctx.APIKeyFromCtx(ctx); !ok {
			t.Error("authenticated request should carry its API key")
		}
		okHandler(ctx)
	})

	tests := []struct {
		name   string
		method string
		header string
		status int
		body   string
	}{
		{"valid", "GET", "Bearer secret-token", fasthttp.StatusOK, ""},
		{"missing", "GET", "", fasthttp.StatusUnauthorized, `{"error":"missing Authorization header"}`},
		{"basic scheme", "GET", "Basic abc", fasthttp.StatusUnauthorized, `{"error":"invalid Authorization header"}`},
		{"empty token", "GET", "Bearer   ", fasthttp.StatusUnauthorized, ""},
		{"unknown token", "POST", "Bearer nope", fasthttp.StatusUnauthorized, `{"error":"invalid API key"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			ctx := serve(h, tt.method, headers)
			if ctx.Response.StatusCode() != tt.status {
				t.Fatalf("status = %d, want %d", ctx.Response.StatusCode(), tt.status)
			}
			if tt.body != "" && string(ctx.Response.Body()) != tt.body {
				t.Errorf("body = %s, want %s", ctx.Response.Body(), tt.body)
			}
			if tt.status == fasthttp.StatusUnauthorized && len(ctx.Response.Header.Peek("WWW-Authenticate")) == 0 {
				t.Error("401 should carry WWW-Authenticate")
			}
		})
	}
}

func TestBearerAuth_PreflightPassesThrough(t *testing.T) {
	cfg := &config.Config{APIKey: "secret-token"}
	h := BearerAuth(newTestDB(t, cfg), cfg)(okHandler)

	if ctx := serve(h, "OPTIONS", nil); ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Errorf("OPTIONS status = %d, want 200", ctx.Response.StatusCode())
	}
}

func TestCORS(t *testing.T) {
	restricted := CORS(&config.Config{AllowedOrigins: []string{"https://shop.example"}})(okHandler)

	ctx := serve(restricted, "GET", map[string]string{"Origin": "https://shop.example"})
	if got := string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")); got != "https://shop.example" {
		t.Errorf("allowed origin header = %q", got)
	}
	if got := string(ctx.Response.Header.Peek("Access-Control-Allow-Credentials")); got != "true" {
		t.Errorf("listed origin credentials header = %q", got)
	}

	ctx = serve(restricted, "GET", map[string]string{"Origin": "https://evil.example"})
	if got := ctx.Response.Header.Peek("Access-Control-Allow-Origin"); len(got) != 0 {
		t.Errorf("unlisted origin should not be reflected, got %q", got)
	}
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Errorf("non-preflight requests still reach the handler, status = %d", ctx.Response.StatusCode())
	}

	open := CORS(&config.Config{AllowedOrigins: []string{"*"}})(okHandler)
	ctx = serve(open, "OPTIONS", map[string]string{
		"Origin":                        "https://any.example",
		"Access-Control-Request-Method": "POST",
	})
	if ctx.Response.StatusCode() != fasthttp.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", ctx.Response.StatusCode())
	}
	if got := string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")); got != "*" {
		t.Errorf("wildcard origin header = %q, want *", got)
	}
	if got := ctx.Response.Header.Peek("Access-Control-Allow-Credentials"); len(got) != 0 {
		t.Errorf("wildcard origins must not get credentials, got %q", got)
	}
	if len(ctx.Response.Header.Peek("Access-Control-Allow-Methods")) == 0 {
		t.Error("preflight should list allowed methods")
	}
}

func TestAdminAuth(t *testing.T) {
	disabled := AdminAuth(&config.Config{})(okHandler)
	if ctx := serve(disabled, "GET", map[string]string{"Authorization": "Bearer x"}); ctx.Response.StatusCode() != fasthttp.StatusForbidden {
		t.Errorf("no bootstrap key: status = %d, want 403", ctx.Response.StatusCode())
	}

	h := AdminAuth(&config.Config{APIKey: "boot"})(okHandler)
	tests := map[string]int{
		"":            fasthttp.StatusUnauthorized,
		"Bearer nope": fasthttp.StatusUnauthorized,
		"Bearer boot": fasthttp.StatusOK,
	}
	for header, want := range tests {
		headers := map[string]string{}
		if header != "" {
			headers["Authorization"] = header
		}
		if ctx := serve(h, "GET", headers); ctx.Response.StatusCode() != want {
			t.Errorf("Authorization %q: status = %d, want %d", header, ctx.Response.StatusCode(), want)
		}
	}
}
