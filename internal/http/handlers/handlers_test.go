package handlers

import (
	"encoding/json"
	"testing"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"pageinsight/internal/config"
	dbpkg "pageinsight/internal/db"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbpkg.Connect(&config.Config{DatabaseURL: ":memory:"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = dbpkg.Close(db) })
	return db
}

func devConfig() *config.Config {
	return &config.Config{Environment: "development"}
}

// call runs h against an in-process request and returns the response.
func call(h fasthttp.RequestHandler, method, uri, body string, userValues ...string) *fasthttp.Response {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	if body != "" {
		req.Header.SetContentType("application/json")
		req.SetBodyString(body)
	}

	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	for i := 0; i+1 < len(userValues); i += 2 {
		ctx.SetUserValue(userValues[i], userValues[i+1])
	}
	h(&ctx)

	var resp fasthttp.Response
	ctx.Response.CopyTo(&resp)
	return &resp
}

func decodeBody(t *testing.T, resp *fasthttp.Response) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		t.Fatalf("decode %q: %v", resp.Body(), err)
	}
	return out
}

func expectSuccess(t *testing.T, resp *fasthttp.Response) {
	t.Helper()
	if resp.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode(), resp.Body())
	}
	if got := decodeBody(t, resp); got["success"] != true {
		t.Fatalf("body = %v, want success:true", got)
	}
}

func expectError(t *testing.T, resp *fasthttp.Response, status int, msg string) {
	t.Helper()
	if resp.StatusCode() != status {
		t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode(), status, resp.Body())
	}
	if got := decodeBody(t, resp); got["error"] != msg {
		t.Fatalf("error = %v, want %q", got["error"], msg)
	}
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
