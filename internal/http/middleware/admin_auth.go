package middleware

import (
	"bytes"
	"crypto/subtle"

	"github.com/valyala/fasthttp"

	"pageinsight/internal/config"
)

// AdminAuth guards key management. Only the bootstrap key from
// APP_API_KEY is accepted; without one the admin routes are disabled.
func AdminAuth(cfg *config.Config) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	want := []byte("Bearer " + cfg.APIKey)

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if cfg.APIKey == "" {
				ctx.SetStatusCode(fasthttp.StatusForbidden)
				ctx.SetContentType("application/json")
				ctx.SetBodyString(`{"error":"key management is disabled"}`)
				return
			}

			auth := bytes.TrimSpace(ctx.Request.Header.Peek("Authorization"))
			if len(auth) == 0 {
				unauthorized(ctx, "missing Authorization header")
				return
			}
			if subtle.ConstantTimeCompare(auth, want) != 1 {
				unauthorized(ctx, "admin key required")
				return
			}

			next(ctx)
		}
	}
}
