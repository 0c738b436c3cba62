package middleware

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"pageinsight/internal/config"
	dbpkg "pageinsight/internal/db"
	httpctx "pageinsight/internal/http/ctx"
)

func unauthorized(ctx *fasthttp.RequestCtx, msg string) {
	ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	ctx.SetContentType("application/json")
	ctx.Response.Header.Set("WWW-Authenticate", `Bearer realm="pageinsight"`)
	ctx.SetBodyString(`{"error":"` + msg + `"}`)
}

// BearerAuth validates Bearer tokens against active API keys. When no key
// is configured the gate is open.
func BearerAuth(db *gorm.DB, cfg *config.Config) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if cfg.APIKey == "" {
		return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
			return next
		}
	}

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			// Preflight requests carry no credentials.
			if ctx.IsOptions() {
				next(ctx)
				return
			}

			auth := ctx.Request.Header.Peek("Authorization")
			if len(auth) == 0 {
				unauthorized(ctx, "missing Authorization header")
				return
			}

			const prefix = "Bearer "
			if !bytes.HasPrefix(auth, []byte(prefix)) {
				unauthorized(ctx, "invalid Authorization header")
				return
			}

			token := strings.TrimSpace(string(auth[len(prefix):]))
			if token == "" {
				unauthorized(ctx, "empty bearer token")
				return
			}

			lookupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			apiKey, err := dbpkg.FindActiveAPIKey(lookupCtx, db, token)
			if err != nil {
				if errors.Is(err, dbpkg.ErrInvalidAPIKey) {
					unauthorized(ctx, "invalid API key")
					return
				}
				zap.S().Errorw("api key lookup failed", "error", err)
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetContentType("application/json")
				ctx.SetBodyString(`{"error":"database error"}`)
				return
			}

			httpctx.SetAPIKey(ctx, apiKey)
			next(ctx)
		}
	}
}
