package handlers

import (
	"encoding/json"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"pageinsight/internal/config"
	httpctx "pageinsight/internal/http/ctx"
)

// RequestLogger returns fasthttp middleware that tags each request with an
// id and logs method, path, status, duration and the authenticated key name.
func RequestLogger(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()

		id := string(ctx.Request.Header.Peek("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		httpctx.SetRequestID(ctx, id)
		ctx.Response.Header.Set("X-Request-ID", id)

		next(ctx)

		fields := []any{
			"method", string(ctx.Method()),
			"path", string(ctx.Path()),
			"status", ctx.Response.StatusCode(),
			"duration", time.Since(start),
			"ip", clientIP(ctx),
			"request_id", id,
		}
		if key, ok := httpctx.APIKeyFromCtx(ctx); ok {
			fields = append(fields, "api_key", key.Name)
		}
		zap.S().Infow("request", fields...)
	}
}

func jsonResponse(ctx *fasthttp.RequestCtx, code int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		zap.S().Errorw("encode response", "error", err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"Internal server error"}`)
		return
	}
	ctx.SetStatusCode(code)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func errResponse(ctx *fasthttp.RequestCtx, code int, msg string) {
	jsonResponse(ctx, code, map[string]string{"error": msg})
}

func success(ctx *fasthttp.RequestCtx) {
	jsonResponse(ctx, fasthttp.StatusOK, map[string]bool{"success": true})
}

// storageError logs err and answers 500 with msg. Outside production the
// underlying error is included as detail.
func storageError(ctx *fasthttp.RequestCtx, cfg *config.Config, msg string, err error) {
	reqID, _ := httpctx.RequestIDFromCtx(ctx)
	zap.S().Errorw(msg, "error", err, "path", string(ctx.Path()), "request_id", reqID)

	body := map[string]string{"error": msg}
	if !cfg.IsProduction() {
		body["detail"] = err.Error()
	}
	jsonResponse(ctx, fasthttp.StatusInternalServerError, body)
}

// clientIP prefers the first X-Forwarded-For hop over the socket address.
func clientIP(ctx *fasthttp.RequestCtx) string {
	if xff := string(ctx.Request.Header.Peek("X-Forwarded-For")); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	return ctx.RemoteIP().String()
}
