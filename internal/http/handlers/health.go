package handlers

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	httpctx "pageinsight/internal/http/ctx"
)

// Health reports liveness and seconds since started.
func Health(started time.Time) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		jsonResponse(ctx, fasthttp.StatusOK, map[string]any{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"uptime":    time.Since(started).Seconds(),
		})
	}
}

// PanicHandler is the router's last-resort recovery.
func PanicHandler(ctx *fasthttp.RequestCtx, rcv any) {
	reqID, _ := httpctx.RequestIDFromCtx(ctx)
	zap.S().Errorw("panic while handling request",
		"panic", rcv,
		"method", string(ctx.Method()),
		"path", string(ctx.Path()),
		"request_id", reqID,
	)
	errResponse(ctx, fasthttp.StatusInternalServerError, "Internal server error")
}

func NotFound(ctx *fasthttp.RequestCtx) {
	errResponse(ctx, fasthttp.StatusNotFound, "Not found")
}
