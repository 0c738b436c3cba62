package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"pageinsight/internal/config"
	dbpkg "pageinsight/internal/db"
)

type sessionDetail struct {
	*dbpkg.Session
	FirstVisit   string `json:"firstVisit"`
	LastActivity string `json:"lastActivity"`
	Enhanced     any    `json:"enhanced,omitempty"`
}

// SessionDetail serves GET /api/analytics/sessions/{id}: the session row
// plus its enhanced attributes when any were reported.
func SessionDetail(store *dbpkg.GormSessionStore, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		idVal := ctx.UserValue("id")
		id, _ := idVal.(string)
		id = strings.TrimSpace(id)
		if id == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "session id is required")
			return
		}

		queryCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		sess, err := store.Get(queryCtx, id)
		if err != nil {
			if errors.Is(err, dbpkg.ErrSessionNotFound) {
				errResponse(ctx, fasthttp.StatusNotFound, "session not found")
				return
			}
			storageError(ctx, cfg, "Failed to load session", err)
			return
		}

		resp := sessionDetail{
			Session:      sess,
			FirstVisit:   sess.FirstVisit.UTC().Format(time.RFC3339),
			LastActivity: sess.LastActivity.UTC().Format(time.RFC3339),
		}
		enhanced, err := store.GetEnhanced(queryCtx, id)
		switch {
		case err == nil:
			resp.Enhanced = enhanced
		case !errors.Is(err, dbpkg.ErrSessionNotFound):
			storageError(ctx, cfg, "Failed to load session", err)
			return
		}

		jsonResponse(ctx, fasthttp.StatusOK, resp)
	}
}
