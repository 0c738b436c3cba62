package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"pageinsight/internal/config"
	dbpkg "pageinsight/internal/db"
)

type createdAPIKey struct {
	*dbpkg.APIKey
	Key string `json:"key"`
}

func keyID(ctx *fasthttp.RequestCtx) (uint, bool) {
	raw, _ := ctx.UserValue("id").(string)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		errResponse(ctx, fasthttp.StatusBadRequest, "invalid key id")
		return 0, false
	}
	return uint(id), true
}

func keyError(ctx *fasthttp.RequestCtx, cfg *config.Config, err error) {
	switch {
	case errors.Is(err, dbpkg.ErrAPIKeyNotFound):
		errResponse(ctx, fasthttp.StatusNotFound, err.Error())
	case errors.Is(err, dbpkg.ErrProtectedAPIKey):
		errResponse(ctx, fasthttp.StatusForbidden, err.Error())
	default:
		storageError(ctx, cfg, "Failed to update API key", err)
	}
}

// ListAPIKeys serves GET /api/admin/keys. Tokens are never listed.
func ListAPIKeys(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		queryCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		keys, err := dbpkg.ListAPIKeys(queryCtx, db)
		if err != nil {
			storageError(ctx, cfg, "Failed to list API keys", err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, map[string]any{"keys": nonNilKeys(keys)})
	}
}

func nonNilKeys(keys []dbpkg.APIKey) []dbpkg.APIKey {
	if keys == nil {
		return []dbpkg.APIKey{}
	}
	return keys
}

// CreateAPIKey serves POST /api/admin/keys {name}. The token appears in
// this response only.
func CreateAPIKey(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		p, err := decodePayload(ctx.PostBody())
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := requireFields(p, []string{"name"}); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}

		queryCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		key, err := dbpkg.CreateAPIKey(queryCtx, db, p.String("name"))
		if err != nil {
			storageError(ctx, cfg, "Failed to create API key", err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusCreated, createdAPIKey{APIKey: key, Key: key.Key})
	}
}

// SetAPIKeyActive serves POST /api/admin/keys/{id}/active {active}.
func SetAPIKeyActive(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id, ok := keyID(ctx)
		if !ok {
			return
		}
		p, err := decodePayload(ctx.PostBody())
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		active := p.Bool("active")
		if active == nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "active is required")
			return
		}

		queryCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		key, err := dbpkg.SetAPIKeyActive(queryCtx, db, id, *active, cfg.APIKey)
		if err != nil {
			keyError(ctx, cfg, err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, key)
	}
}

// DeleteAPIKey serves DELETE /api/admin/keys/{id}.
func DeleteAPIKey(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id, ok := keyID(ctx)
		if !ok {
			return
		}

		queryCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		if _, err := dbpkg.DeleteAPIKey(queryCtx, db, id, cfg.APIKey); err != nil {
			keyError(ctx, cfg, err)
			return
		}
		success(ctx)
	}
}
