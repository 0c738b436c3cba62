package server

import (
	"time"

	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"pageinsight/internal/config"
	dbpkg "pageinsight/internal/db"
	"pageinsight/internal/http/handlers"
	appmw "pageinsight/internal/http/middleware"
)

// New builds the full request handler: routes, auth gate and the global
// middleware chain (request logger, CORS, compression).
func New(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	handlers.InitPrometheusMetrics()

	sessions := dbpkg.NewSessionStore(db)
	reporter := dbpkg.NewReporter(db)
	auth := appmw.BearerAuth(db, cfg)

	r := router.New()
	r.PanicHandler = handlers.PanicHandler
	r.NotFound = handlers.NotFound

	r.GET("/health", handlers.Health(time.Now()))
	r.GET("/metrics", handlers.Metrics(prometheus.DefaultGatherer))

	api := r.Group("/api/analytics")
	api.POST("/pageview", auth(handlers.PageView(db, sessions, cfg)))
	api.POST("/event", auth(handlers.Event(db, cfg)))
	api.POST("/performance", auth(handlers.Performance(db, cfg)))
	api.POST("/error", auth(handlers.ClientError(db, cfg)))

	for _, route := range handlers.EventRoutes {
		api.POST(route.Path, auth(handlers.EventKind(db, cfg, route)))
	}
	for _, route := range handlers.TraitRoutes {
		api.POST(route.Path, auth(handlers.SessionTrait(sessions, cfg, route)))
	}
	api.POST("/heatmap", auth(handlers.Heatmap(db, cfg)))
	api.POST("/content-engagement", auth(handlers.ContentEngagement(db, cfg)))
	api.POST("/session-end", auth(handlers.SessionEnd(sessions, cfg)))

	api.GET("/data", auth(handlers.Data(reporter, cfg)))
	api.GET("/sessions/{id}", auth(handlers.SessionDetail(sessions, cfg)))

	admin := appmw.AdminAuth(cfg)
	r.GET("/api/admin/keys", admin(handlers.ListAPIKeys(db, cfg)))
	r.POST("/api/admin/keys", admin(handlers.CreateAPIKey(db, cfg)))
	r.POST("/api/admin/keys/{id}/active", admin(handlers.SetAPIKeyActive(db, cfg)))
	r.DELETE("/api/admin/keys/{id}", admin(handlers.DeleteAPIKey(db, cfg)))

	return handlers.RequestLogger(appmw.CORS(cfg)(fasthttp.CompressHandler(r.Handler)))
}
