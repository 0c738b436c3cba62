package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/valyala/fasthttp"

	"pageinsight/internal/config"
	dbpkg "pageinsight/internal/db"
)

// Data serves GET /api/analytics/data?period=&metric=. An unknown period
// falls back to 7d; an unknown metric is a 400.
func Data(reporter *dbpkg.Reporter, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		args := ctx.QueryArgs()
		metric := string(args.Peek("metric"))
		if metric == "" {
			metric = dbpkg.MetricOverview
		}
		period := dbpkg.ParsePeriod(string(args.Peek("period")))

		queryCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		start := time.Now()
		data, err := reporter.Report(queryCtx, metric, period, start)
		if errors.Is(err, dbpkg.ErrUnknownMetric) {
			errResponse(ctx, fasthttp.StatusBadRequest, "Invalid metric type")
			return
		}
		reportDuration.WithLabelValues(metric).Observe(time.Since(start).Seconds())
		if err != nil {
			storageError(ctx, cfg, "Failed to fetch analytics data", err)
			return
		}

		jsonResponse(ctx, fasthttp.StatusOK, data)
	}
}
