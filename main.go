package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap/zapcore"

	"pageinsight/internal/config"
	"pageinsight/internal/db"
	"pageinsight/internal/http/server"
	"pageinsight/internal/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: could not read .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.Init(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		sugar.Fatalw("failed to connect database", "error", err)
	}

	if err := db.EnsureBootstrapAPIKey(sqlDB, cfg); err != nil {
		sugar.Fatalw("failed to ensure bootstrap API key", "error", err)
	}
	if cfg.APIKey == "" {
		sugar.Warn("APP_API_KEY is not set; analytics routes are unauthenticated")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RollupEnabled {
		db.StartRollupWorker(ctx, sqlDB)
	}
	db.StartRetentionWorker(ctx, sqlDB, cfg.RetentionDays)

	srv := &fasthttp.Server{
		Handler:            server.New(sqlDB, cfg),
		Name:               "pageinsight",
		MaxRequestBodySize: cfg.MaxBodyBytes,
		Logger:             logging.Printf{Level: zapcore.WarnLevel},
	}

	serveErr := make(chan error, 1)
	go func() {
		sugar.Infow("pageinsight listening", "addr", cfg.ListenAddr, "env", cfg.Environment)
		serveErr <- srv.ListenAndServe(cfg.ListenAddr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			sugar.Errorw("server error", "error", err)
		}
	case <-ctx.Done():
		sugar.Info("shutting down")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
		sugar.Warnw("shutdown incomplete", "error", err)
	}
	if err := db.Close(sqlDB); err != nil {
		sugar.Warnw("failed to close database", "error", err)
	}
}
