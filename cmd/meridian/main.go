package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridiandist/meridian/internal/app"
	"github.com/meridiandist/meridian/internal/ar"
	"github.com/meridiandist/meridian/internal/observability"
	"github.com/meridiandist/meridian/internal/platform/cache"
	"github.com/meridiandist/meridian/internal/platform/db"
	"github.com/meridiandist/meridian/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var reportCache *ar.ReportCache
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Reports are computed on every request until Redis comes back.
		logger.Warn("redis unavailable, report caching disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		reportCache = ar.NewReportCache(redisClient, cfg.ReportCacheTTL)
	}

	idempotencyStore := shared.NewIdempotencyStore(pool)

	arRepo := ar.NewRepository(pool)
	arService := ar.NewService(arRepo, idempotencyStore, reportCache)
	arHandler := ar.NewHandler(logger, arService)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:    logger,
		Config:    cfg,
		ARHandler: arHandler,
		Metrics:   metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
