package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/linkstudio/affitrack/internal/config"
	"github.com/linkstudio/affitrack/internal/database"
	"github.com/linkstudio/affitrack/internal/httpserver"
	"github.com/linkstudio/affitrack/internal/metrics"
	"github.com/linkstudio/affitrack/internal/middleware"
	"github.com/linkstudio/affitrack/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use logger yet, fall back to panic
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("starting affitrack",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL. The server runs on in-memory stores when
	// the database is unreachable; tracking data then does not
	// survive a restart.
	var db *database.PostgresDB
	db, err = database.NewPostgresDB(cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Warn("PostgreSQL unavailable, using in-memory stores", zap.Error(err))
		db = nil
	} else {
		defer db.Close()
		if err := storage.EnsureEntitySchema(ctx, db.Pool); err != nil {
			logger.Fatal("failed to prepare entity schema", zap.Error(err))
		}
		if err := storage.EnsureEventSchema(ctx, db.Pool); err != nil {
			logger.Fatal("failed to prepare event schema", zap.Error(err))
		}
	}

	// Initialize Redis, with the same fallback for the session store.
	var redis *database.RedisDB
	redis, err = database.NewRedisDB(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, using in-memory session store", zap.Error(err))
		redis = nil
	} else {
		defer redis.Close()
	}

	m := metrics.NewMetrics("affitrack")

	deps := &httpserver.Dependencies{
		DB:      db,
		Redis:   redis,
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
	}

	handler := httpserver.NewServer(deps)

	// Apply middleware chain (order matters: outermost first)
	// Recovery -> Logging -> RateLimit -> Auth -> Handler
	recoveryMW := middleware.NewRecoveryMiddleware(logger)
	loggingMW := middleware.NewLoggingMiddleware(logger)
	rateLimitMW := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger)
	rateLimitMW.SetMetrics(m)
	authMW := middleware.NewAuthMiddleware(cfg.Auth, logger)

	finalHandler := recoveryMW.Handler(
		loggingMW.Handler(
			rateLimitMW.Handler(
				authMW.Handler(handler),
			),
		),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           finalHandler,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info("HTTP server starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	cancel()

	logger.Info("server stopped")
}
