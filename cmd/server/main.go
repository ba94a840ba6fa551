// Package main is the entrypoint for the compareboard API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"compareboard/internal/api"
	"compareboard/internal/api/handler"
	mw "compareboard/internal/api/middleware"
	"compareboard/internal/cache"
	"compareboard/internal/compareapi"
	"compareboard/internal/config"
	"compareboard/internal/notify"
	"compareboard/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "compare_api", cfg.CompareAPI.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create the stage-change notifier (Redis pub/sub)
	notifier, err := notify.NewRedisNotifier(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create notifier: %w", err)
	}
	defer notifier.Close()

	// 6. Create the upstream compare API client
	upstream := compareapi.NewHTTPClient(cfg.CompareAPI.BaseURL, cfg.CompareAPI.Timeout)

	// 7. Create store
	pgStore := store.NewPostgresStore(pool)

	// 8. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: handler.NewHealthHandler(pgStore, redisCache),

		CreateJobHandler:  handler.NewCreateJobHandler(upstream, pgStore),
		RecentJobsHandler: handler.NewRecentJobsHandler(pgStore, upstream),
		JobViewHandler:    handler.NewJobViewHandler(pgStore),
		JobStreamHandler:  handler.NewJobStreamHandler(pgStore, notifier, redisCache),
		IngestStage:       handler.NewIngestStageHandler(pgStore, notifier, redisCache),

		SaveExperiment:     handler.NewSaveExperimentHandler(pgStore),
		ListExperiments:    handler.NewListExperimentsHandler(pgStore, upstream),
		CompareExperiments: handler.NewCompareExperimentsHandler(pgStore),

		CreditPacksHandler:      handler.NewCreditPacksHandler(upstream, redisCache, cfg.Checkout.PacksCacheTTL),
		CheckoutHandler:         handler.NewCheckoutHandler(upstream, cfg.Checkout.TrustedDomain),
		CreditOperationsHandler: handler.NewCreditOperationsHandler(upstream),

		TrackEventHandler:   handler.NewTrackEventHandler(pgStore, upstream),
		StageLatencyHandler: handler.NewStageLatencyHandler(pgStore, upstream),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the stream endpoint holds connections open for
		// as long as the client watches a job.
		IdleTimeout: 60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
