// Package main is the entrypoint for the Draftsmith API server.
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

	"github.com/kiranshivaraju/draftsmith/internal/account"
	"github.com/kiranshivaraju/draftsmith/internal/admission"
	"github.com/kiranshivaraju/draftsmith/internal/api"
	"github.com/kiranshivaraju/draftsmith/internal/api/handler"
	mw "github.com/kiranshivaraju/draftsmith/internal/api/middleware"
	"github.com/kiranshivaraju/draftsmith/internal/api/response"
	"github.com/kiranshivaraju/draftsmith/internal/cache"
	"github.com/kiranshivaraju/draftsmith/internal/config"
	"github.com/kiranshivaraju/draftsmith/internal/jobs"
	"github.com/kiranshivaraju/draftsmith/internal/pipeline"
	"github.com/kiranshivaraju/draftsmith/internal/retry"
	"github.com/kiranshivaraju/draftsmith/internal/store"
	"github.com/kiranshivaraju/draftsmith/internal/worker"
	"github.com/kiranshivaraju/draftsmith/pkg/models"
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
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"pipeline_provider", cfg.Pipeline.Provider,
		"max_concurrent_jobs", cfg.Pipeline.MaxConcurrentJobs,
		"env", cfg.Server.Env)

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

	// 5. Create pipeline provider
	provider, err := pipeline.NewProvider(cfg.Pipeline)
	if err != nil {
		return fmt.Errorf("create pipeline provider: %w", err)
	}
	slog.Info("pipeline provider initialized", "provider", provider.Name())

	// 6. Wire core services
	pgStore := store.NewPostgresStore(pool)
	accounts := account.NewService(pgStore, cfg.Quotas)
	registry := jobs.NewRegistry(pgStore)

	policy := retry.Policy{
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		MaxAttempts: cfg.Retry.MaxAttempts,
	}
	coordinator := worker.NewCoordinator(registry, provider, policy, redisCache,
		cfg.Pipeline.MaxConcurrentJobs, cfg.Pipeline.Timeout)
	controller := admission.NewController(accounts, registry, redisCache, coordinator.Wake)

	// 7. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMinute),
		AdminKey:  cfg.Admin.APIKey,

		HealthHandler:        healthHandler(pgStore, redisCache),
		SignupHandler:        handler.NewSignupHandler(accounts, cfg.Quotas.Tiers[models.TierFree].MonthlyLimit),
		GenerateHandler:      handler.NewGenerateHandler(controller, accounts),
		StatusHandler:        handler.NewStatusHandler(registry, redisCache),
		UsageHandler:         handler.NewUsageHandler(accounts),
		AdminStatsHandler:    handler.NewAdminStatsHandler(pgStore),
		AdminAccountsHandler: handler.NewAdminAccountsHandler(pgStore),
		AdminCostsHandler:    handler.NewAdminCostsHandler(pgStore),
	}
	router := api.NewRouter(deps)

	// 8. Start workers
	coordinator.Start(ctx)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
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

	coordinator.Wait()
	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler reports liveness plus best-effort dependency checks.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}
		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		if checks["database"] != "ok" || checks["cache"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable,
				"DEGRADED", "One or more dependencies are unavailable",
				map[string]any{"services": checks})
			return
		}

		response.JSON(w, map[string]any{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
			"services":  checks,
		})
	}
}
