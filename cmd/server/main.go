package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Priya8975/taskflow-webhooks/internal/api"
	"github.com/Priya8975/taskflow-webhooks/internal/config"
	"github.com/Priya8975/taskflow-webhooks/internal/engine"
	"github.com/Priya8975/taskflow-webhooks/internal/metrics"
	"github.com/Priya8975/taskflow-webhooks/internal/store"
	ws "github.com/Priya8975/taskflow-webhooks/internal/websocket"
	"github.com/Priya8975/taskflow-webhooks/internal/worker"
)

// backend is everything the service needs from persistence.
type backend interface {
	api.Store
	engine.SubscriptionFinder
	worker.DeliveryStore
	worker.Pruner
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var st backend
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		logger.Info("connected to PostgreSQL")

		if err := pgStore.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("database migrations applied")
		st = pgStore
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		st = store.NewMemory()
	}

	var (
		health *engine.HealthTracker
		queue  *engine.RetryQueue
	)
	if cfg.RedisURL != "" {
		redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		logger.Info("connected to Redis")

		health = engine.NewHealthTracker(redisStore.Client(), logger)
		if cfg.Webhook.DurableRetries {
			queue = engine.NewRetryQueue(redisStore.Client(), logger)
		}
	}

	metrics.Register()

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	httpClient := worker.NewHTTPClient(cfg.Webhook.Timeout)

	pool := worker.NewPool(cfg.NumWorkers, logger)

	var scheduler worker.Scheduler = worker.NewTimerScheduler(pool)
	if queue != nil {
		scheduler = worker.NewRedisScheduler(queue)
		go worker.NewRetryPoller(queue, pool, logger).Start(ctx)
		logger.Info("durable retries enabled")
	}

	deliverer := worker.NewDeliverer(st, httpClient, scheduler, worker.Policy{
		MaxAttempts: cfg.Webhook.MaxAttempts,
		RetryBase:   cfg.Webhook.RetryBase,
		UserAgent:   cfg.Webhook.UserAgent,
	}, hub, health, logger)
	pool.Start(ctx, deliverer.Deliver)

	retention := cfg.Retention
	if queue != nil {
		// Overdue durable retries are still claimed after a restart.
		retention.StaleRetryAfter = 0
	}
	go worker.NewJanitor(st, retention, logger).Start(ctx)

	dispatcher := engine.NewDispatcher(st, pool, logger)
	router := api.NewRouter(st, dispatcher, health, hub)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "workers", cfg.NumWorkers)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Let in-flight deliveries finish before cancelling their requests.
	pool.Stop()
	cancel()

	logger.Info("server stopped")
}
