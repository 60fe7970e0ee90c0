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

	"github.com/joho/godotenv"

	"fincore/internal/amqp"
	"fincore/internal/bus"
	"fincore/internal/cache"
	"fincore/internal/config"
	fincorehttp "fincore/internal/http"
	"fincore/internal/services"
	"fincore/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting fincore API server")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	statsCache := cache.New(cfg.CacheMaxEntries, cfg.CacheTTL, cfg.AggregationTimeout)

	cacheManager := cache.NewManager()
	cacheManager.Register(statsCache)
	cacheManager.StartCleanup(cfg.CacheCleanupInterval)
	defer cacheManager.Stop()

	// Local writes invalidate through the in-process bus.
	invalidationBus := bus.New()
	invalidationBus.Subscribe(services.CacheInvalidator(statsCache))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The recurrence worker runs in its own process; its writes reach this
	// cache through the AMQP relay.
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client; relying on cache TTL for cross-process invalidation", "error", err)
		} else {
			defer amqpClient.Close()
			go func() {
				err := amqpClient.ConsumeInvalidations(ctx, func(ev bus.Event) error {
					invalidationBus.Publish(ctx, ev)
					return nil
				})
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Invalidation consumer stopped", "error", err)
				}
			}()
			logger.Info("AMQP invalidation consumer started", "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - scheduler writes invalidate via cache TTL only")
	}

	statsService := services.NewStatisticsService(repo, statsCache, nil)
	txService := services.NewTransactionService(repo, invalidationBus)
	ruleService := services.NewRecurrenceService(repo)

	server := fincorehttp.NewServer(":"+cfg.Port, statsService, txService, ruleService, statsCache)

	go func() {
		logger.Info("HTTP server listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down fincore API server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", "error", err)
	}
	logger.Info("Shutdown complete")
}
