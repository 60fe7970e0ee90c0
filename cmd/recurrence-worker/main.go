package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fincore/internal/amqp"
	"fincore/internal/bus"
	"fincore/internal/config"
	"fincore/internal/scheduler"
	"fincore/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting recurrence-worker")

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

	// Materializations publish onto this bus; the AMQP forwarder relays the
	// events to the API server's in-memory cache.
	invalidationBus := bus.New()
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client; API caches will rely on TTL expiry", "error", err)
		} else {
			defer amqpClient.Close()
			invalidationBus.Subscribe(amqpClient.Forwarder())
			logger.Info("AMQP invalidation forwarder attached", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - API caches will rely on TTL expiry")
	}

	sched := scheduler.New(repo, invalidationBus, scheduler.SystemClock{}, cfg.MaxCatchUpPeriods)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Recurrence scheduler configured",
		"interval", cfg.SchedulerInterval,
		"max_catchup_periods", cfg.MaxCatchUpPeriods,
		"sqlite_db", cfg.SQLiteDBPath)

	// Immediate run on startup, then the periodic ticks. Run exits when the
	// context is cancelled.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Run(ctx, cfg.SchedulerInterval)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())
	cancel()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("Shutdown timeout reached")
	}

	processed, failed, lastRun := sched.Stats()
	logger.Info("Recurrence-worker shutdown complete",
		"rules_processed", processed,
		"rules_failed", failed,
		"last_run", lastRun.Format(time.RFC3339))
}
