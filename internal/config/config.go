package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// AMQP (optional; empty URL disables the invalidation relay)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Scheduler
	SchedulerInterval time.Duration
	MaxCatchUpPeriods int

	// Statistics cache
	CacheMaxEntries      int
	CacheTTL             time.Duration
	CacheCleanupInterval time.Duration
	AggregationTimeout   time.Duration
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/fincore.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fincore"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "cache_invalidations"),

		SchedulerInterval: getEnvDuration("SCHEDULER_INTERVAL", time.Hour),
		MaxCatchUpPeriods: getEnvInt("MAX_CATCHUP_PERIODS", 24),

		CacheMaxEntries:      getEnvInt("CACHE_MAX_ENTRIES", 256),
		CacheTTL:             getEnvDuration("CACHE_TTL", 5*time.Minute),
		CacheCleanupInterval: getEnvDuration("CACHE_CLEANUP_INTERVAL", 10*time.Minute),
		AggregationTimeout:   getEnvDuration("AGGREGATION_TIMEOUT", 10*time.Second),
	}
}

// Validate checks the configuration and collects every problem into one error.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errs = append(errs, "SQLite database path cannot be empty")
	} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.SchedulerInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid scheduler interval %v: must be at least 1 second", c.SchedulerInterval))
	} else if c.SchedulerInterval > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid scheduler interval %v: must be at most 24 hours", c.SchedulerInterval))
	}

	if c.MaxCatchUpPeriods < 1 {
		errs = append(errs, fmt.Sprintf("invalid max catch-up periods %d: must be at least 1", c.MaxCatchUpPeriods))
	} else if c.MaxCatchUpPeriods > 1000 {
		errs = append(errs, fmt.Sprintf("invalid max catch-up periods %d: must be at most 1000", c.MaxCatchUpPeriods))
	}

	if c.CacheMaxEntries < 1 {
		errs = append(errs, fmt.Sprintf("invalid cache max entries %d: must be at least 1", c.CacheMaxEntries))
	}
	if c.CacheTTL < time.Second {
		errs = append(errs, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}
	if c.AggregationTimeout < 100*time.Millisecond {
		errs = append(errs, fmt.Sprintf("invalid aggregation timeout %v: must be at least 100ms", c.AggregationTimeout))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
