// Package http exposes the statistics and write endpoints consumed by the
// frontend collaborator, plus the operator/debug surface.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"fincore/internal/cache"
	"fincore/internal/core"
)

// StatisticsProvider serves the cached aggregates. The boolean result is
// whether the value came from the cache.
type StatisticsProvider interface {
	MonthlyExpenses(ctx context.Context, categoryID, userID int64) ([]core.MonthlyExpense, bool, error)
	RecurringSummary(ctx context.Context) ([]core.MonthlyExpense, bool, error)
	CategoryBreakdown(ctx context.Context) ([]core.CategoryTotal, bool, error)
	UserBreakdown(ctx context.Context) ([]core.UserTotal, bool, error)
	Debug(ctx context.Context) (core.DebugSnapshot, bool, error)
}

// TransactionWriter is the manual transaction write path. Implementations
// must publish an invalidation event after every committed write.
type TransactionWriter interface {
	Create(ctx context.Context, t core.Transaction) (core.Transaction, error)
	Update(ctx context.Context, t core.Transaction) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (core.Transaction, error)
}

// RuleManager manages recurring rules.
type RuleManager interface {
	Create(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error)
	Deactivate(ctx context.Context, id int64) error
}

type Server struct {
	http.Server
	stats        StatisticsProvider
	transactions TransactionWriter
	rules        RuleManager
	cache        *cache.StatisticsCache
	rateLimiter  *rateLimiter
	started      time.Time
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, stats StatisticsProvider, tw TransactionWriter, rm RuleManager, c *cache.StatisticsCache) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		stats:        stats,
		transactions: tw,
		rules:        rm,
		cache:        c,
		rateLimiter:  newRateLimiter(),
		started:      time.Now(),
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/statistics/monthly-expenses", s.withMiddleware(s.handleMonthlyExpenses))
	mux.HandleFunc("GET /api/statistics/recurrences", s.withMiddleware(s.handleRecurringSummary))
	mux.HandleFunc("GET /api/statistics/categories", s.withMiddleware(s.handleCategoryBreakdown))
	mux.HandleFunc("GET /api/statistics/users", s.withMiddleware(s.handleUserBreakdown))
	mux.HandleFunc("GET /api/statistics/debug", s.withMiddleware(s.handleStatisticsDebug))
	mux.HandleFunc("POST /api/statistics/clear-cache", s.withMiddleware(s.handleClearCache))
	mux.HandleFunc("GET /api/statistics/cache-stats", s.withMiddleware(s.handleCacheStats))

	mux.HandleFunc("POST /api/transactions", s.withMiddleware(s.handleCreateTransaction))
	mux.HandleFunc("PUT /api/transactions/{id}", s.withMiddleware(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.withMiddleware(s.handleDeleteTransaction))

	mux.HandleFunc("POST /api/recurrences", s.withMiddleware(s.handleCreateRule))
	mux.HandleFunc("DELETE /api/recurrences/{id}", s.withMiddleware(s.handleDeactivateRule))

	return s
}

// Shutdown stops the server and its background helpers once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	code := http.StatusOK
	checks := map[string]any{}

	if s.stats == nil || s.transactions == nil {
		status = "not_ready"
		code = http.StatusServiceUnavailable
		checks["services"] = "not_configured"
	} else {
		checks["services"] = "ok"
	}
	checks["cache"] = map[string]any{
		"entries": s.cache.Size(),
		"status":  "ok",
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
