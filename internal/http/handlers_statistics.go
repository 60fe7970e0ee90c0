package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"fincore/internal/cache"
)

func (s *Server) handleMonthlyExpenses(w http.ResponseWriter, r *http.Request) {
	categoryID, err := parseOptionalID(r.URL.Query().Get("category_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid category_id")
		return
	}
	userID, err := parseOptionalID(r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	rows, hit, err := s.stats.MonthlyExpenses(r.Context(), categoryID, userID)
	if err != nil {
		s.writeStatsError(w, r, "monthly expenses", err)
		return
	}

	setCacheHeader(w, hit)
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleRecurringSummary(w http.ResponseWriter, r *http.Request) {
	rows, hit, err := s.stats.RecurringSummary(r.Context())
	if err != nil {
		s.writeStatsError(w, r, "recurring summary", err)
		return
	}

	setCacheHeader(w, hit)
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleCategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	rows, hit, err := s.stats.CategoryBreakdown(r.Context())
	if err != nil {
		s.writeStatsError(w, r, "category breakdown", err)
		return
	}

	setCacheHeader(w, hit)
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleUserBreakdown(w http.ResponseWriter, r *http.Request) {
	rows, hit, err := s.stats.UserBreakdown(r.Context())
	if err != nil {
		s.writeStatsError(w, r, "user breakdown", err)
		return
	}

	setCacheHeader(w, hit)
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleStatisticsDebug(w http.ResponseWriter, r *http.Request) {
	snap, cached, err := s.stats.Debug(r.Context())
	if err != nil {
		s.writeStatsError(w, r, "debug snapshot", err)
		return
	}

	cacheStatus := "MISS"
	if cached {
		cacheStatus = "HIT"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot":     snap,
		"cache_status": cacheStatus,
		"cache_stats":  s.cache.Stats(),
	})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.cache.Clear()
	slog.InfoContext(r.Context(), "Statistics cache cleared by operator")
	writeJSON(w, http.StatusOK, map[string]string{"message": "cache cleared"})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

// writeStatsError maps aggregation failures to retry-safe statuses: a
// compute timeout is a gateway timeout, anything else a plain 500.
func (s *Server) writeStatsError(w http.ResponseWriter, r *http.Request, what string, err error) {
	slog.ErrorContext(r.Context(), "Statistics read failed", "what", what, "error", err)
	if errors.Is(err, cache.ErrComputeTimeout) {
		writeError(w, http.StatusGatewayTimeout, "aggregation timed out, retry later")
		return
	}
	writeError(w, http.StatusInternalServerError, "statistics unavailable")
}

func setCacheHeader(w http.ResponseWriter, hit bool) {
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
}

func parseOptionalID(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}
