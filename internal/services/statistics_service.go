// Package services holds the business logic between the HTTP layer, the
// store, and the statistics cache.
package services

import (
	"context"
	"strconv"
	"time"

	"fincore/internal/cache"
	"fincore/internal/core"
	"fincore/internal/scheduler"
)

// statsWindowMonths is the aggregation window: the current month plus the
// five before it.
const statsWindowMonths = 6

// AggregationSource runs the actual aggregate queries against the
// transaction store. Implemented by storage.SQLiteRepository.
type AggregationSource interface {
	MonthlyExpenses(ctx context.Context, months []string, categoryID, userID int64) ([]core.MonthlyExpense, error)
	RecurringMonthly(ctx context.Context, months []string) ([]core.MonthlyExpense, error)
	CategoryTotals(ctx context.Context, windowStart string) ([]core.CategoryTotal, error)
	UserTotals(ctx context.Context, windowStart string) ([]core.UserTotal, error)
	DebugSnapshot(ctx context.Context, windowStart, windowEnd string) (core.DebugSnapshot, error)
}

// StatisticsService serves aggregate statistics through the cache. Each
// method returns whether the result came from the cache, which the debug
// surface reports.
type StatisticsService struct {
	source AggregationSource
	cache  *cache.StatisticsCache
	clock  scheduler.Clock
}

func NewStatisticsService(source AggregationSource, c *cache.StatisticsCache, clock scheduler.Clock) *StatisticsService {
	if clock == nil {
		clock = scheduler.SystemClock{}
	}
	return &StatisticsService{source: source, cache: c, clock: clock}
}

// MonthlyExpenses returns per-month expense totals over the window,
// optionally filtered by category and/or user (zero means no filter).
func (s *StatisticsService) MonthlyExpenses(ctx context.Context, categoryID, userID int64) ([]core.MonthlyExpense, bool, error) {
	months := lastMonths(s.clock.Now(), statsWindowMonths)
	key := cache.NewKey(cache.NamespaceMonthly).
		WithFilter("category_id", formatID(categoryID)).
		WithFilter("user_id", formatID(userID))

	return cache.GetTyped(ctx, s.cache, key, func(ctx context.Context) ([]core.MonthlyExpense, error) {
		return s.source.MonthlyExpenses(ctx, months, categoryID, userID)
	})
}

// RecurringSummary returns the per-month totals of scheduler-generated
// expenses over the window.
func (s *StatisticsService) RecurringSummary(ctx context.Context) ([]core.MonthlyExpense, bool, error) {
	months := lastMonths(s.clock.Now(), statsWindowMonths)
	key := cache.NewKey(cache.NamespaceRecurringSummary)

	return cache.GetTyped(ctx, s.cache, key, func(ctx context.Context) ([]core.MonthlyExpense, error) {
		return s.source.RecurringMonthly(ctx, months)
	})
}

// CategoryBreakdown returns expense totals per category over the window.
func (s *StatisticsService) CategoryBreakdown(ctx context.Context) ([]core.CategoryTotal, bool, error) {
	start := s.windowStart()
	key := cache.NewKey(cache.NamespaceCategoryBreakdown)

	return cache.GetTyped(ctx, s.cache, key, func(ctx context.Context) ([]core.CategoryTotal, error) {
		return s.source.CategoryTotals(ctx, start)
	})
}

// UserBreakdown returns expense totals per user over the window.
func (s *StatisticsService) UserBreakdown(ctx context.Context) ([]core.UserTotal, bool, error) {
	start := s.windowStart()
	key := cache.NewKey(cache.NamespaceUserBreakdown)

	return cache.GetTyped(ctx, s.cache, key, func(ctx context.Context) ([]core.UserTotal, error) {
		return s.source.UserTotals(ctx, start)
	})
}

// Debug reads raw row counts straight from the store, bypassing the cache,
// plus the cache's current hit state for the unfiltered monthly key.
func (s *StatisticsService) Debug(ctx context.Context) (core.DebugSnapshot, bool, error) {
	now := s.clock.Now()
	snap, err := s.source.DebugSnapshot(ctx, s.windowStart(), now.UTC().Format("2006-01-02"))
	if err != nil {
		return core.DebugSnapshot{}, false, err
	}

	monthlyKey := cache.NewKey(cache.NamespaceMonthly).
		WithFilter("category_id", "").
		WithFilter("user_id", "")
	return snap, s.cache.Contains(monthlyKey), nil
}

// Cache exposes the cache for the operator endpoints (clear, stats).
func (s *StatisticsService) Cache() *cache.StatisticsCache {
	return s.cache
}

func (s *StatisticsService) windowStart() string {
	return lastMonths(s.clock.Now(), statsWindowMonths)[0] + "-01"
}

// lastMonths lists the n month buckets ending at now's month, oldest first.
func lastMonths(now time.Time, n int) []string {
	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	months := make([]string, n)
	for i := 0; i < n; i++ {
		months[n-1-i] = first.AddDate(0, -i, 0).Format("2006-01")
	}
	return months
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
