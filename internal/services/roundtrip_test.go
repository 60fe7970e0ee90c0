package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fincore/internal/bus"
	"fincore/internal/cache"
	"fincore/internal/core"
	"fincore/internal/storage"
)

// Write-then-read against the real store: a transaction insert must be
// visible in the monthly statistics immediately, never a stale cached total.
func TestWriteThenReadIsNeverStale(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "fincore.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	defer repo.Close()

	statsCache := cache.New(64, time.Hour, time.Second)
	b := bus.New()
	b.Subscribe(CacheInvalidator(statsCache))

	clock := fixedClock{t: time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)}
	stats := NewStatisticsService(repo, statsCache, clock)
	writes := NewTransactionService(repo, b)
	ctx := context.Background()

	// Warm the cache with an empty month.
	rows, _, err := stats.MonthlyExpenses(ctx, 0, 0)
	if err != nil {
		t.Fatalf("cold read: %v", err)
	}
	if rows[len(rows)-1].ExpenseCents != 0 {
		t.Fatalf("expected empty month, got %d", rows[len(rows)-1].ExpenseCents)
	}

	if _, err := writes.Create(ctx, core.Transaction{
		Date:       core.NewDate(2025, 4, 10),
		Amount:     core.Money{Cents: -4550},
		CategoryID: 2,
		UserID:     1,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	rows, hit, err := stats.MonthlyExpenses(ctx, 0, 0)
	if err != nil {
		t.Fatalf("read after write: %v", err)
	}
	if hit {
		t.Error("read after write was served from the cache")
	}
	if got := rows[len(rows)-1].ExpenseCents; got != 4550 {
		t.Errorf("April total = %d, want 4550", got)
	}

	// And the recomputed result is cached again until the next write.
	if _, hit, _ := stats.MonthlyExpenses(ctx, 0, 0); !hit {
		t.Error("second read after write did not hit the cache")
	}
}
