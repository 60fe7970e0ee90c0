// Package scheduler materializes recurring rules into concrete transactions,
// exactly once per (rule, period), with bounded catch-up for missed periods.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"fincore/internal/bus"
	"fincore/internal/core"
)

// RuleStore is the slice of the transactional store the scheduler needs.
// MaterializeInstance must run the existence check, the transaction insert,
// and the watermark update inside one store transaction, and return
// core.ErrDuplicateInstance when the (rule, period) pair already exists.
type RuleStore interface {
	ActiveRules(ctx context.Context, now time.Time) ([]core.RecurringRule, error)
	MaterializeInstance(ctx context.Context, rule core.RecurringRule, periodKey string, due core.Date) (core.Transaction, error)
}

// Scheduler converts due recurring rules into transactions. One instance
// runs per deployment; overlapping instances are tolerated only because the
// store enforces (rule, period) uniqueness as a last-resort guard.
type Scheduler struct {
	store      RuleStore
	bus        *bus.Bus
	clock      Clock
	maxCatchUp int

	processed atomic.Int64
	failed    atomic.Int64
	lastRun   atomic.Int64 // unix seconds of the last completed tick
}

// New creates a scheduler. maxCatchUp bounds how many missed periods a
// single rule may backfill in one tick.
func New(store RuleStore, b *bus.Bus, clock Clock, maxCatchUp int) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{
		store:      store,
		bus:        b,
		clock:      clock,
		maxCatchUp: maxCatchUp,
	}
}

// Tick materializes every due (rule, period) pair at the given time and
// returns the number of transactions created. Failures on one rule are
// logged and counted but never abort the batch; the failed rule is simply
// retried on the next tick, which is safe because materialization is
// idempotent.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (int, error) {
	rules, err := s.store.ActiveRules(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list active rules: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring rules",
		"total_active", len(rules),
		"as_of", now.Format("2006-01-02"))

	created := 0
	for _, rule := range rules {
		n, err := s.materializeRule(ctx, rule, now)
		created += n
		if err != nil {
			s.failed.Add(1)
			slog.ErrorContext(ctx, "Rule materialization failed",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"created_before_failure", n,
				"error", err)
			continue
		}
		s.processed.Add(1)
	}

	s.lastRun.Store(now.Unix())
	slog.InfoContext(ctx, "Recurring rule processing complete",
		"created", created,
		"rules_checked", len(rules))
	return created, nil
}

// materializeRule backfills the rule's missed periods in chronological
// order. Each period commits on its own, so a failure mid-backfill leaves
// the earlier periods materialized and the watermark pointing at the last
// committed one.
func (s *Scheduler) materializeRule(ctx context.Context, rule core.RecurringRule, now time.Time) (int, error) {
	periods := DuePeriods(rule, now, s.maxCatchUp)
	created := 0

	for _, p := range periods {
		tx, err := s.store.MaterializeInstance(ctx, rule, p.Key, p.Due)
		if errors.Is(err, core.ErrDuplicateInstance) {
			// Another scheduler instance, or a previous crashed tick, got
			// here first. The period is done; move on.
			slog.DebugContext(ctx, "Period already materialized",
				"rule_id", rule.ID,
				"period", p.Key)
			continue
		}
		if err != nil {
			return created, fmt.Errorf("materialize period %s: %w", p.Key, err)
		}

		created++
		slog.InfoContext(ctx, "Materialized recurring transaction",
			"rule_id", rule.ID,
			"rule_name", rule.Name,
			"period", p.Key,
			"date", tx.Date.ISO(),
			"amount_cents", tx.Amount.Cents)

		// Publish only after the store transaction committed, so a rolled
		// back write never discards valid cache entries.
		if s.bus != nil {
			s.bus.Publish(ctx, bus.Event{
				Kind:       bus.EventTransactionsChanged,
				Date:       tx.Date.Time,
				CategoryID: tx.CategoryID,
				UserID:     tx.UserID,
				RuleID:     rule.ID,
			})
		}
	}

	return created, nil
}

// Stats reports lifetime counters for the worker's health surface.
func (s *Scheduler) Stats() (processed, failed int64, lastRun time.Time) {
	ts := s.lastRun.Load()
	if ts > 0 {
		lastRun = time.Unix(ts, 0).UTC()
	}
	return s.processed.Load(), s.failed.Load(), lastRun
}

// Run ticks immediately and then at every interval until the context is
// cancelled. Tick errors are logged and the loop keeps going.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	if _, err := s.Tick(ctx, s.clock.Now()); err != nil {
		slog.ErrorContext(ctx, "Initial scheduler tick failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx, s.clock.Now()); err != nil {
				slog.ErrorContext(ctx, "Scheduler tick failed", "error", err)
			}
		}
	}
}
