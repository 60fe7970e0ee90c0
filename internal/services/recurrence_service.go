package services

import (
	"context"
	"fmt"
	"log/slog"

	"fincore/internal/core"
)

// RuleStore is the rule CRUD slice of the store.
type RuleStore interface {
	CreateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error)
	GetRule(ctx context.Context, id int64) (core.RecurringRule, error)
	DeactivateRule(ctx context.Context, id int64) error
}

// RecurrenceService owns recurring rule management. Rule writes publish no
// invalidation: they only change what the scheduler materializes next, and
// those materializations invalidate on their own commits.
type RecurrenceService struct {
	store RuleStore
}

func NewRecurrenceService(store RuleStore) *RecurrenceService {
	return &RecurrenceService{store: store}
}

func (s *RecurrenceService) Create(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error) {
	if err := rule.Validate(); err != nil {
		return core.RecurringRule{}, err
	}

	created, err := s.store.CreateRule(ctx, rule)
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("create rule: %w", err)
	}

	slog.InfoContext(ctx, "Recurring rule created",
		"id", created.ID,
		"name", created.Name,
		"cadence", string(created.Cadence),
		"start_date", created.StartDate.ISO())
	return created, nil
}

func (s *RecurrenceService) Get(ctx context.Context, id int64) (core.RecurringRule, error) {
	return s.store.GetRule(ctx, id)
}

// Deactivate soft-deletes a rule; historical transactions keep referencing it.
func (s *RecurrenceService) Deactivate(ctx context.Context, id int64) error {
	if err := s.store.DeactivateRule(ctx, id); err != nil {
		return fmt.Errorf("deactivate rule: %w", err)
	}
	slog.InfoContext(ctx, "Recurring rule deactivated", "id", id)
	return nil
}
