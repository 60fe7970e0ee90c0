package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"fincore/internal/bus"
	"fincore/internal/core"
)

type fakeTransactionStore struct {
	transactions map[int64]core.Transaction
	nextID       int64
}

func newFakeTransactionStore() *fakeTransactionStore {
	return &fakeTransactionStore{transactions: make(map[int64]core.Transaction)}
}

func (s *fakeTransactionStore) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	s.nextID++
	t.ID = s.nextID
	s.transactions[t.ID] = t
	return t, nil
}

func (s *fakeTransactionStore) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	if _, ok := s.transactions[t.ID]; !ok {
		return core.ErrTransactionNotFound
	}
	s.transactions[t.ID] = t
	return nil
}

func (s *fakeTransactionStore) DeleteTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	t, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, core.ErrTransactionNotFound
	}
	delete(s.transactions, id)
	return t, nil
}

func (s *fakeTransactionStore) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	t, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, core.ErrTransactionNotFound
	}
	return t, nil
}

func validTransaction() core.Transaction {
	return core.Transaction{
		Date:       core.NewDate(2025, 4, 10),
		Amount:     core.Money{Cents: -4550},
		CategoryID: 3,
		UserID:     1,
		Notes:      "groceries",
	}
}

func TestTransactionWritesPublishInvalidation(t *testing.T) {
	store := newFakeTransactionStore()
	b := bus.New()

	var events []bus.Event
	b.Subscribe(func(ctx context.Context, ev bus.Event) {
		events = append(events, ev)
	})

	svc := NewTransactionService(store, b)
	ctx := context.Background()

	created, err := svc.Create(ctx, validTransaction())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID == 0 {
		t.Error("created transaction has no id")
	}

	created.Amount.Cents = -5000
	if err := svc.Update(ctx, created); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("got %d invalidation events, want 3", len(events))
	}
	for i, ev := range events {
		if ev.Kind != bus.EventTransactionsChanged {
			t.Errorf("event[%d].Kind = %q", i, ev.Kind)
		}
		if ev.CategoryID != 3 || ev.UserID != 1 {
			t.Errorf("event[%d] carries category %d user %d", i, ev.CategoryID, ev.UserID)
		}
		if !ev.Date.Equal(time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("event[%d].Date = %v", i, ev.Date)
		}
	}
}

func TestTransactionValidationFailsBeforeStore(t *testing.T) {
	store := newFakeTransactionStore()
	b := bus.New()
	published := false
	b.Subscribe(func(ctx context.Context, ev bus.Event) { published = true })

	svc := NewTransactionService(store, b)

	bad := validTransaction()
	bad.Amount.Cents = 0
	if _, err := svc.Create(context.Background(), bad); err == nil {
		t.Fatal("Create accepted a zero amount")
	}
	if len(store.transactions) != 0 {
		t.Error("invalid transaction reached the store")
	}
	if published {
		t.Error("invalid write published an invalidation")
	}
}

func TestTransactionDeleteMissing(t *testing.T) {
	svc := NewTransactionService(newFakeTransactionStore(), nil)
	err := svc.Delete(context.Background(), 42)
	if !errors.Is(err, core.ErrTransactionNotFound) {
		t.Errorf("error = %v, want ErrTransactionNotFound", err)
	}
}

type fakeRuleStore struct {
	rules  map[int64]core.RecurringRule
	nextID int64
}

func (s *fakeRuleStore) CreateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error) {
	s.nextID++
	rule.ID = s.nextID
	s.rules[rule.ID] = rule
	return rule, nil
}

func (s *fakeRuleStore) GetRule(ctx context.Context, id int64) (core.RecurringRule, error) {
	r, ok := s.rules[id]
	if !ok {
		return core.RecurringRule{}, core.ErrRuleNotFound
	}
	return r, nil
}

func (s *fakeRuleStore) DeactivateRule(ctx context.Context, id int64) error {
	r, ok := s.rules[id]
	if !ok {
		return core.ErrRuleNotFound
	}
	r.Active = false
	s.rules[id] = r
	return nil
}

func TestRecurrenceServiceValidatesOnCreate(t *testing.T) {
	store := &fakeRuleStore{rules: make(map[int64]core.RecurringRule)}
	svc := NewRecurrenceService(store)
	ctx := context.Background()

	rule := core.RecurringRule{
		Name:        "Rent",
		OwnerUserID: 1,
		Amount:      core.Money{Cents: -120000},
		CategoryID:  1,
		Cadence:     core.CadenceMonthly,
		AnchorDay:   1,
		StartDate:   core.NewDate(2025, 1, 1),
		Active:      true,
	}
	created, err := svc.Create(ctx, rule)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID == 0 {
		t.Error("created rule has no id")
	}

	rule.Cadence = "yearly"
	if _, err := svc.Create(ctx, rule); !errors.Is(err, core.ErrInvalidCadence) {
		t.Errorf("error = %v, want ErrInvalidCadence", err)
	}

	if err := svc.Deactivate(ctx, created.ID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Active {
		t.Error("rule still active after Deactivate")
	}
}
