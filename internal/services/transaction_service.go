package services

import (
	"context"
	"fmt"
	"log/slog"

	"fincore/internal/bus"
	"fincore/internal/core"
)

// TransactionStore is the slice of the store the write paths need.
// Implemented by storage.SQLiteRepository.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransaction(ctx context.Context, id int64) (core.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
}

// TransactionService owns the manual write path. Every committed write is
// followed by an invalidation event on the bus, before the call returns,
// so a client can never read a stale statistic right after writing.
type TransactionService struct {
	store TransactionStore
	bus   *bus.Bus
}

func NewTransactionService(store TransactionStore, b *bus.Bus) *TransactionService {
	return &TransactionService{store: store, bus: b}
}

func (s *TransactionService) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	created, err := s.store.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	s.publishChanged(ctx, created)
	return created, nil
}

func (s *TransactionService) Update(ctx context.Context, t core.Transaction) error {
	if t.ID <= 0 {
		return core.ErrTransactionNotFound
	}
	if err := t.Validate(); err != nil {
		return err
	}

	if err := s.store.UpdateTransaction(ctx, t); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	s.publishChanged(ctx, t)
	return nil
}

func (s *TransactionService) Delete(ctx context.Context, id int64) error {
	deleted, err := s.store.DeleteTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	// The deleted row's date range drives the invalidation.
	s.publishChanged(ctx, deleted)
	return nil
}

func (s *TransactionService) Get(ctx context.Context, id int64) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *TransactionService) publishChanged(ctx context.Context, t core.Transaction) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, bus.Event{
		Kind:       bus.EventTransactionsChanged,
		Date:       t.Date.Time,
		CategoryID: t.CategoryID,
		UserID:     t.UserID,
		RuleID:     t.RuleID,
	})
	slog.DebugContext(ctx, "Transaction write invalidated statistics", "id", t.ID)
}
