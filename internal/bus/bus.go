// Package bus decouples transaction write paths from the statistics cache.
// Publishing fans out synchronously, so by the time a write call returns,
// every subscriber has observed the invalidation.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventTransactionsChanged marks any insert, update, or delete of a
// transaction row, whether manual or scheduler-generated.
const EventTransactionsChanged = "transactions-changed"

// Event describes a committed write that may affect cached aggregates.
type Event struct {
	Kind       string    `json:"kind"`
	Date       time.Time `json:"date"`
	CategoryID int64     `json:"category_id"`
	UserID     int64     `json:"user_id"`
	RuleID     int64     `json:"rule_id,omitempty"`
}

// Handler receives published events. Handlers run on the publisher's
// goroutine and must not block for long.
type Handler func(ctx context.Context, ev Event)

// Bus is an in-process publish point for invalidation events.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func New() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all subsequently published events.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers the event to every subscriber before returning.
// Write paths call it only after their store transaction has committed.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, ev)
	}

	slog.DebugContext(ctx, "Invalidation event published",
		"kind", ev.Kind,
		"date", ev.Date.Format("2006-01-02"),
		"category_id", ev.CategoryID,
		"user_id", ev.UserID,
		"subscribers", len(handlers))
}
