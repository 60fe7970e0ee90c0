package services

import (
	"context"

	"fincore/internal/bus"
	"fincore/internal/cache"
)

// CacheInvalidator maps write events to cache namespace invalidations. Any
// transactions-changed event can move the monthly totals, the category and
// user breakdowns, and the recurring summary for its month at once, so
// invalidation is coarsened to all four namespaces rather than chasing the
// precise dependency set.
func CacheInvalidator(c *cache.StatisticsCache) bus.Handler {
	return func(ctx context.Context, ev bus.Event) {
		if ev.Kind != bus.EventTransactionsChanged {
			return
		}
		for _, ns := range cache.Namespaces() {
			c.Invalidate(ns)
		}
	}
}
