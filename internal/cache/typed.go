package cache

import "context"

// GetTyped wraps StatisticsCache.GetOrCompute with a type assertion on the
// cached value. An entry of the wrong type is treated as corruption: it is
// dropped and recomputed once instead of being served.
func GetTyped[T any](ctx context.Context, c *StatisticsCache, key Key, compute func(context.Context) (T, error)) (T, bool, error) {
	var zero T

	erased := func(ctx context.Context) (any, error) {
		return compute(ctx)
	}

	v, hit, err := c.GetOrCompute(ctx, key, erased)
	if err != nil {
		return zero, false, err
	}
	if typed, ok := v.(T); ok {
		return typed, hit, nil
	}

	// Corrupted entry: evict and recompute.
	c.Remove(key)
	v, _, err = c.GetOrCompute(ctx, key, erased)
	if err != nil {
		return zero, false, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false, ErrCorruptEntry
	}
	return typed, false, nil
}
