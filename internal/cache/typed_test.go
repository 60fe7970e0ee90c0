package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGetTyped(t *testing.T) {
	c := New(10, time.Hour, time.Second)
	key := NewKey(NamespaceMonthly)

	rows, hit, err := GetTyped(context.Background(), c, key, func(ctx context.Context) ([]string, error) {
		return []string{"2025-01", "2025-02"}, nil
	})
	if err != nil {
		t.Fatalf("GetTyped failed: %v", err)
	}
	if hit {
		t.Error("first call reported a hit")
	}
	if len(rows) != 2 {
		t.Errorf("got %d rows, want 2", len(rows))
	}

	rows, hit, err = GetTyped(context.Background(), c, key, func(ctx context.Context) ([]string, error) {
		t.Error("compute ran on a warm cache")
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !hit {
		t.Error("second call reported a miss")
	}
	if len(rows) != 2 {
		t.Errorf("got %d rows, want 2", len(rows))
	}
}

func TestGetTypedRecomputesCorruptEntry(t *testing.T) {
	c := New(10, time.Hour, time.Second)
	key := NewKey(NamespaceMonthly)

	// Poison the key with a value of the wrong type.
	if _, _, err := c.GetOrCompute(context.Background(), key, func(ctx context.Context) (any, error) {
		return 12345, nil
	}); err != nil {
		t.Fatal(err)
	}

	computes := 0
	v, hit, err := GetTyped(context.Background(), c, key, func(ctx context.Context) (string, error) {
		computes++
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("GetTyped failed on corrupt entry: %v", err)
	}
	if hit {
		t.Error("corrupt entry reported as a hit")
	}
	if v != "recovered" {
		t.Errorf("value = %q, want recovered", v)
	}
	if computes != 1 {
		t.Errorf("compute ran %d times, want 1", computes)
	}
}

func TestGetTypedPropagatesComputeError(t *testing.T) {
	c := New(10, time.Hour, time.Second)
	key := NewKey(NamespaceMonthly)

	wantErr := errors.New("aggregation failed")
	_, _, err := GetTyped(context.Background(), c, key, func(ctx context.Context) (string, error) {
		return "", wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
}
