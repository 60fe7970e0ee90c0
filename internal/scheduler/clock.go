package scheduler

import "time"

// Clock supplies wall-clock time. Ticks take the current time through this
// interface so tests can drive the scheduler with synthetic timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real system time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
