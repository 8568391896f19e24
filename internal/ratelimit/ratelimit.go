package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Window is one fixed counting granularity. Counters reset exactly at
// the window boundary; the up-to-2x burst that fixed windows permit at
// boundaries is an accepted tradeoff of the documented limits.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// windows in ascending duration order.
var windows = [...]Window{WindowMinute, WindowHour, WindowDay}

func (w Window) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// ErrBackendUnavailable wraps counter-store failures. Whether it
// surfaces to callers depends on the configured fail-open policy.
var ErrBackendUnavailable = errors.New("rate limit backend unavailable")

// Decision is the outcome of one admission check. Limit, Remaining and
// ResetAt describe the most restrictive granularity so they can go
// straight into response headers.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	Window     Window
	// Degraded marks a request admitted fail-open while the counter
	// backend was unreachable.
	Degraded bool
}

// CounterStore is the atomic keyed counter the limiter is built on.
// Increment must be atomic across concurrent callers sharing a key:
// increment-then-compare, never read-then-write.
type CounterStore interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
