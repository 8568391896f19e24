package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gateway-service/internal/config"
	"gateway-service/internal/model"
	"gateway-service/internal/util"
)

const keyPrefix = "ratelimit:"

// Limiter evaluates one identity against per-tier ceilings across the
// minute, hour and day windows.
type Limiter struct {
	store    CounterStore
	tiers    map[string]config.TierLimits
	failOpen bool
	now      func() time.Time
}

func NewLimiter(store CounterStore, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		store:    store,
		tiers:    cfg.Tiers,
		failOpen: cfg.FailOpen,
		now:      time.Now,
	}
}

type windowState struct {
	window    Window
	limit     int
	count     int64
	resetAt   time.Time
	exceeded  bool
	remaining int
}

// CheckAndIncrement counts the request against every window and decides
// admission. Every attempt is recorded, including denied ones, so a
// caller hammering past one ceiling still burns down the larger windows.
func (l *Limiter) CheckAndIncrement(ctx context.Context, identity model.CallerIdentity) (Decision, error) {
	limits, ok := l.tiers[identity.Tier]
	if !ok {
		// Unknown tiers get the anonymous ceilings rather than a free pass.
		util.Warn("Unknown rate limit tier, applying anonymous ceilings",
			zap.String("tier", identity.Tier),
			zap.String("identity", identity.LimitKey()))
		limits = l.tiers[string(model.KindAnonymous)]
	}

	now := l.now()
	states := make([]windowState, 0, len(windows))

	for _, w := range windows {
		start := now.Truncate(w.Duration())
		key := fmt.Sprintf("%s%s:%s:%d", keyPrefix, identity.LimitKey(), w, start.Unix())

		count, err := l.store.Increment(ctx, key, w.Duration())
		if err != nil {
			return l.decideOnFailure(identity, err)
		}

		limit := ceilingFor(limits, w)
		st := windowState{
			window:    w,
			limit:     limit,
			count:     count,
			resetAt:   start.Add(w.Duration()),
			exceeded:  count > int64(limit),
			remaining: limit - int(count),
		}
		if st.remaining < 0 {
			st.remaining = 0
		}
		states = append(states, st)
	}

	// Denied: report the violated window that blocks the longest.
	var worst *windowState
	for i := range states {
		if !states[i].exceeded {
			continue
		}
		if worst == nil || states[i].resetAt.After(worst.resetAt) {
			worst = &states[i]
		}
	}
	if worst != nil {
		return Decision{
			Allowed:    false,
			Limit:      worst.limit,
			Remaining:  0,
			ResetAt:    worst.resetAt,
			RetryAfter: worst.resetAt.Sub(now),
			Window:     worst.window,
		}, nil
	}

	// Admitted: headers reflect the tightest remaining budget.
	tightest := &states[0]
	for i := 1; i < len(states); i++ {
		if states[i].remaining < tightest.remaining {
			tightest = &states[i]
		}
	}
	return Decision{
		Allowed:   true,
		Limit:     tightest.limit,
		Remaining: tightest.remaining,
		ResetAt:   tightest.resetAt,
		Window:    tightest.window,
	}, nil
}

// decideOnFailure applies the configured policy when the counter store
// is unreachable. Fail-open admits and logs; fail-closed reports
// ErrBackendUnavailable for the caller to turn into a 503.
func (l *Limiter) decideOnFailure(identity model.CallerIdentity, cause error) (Decision, error) {
	if l.failOpen {
		util.Warn("Rate limit backend unavailable, admitting fail-open",
			zap.String("identity", identity.LimitKey()),
			zap.Error(cause))
		return Decision{Allowed: true, Degraded: true}, nil
	}
	return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, cause)
}

func ceilingFor(limits config.TierLimits, w Window) int {
	switch w {
	case WindowMinute:
		return limits.PerMinute
	case WindowHour:
		return limits.PerHour
	default:
		return limits.PerDay
	}
}
