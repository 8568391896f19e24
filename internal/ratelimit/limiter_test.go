package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gateway-service/internal/config"
	"gateway-service/internal/model"
)

func testConfig(minute, hour, day int) config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:  true,
		FailOpen: true,
		Tiers: map[string]config.TierLimits{
			"anonymous": {PerMinute: minute, PerHour: hour, PerDay: day},
			"api_token": {PerMinute: minute * 4, PerHour: hour * 4, PerDay: day * 4},
		},
	}
}

func anonIdentity() model.CallerIdentity {
	return model.CallerIdentity{Kind: model.KindAnonymous, ID: "10.0.0.1", Tier: "anonymous"}
}

// fixedClock pins the limiter inside one window so tests cannot straddle
// a real boundary.
func fixedClock(l *Limiter, at time.Time) {
	l.now = func() time.Time { return at }
}

func TestCeilingAdmitsExactlyLimit(t *testing.T) {
	l := NewLimiter(NewMemoryStore(), testConfig(5, 1000, 10000))
	fixedClock(l, time.Date(2026, 3, 1, 12, 30, 5, 0, time.UTC))
	ctx := context.Background()
	id := anonIdentity()

	for i := 1; i <= 5; i++ {
		dec, err := l.CheckAndIncrement(ctx, id)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if !dec.Allowed {
			t.Fatalf("request %d denied, want allowed", i)
		}
		if dec.Remaining != 5-i {
			t.Fatalf("request %d remaining = %d, want %d", i, dec.Remaining, 5-i)
		}
	}

	dec, err := l.CheckAndIncrement(ctx, id)
	if err != nil {
		t.Fatalf("request 6: %v", err)
	}
	if dec.Allowed {
		t.Fatal("request over ceiling admitted")
	}
	if dec.RetryAfter <= 0 {
		t.Fatalf("RetryAfter = %v, want > 0", dec.RetryAfter)
	}
	if dec.Window != WindowMinute {
		t.Fatalf("violated window = %s, want minute", dec.Window)
	}
	if got, want := dec.ResetAt, time.Date(2026, 3, 1, 12, 31, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("ResetAt = %v, want %v", got, want)
	}
}

func TestWindowRollover(t *testing.T) {
	l := NewLimiter(NewMemoryStore(), testConfig(3, 1000, 10000))
	at := time.Date(2026, 3, 1, 12, 30, 59, 0, time.UTC)
	fixedClock(l, at)
	ctx := context.Background()
	id := anonIdentity()

	for i := 0; i < 3; i++ {
		if dec, _ := l.CheckAndIncrement(ctx, id); !dec.Allowed {
			t.Fatalf("warm-up request %d denied", i+1)
		}
	}
	if dec, _ := l.CheckAndIncrement(ctx, id); dec.Allowed {
		t.Fatal("4th request at :59 admitted, want denied")
	}

	// One second later the minute window has reset.
	fixedClock(l, at.Add(time.Second))
	dec, err := l.CheckAndIncrement(ctx, id)
	if err != nil {
		t.Fatalf("post-rollover request: %v", err)
	}
	if !dec.Allowed {
		t.Fatal("post-rollover request denied")
	}
	if dec.Remaining != 2 {
		t.Fatalf("post-rollover remaining = %d, want 2", dec.Remaining)
	}
}

func TestDeniedAttemptsStillCountAgainstLargerWindows(t *testing.T) {
	// Minute ceiling 2, hour ceiling 5: minute denials keep burning the
	// hour budget, so the hour window eventually becomes the blocker.
	l := NewLimiter(NewMemoryStore(), testConfig(2, 5, 10000))
	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	fixedClock(l, at)
	ctx := context.Background()
	id := anonIdentity()

	for i := 0; i < 3; i++ {
		l.CheckAndIncrement(ctx, id) // 2 allowed, 1 denied by minute
	}

	fixedClock(l, at.Add(time.Minute))
	for i := 0; i < 2; i++ {
		if dec, _ := l.CheckAndIncrement(ctx, id); !dec.Allowed {
			t.Fatalf("request %d after rollover denied", i+1)
		}
	}

	// 6th attempt this hour: both minute and hour exceeded; the hour
	// window blocks longer and must be the one reported.
	dec, err := l.CheckAndIncrement(ctx, id)
	if err != nil {
		t.Fatalf("6th request: %v", err)
	}
	if dec.Allowed {
		t.Fatal("6th request admitted over hour ceiling")
	}
	if dec.Window != WindowHour {
		t.Fatalf("violated window = %s, want hour", dec.Window)
	}
}

func TestConcurrentAdmissionNeverOverAdmits(t *testing.T) {
	const ceiling = 40
	const attempts = 100

	l := NewLimiter(NewMemoryStore(), testConfig(ceiling, 100000, 1000000))
	fixedClock(l, time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC))
	ctx := context.Background()
	id := anonIdentity()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dec, err := l.CheckAndIncrement(ctx, id)
			if err != nil {
				t.Errorf("CheckAndIncrement: %v", err)
				return
			}
			if dec.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != ceiling {
		t.Fatalf("admitted %d of %d, want exactly %d", allowed, attempts, ceiling)
	}
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestBackendFailurePolicies(t *testing.T) {
	ctx := context.Background()
	id := anonIdentity()

	open := NewLimiter(failingStore{}, testConfig(5, 50, 500))
	dec, err := open.CheckAndIncrement(ctx, id)
	if err != nil {
		t.Fatalf("fail-open returned error: %v", err)
	}
	if !dec.Allowed || !dec.Degraded {
		t.Fatalf("fail-open decision = %+v, want allowed and degraded", dec)
	}

	cfg := testConfig(5, 50, 500)
	cfg.FailOpen = false
	closed := NewLimiter(failingStore{}, cfg)
	if _, err := closed.CheckAndIncrement(ctx, id); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("fail-closed: got %v, want ErrBackendUnavailable", err)
	}
}

func TestUnknownTierFallsBackToAnonymous(t *testing.T) {
	l := NewLimiter(NewMemoryStore(), testConfig(1, 100, 1000))
	fixedClock(l, time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC))
	ctx := context.Background()
	id := model.CallerIdentity{Kind: model.KindFirebase, ID: "uid-1", Tier: "no-such-tier"}

	if dec, _ := l.CheckAndIncrement(ctx, id); !dec.Allowed {
		t.Fatal("first request denied")
	}
	if dec, _ := l.CheckAndIncrement(ctx, id); dec.Allowed {
		t.Fatal("second request admitted past anonymous ceiling")
	}
}
