package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreIncrementIsSequential(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		got, err := s.Increment(ctx, "k", time.Minute)
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if got != want {
			t.Fatalf("count = %d, want %d", got, want)
		}
	}
}

func TestMemoryStoreExpiresCounters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Increment(ctx, "k", time.Nanosecond); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	time.Sleep(2 * time.Millisecond)

	got, err := s.Increment(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("Increment after expiry: %v", err)
	}
	if got != 1 {
		t.Fatalf("count after expiry = %d, want 1", got)
	}
}

func TestMemoryStoreConcurrentIncrements(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Increment(ctx, "shared", time.Minute); err != nil {
				t.Errorf("Increment: %v", err)
			}
		}()
	}
	wg.Wait()

	final, err := s.Increment(ctx, "shared", time.Minute)
	if err != nil {
		t.Fatalf("final Increment: %v", err)
	}
	if final != n+1 {
		t.Fatalf("final count = %d, want %d", final, n+1)
	}
}

func TestMemoryStoreCleanupDropsExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Increment(ctx, "stale", time.Nanosecond)
	s.Increment(ctx, "live", time.Hour)
	time.Sleep(2 * time.Millisecond)

	s.Cleanup()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries["stale"]; ok {
		t.Fatal("expired entry survived Cleanup")
	}
	if _, ok := s.entries["live"]; !ok {
		t.Fatal("live entry dropped by Cleanup")
	}
}
