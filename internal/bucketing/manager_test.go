package bucketing

import (
	"testing"
	"time"

	"gateway-service/internal/config"
)

func TestIdentityBucketStableAndBounded(t *testing.T) {
	m := NewManager(config.BucketingConfig{IdentityBuckets: 16, EventBuckets: 8})

	first := m.IdentityBucket("api_token:tok-123")
	for i := 0; i < 100; i++ {
		if got := m.IdentityBucket("api_token:tok-123"); got != first {
			t.Fatalf("bucket changed across calls: %d vs %d", got, first)
		}
	}
	if first < 0 || first >= 16 {
		t.Fatalf("bucket %d out of range [0,16)", first)
	}
}

func TestDateBucket(t *testing.T) {
	m := NewManager(config.BucketingConfig{IdentityBuckets: 16, EventBuckets: 8})

	at := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	if got := m.DateBucket(at); got != "2026-03-14" {
		t.Fatalf("DateBucket = %q", got)
	}
}
