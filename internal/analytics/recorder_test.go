package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"gateway-service/internal/bucketing"
	"gateway-service/internal/config"
	"gateway-service/internal/model"
)

type captureSink struct {
	mu     sync.Mutex
	usage  []model.UsageEvent
	audits []model.AuditEvent
}

func (s *captureSink) WriteUsage(_ context.Context, events []model.UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, events...)
	return nil
}

func (s *captureSink) WriteAudit(_ context.Context, event model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, event)
	return nil
}

func (s *captureSink) usageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.usage)
}

func newTestRecorder(sink *captureSink, bufferSize int) *Recorder {
	buckets := bucketing.NewManager(config.BucketingConfig{IdentityBuckets: 16, EventBuckets: 8})
	return NewRecorder(
		config.AnalyticsConfig{
			Enabled:       true,
			BufferSize:    bufferSize,
			BatchSize:     10,
			FlushInterval: 20 * time.Millisecond,
		},
		buckets,
		[]UsageSink{sink},
		[]AuditSink{sink},
	)
}

func TestRecorderFlushesUsageBatches(t *testing.T) {
	sink := &captureSink{}
	rec := newTestRecorder(sink, 64)
	go rec.Run()

	identity := model.CallerIdentity{Kind: model.KindAPIToken, ID: "tok-1", Tier: "api_token"}
	for i := 0; i < 25; i++ {
		rec.RecordUsage(identity, "POST", "/api/v1/docs/convert-url", 200, true, 12*time.Millisecond)
	}
	rec.Close()

	if got := sink.usageCount(); got != 25 {
		t.Fatalf("flushed %d usage events, want 25", got)
	}

	sink.mu.Lock()
	first := sink.usage[0]
	sink.mu.Unlock()
	if first.IdentityKind != model.KindAPIToken || first.Tier != "api_token" || !first.Allowed {
		t.Fatalf("event = %+v", first)
	}
	if first.IdentityBucket < 0 || first.IdentityBucket >= 16 {
		t.Fatalf("identity_bucket = %d out of range", first.IdentityBucket)
	}
	if first.DateBucket == "" || first.EventID == "" {
		t.Fatalf("event missing buckets: %+v", first)
	}
}

func TestRecorderDeliversAuditEvents(t *testing.T) {
	sink := &captureSink{}
	rec := newTestRecorder(sink, 64)
	go rec.Run()

	rec.RecordAudit("token.revoked", "user-1", "tok-9", "revoked by owner")
	rec.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.audits) != 1 {
		t.Fatalf("delivered %d audit events, want 1", len(sink.audits))
	}
	if sink.audits[0].Action != "token.revoked" || sink.audits[0].TokenID != "tok-9" {
		t.Fatalf("audit = %+v", sink.audits[0])
	}
}

func TestRecorderDropsWhenBufferFull(t *testing.T) {
	sink := &captureSink{}
	rec := newTestRecorder(sink, 4)
	// Run loop intentionally not started: the buffer cannot drain.

	identity := model.CallerIdentity{Kind: model.KindAnonymous, ID: "203.0.113.1", Tier: "anonymous"}
	for i := 0; i < 10; i++ {
		rec.RecordUsage(identity, "GET", "/", 200, true, time.Millisecond)
	}

	if got := rec.Dropped(); got != 6 {
		t.Fatalf("dropped = %d, want 6", got)
	}
}
