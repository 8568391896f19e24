package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gateway-service/internal/bucketing"
	"gateway-service/internal/config"
	"gateway-service/internal/model"
	"gateway-service/internal/util"
)

// UsageSink receives batches of usage events.
type UsageSink interface {
	WriteUsage(ctx context.Context, events []model.UsageEvent) error
}

// AuditSink receives individual audit events.
type AuditSink interface {
	WriteAudit(ctx context.Context, event model.AuditEvent) error
}

// Recorder buffers usage and audit events off the request path and
// flushes them to the configured sinks in batches. A full buffer drops
// events rather than blocking a request.
type Recorder struct {
	cfg     config.AnalyticsConfig
	buckets *bucketing.Manager

	usageSinks []UsageSink
	auditSinks []AuditSink

	usageCh chan model.UsageEvent
	auditCh chan model.AuditEvent

	dropped int64
	mu      sync.Mutex

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewRecorder(cfg config.AnalyticsConfig, buckets *bucketing.Manager, usage []UsageSink, audit []AuditSink) *Recorder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	return &Recorder{
		cfg:        cfg,
		buckets:    buckets,
		usageSinks: usage,
		auditSinks: audit,
		usageCh:    make(chan model.UsageEvent, cfg.BufferSize),
		auditCh:    make(chan model.AuditEvent, cfg.BufferSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// RecordUsage enqueues a usage event. Never blocks.
func (r *Recorder) RecordUsage(identity model.CallerIdentity, method, path string, statusCode int, allowed bool, duration time.Duration) {
	now := time.Now().UTC()
	event := model.UsageEvent{
		EventID:        uuid.NewString(),
		Timestamp:      now,
		IdentityKind:   identity.Kind,
		IdentityID:     identity.ID,
		Tier:           identity.Tier,
		Method:         method,
		Path:           path,
		StatusCode:     statusCode,
		Allowed:        allowed,
		DurationMs:     duration.Milliseconds(),
		IdentityBucket: r.buckets.IdentityBucket(identity.LimitKey()),
		DateBucket:     r.buckets.DateBucket(now),
	}

	select {
	case r.usageCh <- event:
	default:
		r.noteDrop()
	}
}

// RecordAudit enqueues an audit event for token lifecycle changes.
// Never blocks.
func (r *Recorder) RecordAudit(action, actorID, tokenID, detail string) {
	event := model.AuditEvent{
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		ActorID:   actorID,
		TokenID:   tokenID,
		Detail:    detail,
	}

	select {
	case r.auditCh <- event:
	default:
		r.noteDrop()
	}
}

// Dropped reports how many events were discarded because the buffer
// was full.
func (r *Recorder) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Recorder) noteDrop() {
	r.mu.Lock()
	r.dropped++
	n := r.dropped
	r.mu.Unlock()

	if n%1000 == 1 {
		util.Warn("Analytics buffer full, dropping events", zap.Int64("dropped_total", n))
	}
}

// Run drains the buffers until Close is called. Usage events flush in
// batches on size or interval; audit events flush one at a time.
func (r *Recorder) Run() {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]model.UsageEvent, 0, r.cfg.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.flushUsage(batch)
		batch = batch[:0]
	}

	for {
		select {
		case event := <-r.usageCh:
			batch = append(batch, event)
			if len(batch) >= r.cfg.BatchSize {
				flush()
			}
		case event := <-r.auditCh:
			r.flushAudit(event)
		case <-ticker.C:
			flush()
		case <-r.stop:
			// Drain whatever is left before exiting.
			for {
				select {
				case event := <-r.usageCh:
					batch = append(batch, event)
				case event := <-r.auditCh:
					r.flushAudit(event)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (r *Recorder) flushUsage(batch []model.UsageEvent) {
	events := make([]model.UsageEvent, len(batch))
	copy(events, batch)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, sink := range r.usageSinks {
		sink := sink
		g.Go(func() error {
			return sink.WriteUsage(gctx, events)
		})
	}
	if err := g.Wait(); err != nil {
		util.Error("Usage flush failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err))
	}
}

func (r *Recorder) flushAudit(event model.AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, sink := range r.auditSinks {
		if err := sink.WriteAudit(ctx, event); err != nil {
			util.Error("Audit write failed",
				zap.String("action", event.Action),
				zap.Error(err))
		}
	}
}

// Close stops the run loop after a final drain.
func (r *Recorder) Close() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	select {
	case <-r.done:
	case <-time.After(15 * time.Second):
		util.Warn("Analytics recorder did not drain in time")
	}
}
