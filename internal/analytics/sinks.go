package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"gateway-service/internal/bucketing"
	"gateway-service/internal/client"
	"gateway-service/internal/config"
	"gateway-service/internal/model"
)

const usageInsertQuery = `INSERT INTO usage_events
	(event_id, timestamp, identity_kind, identity_id, tier, method, path,
	 status_code, allowed, duration_ms, identity_bucket, date_bucket)`

// ClickHouseUsageSink batches usage events into the usage_events table.
type ClickHouseUsageSink struct {
	client *client.ClickHouseClient
}

func NewClickHouseUsageSink(c *client.ClickHouseClient) *ClickHouseUsageSink {
	return &ClickHouseUsageSink{client: c}
}

func (s *ClickHouseUsageSink) WriteUsage(ctx context.Context, events []model.UsageEvent) error {
	rows := make([][]interface{}, 0, len(events))
	for _, e := range events {
		rows = append(rows, []interface{}{
			e.EventID, e.Timestamp, e.IdentityKind, e.IdentityID, e.Tier,
			e.Method, e.Path, e.StatusCode, e.Allowed, e.DurationMs,
			e.IdentityBucket, e.DateBucket,
		})
	}
	if err := s.client.BatchInsert(ctx, usageInsertQuery, rows); err != nil {
		return fmt.Errorf("clickhouse usage insert: %w", err)
	}
	return nil
}

// KafkaUsageSink publishes usage events to the usage topic, keyed by
// event bucket so partitions stay balanced.
type KafkaUsageSink struct {
	producer *client.KafkaProducer
	topic    string
	buckets  *bucketing.Manager
}

func NewKafkaUsageSink(p *client.KafkaProducer, cfg config.KafkaConfig, buckets *bucketing.Manager) *KafkaUsageSink {
	return &KafkaUsageSink{producer: p, topic: cfg.UsageTopic, buckets: buckets}
}

func (s *KafkaUsageSink) WriteUsage(ctx context.Context, events []model.UsageEvent) error {
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal usage event: %w", err)
		}
		key := []byte(strconv.Itoa(s.buckets.EventBucket(e.EventID)))
		if err := s.producer.Produce(ctx, s.topic, key, payload); err != nil {
			return fmt.Errorf("publish usage event: %w", err)
		}
	}
	return nil
}

// ElasticAuditSink indexes audit events for later search.
type ElasticAuditSink struct {
	client *client.ESClient
	index  string
}

func NewElasticAuditSink(c *client.ESClient, cfg config.ElasticConfig) *ElasticAuditSink {
	return &ElasticAuditSink{client: c, index: cfg.AuditIndex}
}

func (s *ElasticAuditSink) WriteAudit(ctx context.Context, event model.AuditEvent) error {
	if err := s.client.IndexDocument(ctx, s.index, event.EventID, event); err != nil {
		return fmt.Errorf("index audit event: %w", err)
	}
	return nil
}
