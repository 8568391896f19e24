package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"gateway-service/internal/config"
)

// Manager assigns identities and events to stable hash buckets so the
// analytics tables shard evenly.
type Manager struct {
	identityBuckets int
	eventBuckets    int
	hasherPool      sync.Pool
}

func NewManager(cfg config.BucketingConfig) *Manager {
	m := &Manager{
		identityBuckets: cfg.IdentityBuckets,
		eventBuckets:    cfg.EventBuckets,
	}

	// Pool of hashers to avoid per-event allocation.
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return m
}

// IdentityBucket returns a consistent bucket for a caller identity,
// in [0, identityBuckets).
func (m *Manager) IdentityBucket(limitKey string) int {
	return m.bucket(limitKey, m.identityBuckets)
}

// EventBucket returns a bucket for an individual event, used as the
// Kafka partition key.
func (m *Manager) EventBucket(eventID string) int {
	return m.bucket(eventID, m.eventBuckets)
}

// DateBucket returns the UTC calendar date the event belongs to.
func (m *Manager) DateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (m *Manager) bucket(key string, numBuckets int) int {
	if numBuckets <= 0 {
		return 0
	}
	return int(m.hash(key) % uint64(numBuckets))
}

func (m *Manager) hash(key string) uint64 {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
