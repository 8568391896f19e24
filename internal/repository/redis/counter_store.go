package redis

import (
	"context"
	"fmt"
	"time"

	"gateway-service/internal/client"
)

// incrScript is the fixed-window primitive: INCR and stamp the TTL on
// first touch, atomically. A pipeline INCR+EXPIRE would refresh the TTL
// on every hit; keys embed the window start so that would be harmless,
// but the script keeps the two commands a single round trip regardless.
const incrScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`

// CounterStore is the distributed ratelimit.CounterStore backed by the
// shared Redis instance. Counters are visible to every gateway process.
type CounterStore struct {
	client *client.RedisClient
}

func NewCounterStore(client *client.RedisClient) *CounterStore {
	return &CounterStore{client: client}
}

// Increment atomically bumps the counter for key and returns the
// post-increment value. The TTL only needs to outlive the window; the
// key itself changes at every boundary.
func (s *CounterStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	seconds := int64(ttl.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	result, err := s.client.Eval(ctx, incrScript, []string{key}, seconds)
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}

	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected counter reply type %T for %s", result, key)
	}
	return count, nil
}
