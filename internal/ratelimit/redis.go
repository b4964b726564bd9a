package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript rejects without incrementing once the limit is reached, and arms
// the expiry only when it opens a new window.
var hitScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[2]) then
  return {current, 0}
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {current, 1}
`)

// RedisStore is a CounterStore shared by every instance pointing at the same
// Redis. Window expiry is Redis' own key TTL, so the now argument is ignored.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a RedisStore. Keys are namespaced with prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "forge:ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Hit implements CounterStore.
func (s *RedisStore) Hit(ctx context.Context, key string, _ time.Time, length time.Duration, limit int) (int, bool, error) {
	res, err := hitScript.Run(ctx, s.client, []string{s.prefix + key}, length.Milliseconds(), limit).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("redis hit %s: %w", key, err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("redis hit %s: unexpected reply %v", key, res)
	}
	return int(res[0]), res[1] == 1, nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
