package presence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// expireScript deletes hash fields only while they still hold the value the
// caller observed, so a heartbeat landing between read and cleanup survives.
var expireScript = redis.NewScript(`
local removed = 0
for i = 1, #ARGV, 2 do
	if redis.call('HGET', KEYS[1], ARGV[i]) == ARGV[i + 1] then
		removed = removed + redis.call('HDEL', KEYS[1], ARGV[i])
	end
end
return removed
`)

// RedisBackend implements Backend as a single redis hash keyed by connection id
type RedisBackend struct {
	client redis.UniversalClient
	key    string
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend creates a backend storing records in the hash named key.
// The backend takes ownership of client.
func NewRedisBackend(client redis.UniversalClient, key string) *RedisBackend {
	return &RedisBackend{client: client, key: key}
}

// Put implements Backend.Put
func (r *RedisBackend) Put(ctx context.Context, id string, value []byte) error {
	if err := r.client.HSet(ctx, r.key, id, value).Err(); err != nil {
		return fmt.Errorf("failed to store presence %s: %w", id, err)
	}
	return nil
}

// Delete implements Backend.Delete
func (r *RedisBackend) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.client.HDel(ctx, r.key, ids...).Err(); err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}
	return nil
}

// All implements Backend.All
func (r *RedisBackend) All(ctx context.Context) (map[string]string, error) {
	entries, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence: %w", err)
	}
	return entries, nil
}

// Expire implements Backend.Expire
func (r *RedisBackend) Expire(ctx context.Context, observed map[string]string) (int, error) {
	if len(observed) == 0 {
		return 0, nil
	}
	args := make([]interface{}, 0, 2*len(observed))
	for id, value := range observed {
		args = append(args, id, value)
	}
	removed, err := expireScript.Run(ctx, r.client, []string{r.key}, args...).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to expire presence: %w", err)
	}
	return removed, nil
}

// Close implements Backend.Close
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
