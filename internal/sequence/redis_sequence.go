package sequence

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// RedisSequencer backs the counter with a redis INCR per period key. Keys are
// never expired: a period's counter must survive the whole period, and stale
// periods cost a few bytes each.
type RedisSequencer struct {
	client *redis.Client
}

func NewRedisSequencer(addr string, password string, db int) *RedisSequencer {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSequencer{client: client}
}

func (s *RedisSequencer) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSequencer) Close() error {
	return s.client.Close()
}

func (s *RedisSequencer) Next(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, fmt.Sprintf("seq:%s", key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return n, nil
}
