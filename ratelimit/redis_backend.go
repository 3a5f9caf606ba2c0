package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend implements Backend on top of a Redis sorted set per key,
// the same ZSET-sliding-window technique as andreimerfu-pllm's
// RedisLimiter: score = event time, member = a unique per-event id. This
// lets a fleet of stinger instances share rate-limit state.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "stinger:ratelimit:"
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) zkey(key string) string {
	return b.prefix + key
}

func (b *RedisBackend) Record(ctx context.Context, key string, ts time.Time) error {
	member := fmt.Sprintf("%d-%d", ts.UnixNano(), ts.Nanosecond())
	z := redis.Z{Score: float64(ts.UnixNano()), Member: member}
	pipe := b.client.Pipeline()
	pipe.ZAdd(ctx, b.zkey(key), z)
	pipe.Expire(ctx, b.zkey(key), maxTrackedWindow)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("ratelimit: redis record: %w", err)
	}
	return nil
}

func (b *RedisBackend) CountSince(ctx context.Context, key string, since time.Time) (int, error) {
	n, err := b.client.ZCount(ctx, b.zkey(key), strconv.FormatInt(since.UnixNano(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: redis count: %w", err)
	}
	return int(n), nil
}

func (b *RedisBackend) OldestSince(ctx context.Context, key string, since time.Time) (time.Time, bool, error) {
	results, err := b.client.ZRangeByScore(ctx, b.zkey(key), &redis.ZRangeBy{
		Min:   strconv.FormatInt(since.UnixNano(), 10),
		Max:   "+inf",
		Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("ratelimit: redis oldest: %w", err)
	}
	if len(results) == 0 {
		return time.Time{}, false, nil
	}
	score, err := b.client.ZScore(ctx, b.zkey(key), results[0]).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("ratelimit: redis score: %w", err)
	}
	return time.Unix(0, int64(score)), true, nil
}

func (b *RedisBackend) Reset(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.zkey(key)).Err(); err != nil {
		return fmt.Errorf("ratelimit: redis reset: %w", err)
	}
	return nil
}

func (b *RedisBackend) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, b.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(b.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("ratelimit: redis keys: %w", err)
	}
	return keys, nil
}
