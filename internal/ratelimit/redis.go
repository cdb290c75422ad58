package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindowStore implements WindowStore on a Redis sorted set per
// identifier. Entry scores are unix milliseconds; members are unique
// tokens so simultaneous attempts in the same millisecond all count.
type RedisWindowStore struct {
	client *redis.Client
}

// NewRedisWindowStore creates a WindowStore over the given client and
// verifies connectivity with a short ping.
func NewRedisWindowStore(client *redis.Client) (*RedisWindowStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisWindowStore{client: client}, nil
}

var _ WindowStore = (*RedisWindowStore)(nil)

// Record implements WindowStore.Record using a MULTI/EXEC pipeline so the
// prune, count, insert and expire commands execute as one atomic unit on
// the server. Each command is idempotent-safe under retry: re-pruning and
// re-expiring are no-ops, and the unique member makes the insert
// deduplicating.
func (s *RedisWindowStore) Record(ctx context.Context, key string, windowStart, now time.Time, member string, ttl time.Duration) (int64, error) {
	var card *redis.IntCmd

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+formatScore(windowStart))
	card = pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: scoreOf(now), Member: member})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("rate limit pipeline failed: %w", err)
	}

	return card.Val(), nil
}

// Count implements WindowStore.Count.
func (s *RedisWindowStore) Count(ctx context.Context, key string, windowStart time.Time) (int64, error) {
	var card *redis.IntCmd

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+formatScore(windowStart))
	card = pipe.ZCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("rate limit count failed: %w", err)
	}

	return card.Val(), nil
}

// Delete implements WindowStore.Delete.
func (s *RedisWindowStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Cleanup implements WindowStore.Cleanup with a cursor SCAN over the
// prefix, pruning each key and deleting those left empty.
func (s *RedisWindowStore) Cleanup(ctx context.Context, prefix string, windowStart time.Time) (int, error) {
	var deleted int
	var cursor uint64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("rate limit cleanup scan failed: %w", err)
		}

		for _, key := range keys {
			if err := s.client.ZRemRangeByScore(ctx, key, "-inf", "("+formatScore(windowStart)).Err(); err != nil {
				return deleted, err
			}
			n, err := s.client.ZCard(ctx, key).Result()
			if err != nil {
				return deleted, err
			}
			if n == 0 {
				if err := s.client.Del(ctx, key).Err(); err != nil {
					return deleted, err
				}
				deleted++
			}
		}

		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// scoreOf converts a timestamp to its sorted-set score in unix milliseconds.
func scoreOf(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// formatScore renders a timestamp score for range arguments.
func formatScore(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
