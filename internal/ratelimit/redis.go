package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Key namespace, kept flat so operators can inspect state with redis-cli.
const (
	redisNamespace = "shield"
	redisBucketKey = redisNamespace + ":rl:"
	redisBlockKey  = redisNamespace + ":block:"
)

// RedisStore implements Store on sorted sets: members are request stamps
// scored by unix nanoseconds, so pruning is a range removal and counting is
// ZCARD. Blocks are plain keys whose TTL is the penalty duration, which
// makes cleanup free.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// CountAndAdd runs prune, record, and count inside one MULTI/EXEC, so two
// instances racing on the same bucket both see their own request in the
// returned count.
func (s *RedisStore) CountAndAdd(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
	bucketKey := redisBucketKey + key
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, bucketKey, "0", cutoff)
	pipe.ZAdd(ctx, bucketKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	card := pipe.ZCard(ctx, bucketKey)
	pipe.Expire(ctx, bucketKey, window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("count bucket %s: %w", key, err)
	}

	return int(card.Val()), nil
}

func (s *RedisStore) Block(ctx context.Context, key string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}

	err := s.client.Set(ctx, redisBlockKey+key, until.UnixMilli(), ttl).Err()
	if err != nil {
		return fmt.Errorf("block %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Unblock(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisBlockKey+key).Err(); err != nil {
		return fmt.Errorf("unblock %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) BlockedUntil(ctx context.Context, key string) (time.Time, error) {
	raw, err := s.client.Get(ctx, redisBlockKey+key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read block %s: %w", key, err)
	}

	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse block %s: %w", key, err)
	}
	return time.UnixMilli(millis), nil
}

// Cleanup is a no-op: bucket and block keys expire through Redis TTLs.
func (s *RedisStore) Cleanup(ctx context.Context, maxIdle time.Duration) (int, error) {
	return 0, nil
}
