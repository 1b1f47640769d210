package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hostelpay/internal/config"

	"github.com/redis/go-redis/v9"
)

const (
	attemptKeyPrefix   = "payment_attempt:"
	rateLimitKeyPrefix = "payment_rate:"
	processedKeyPrefix = "webhook_seen:"
)

// releaseScript deletes the lock only while it is still held by the given reference.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

var errNilClient = errors.New("redis client is nil")

// RedisAttemptStore keeps active-attempt locks, rate-limit counters and
// webhook dedupe markers in Redis so several API replicas share them.
type RedisAttemptStore struct {
	client *redis.Client
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisAttemptStore(client *redis.Client) *RedisAttemptStore {
	return &RedisAttemptStore{client: client}
}

func (r *RedisAttemptStore) AcquireAttempt(ctx context.Context, bookingID, reference string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	ok, err := r.client.SetNX(ctx, attemptKeyPrefix+bookingID, reference, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire attempt lock: %w", err)
	}
	return ok, nil
}

func (r *RedisAttemptStore) ReleaseAttempt(ctx context.Context, bookingID, reference string) error {
	if r.client == nil {
		return errNilClient
	}
	if err := releaseScript.Run(ctx, r.client, []string{attemptKeyPrefix + bookingID}, reference).Err(); err != nil {
		return fmt.Errorf("failed to release attempt lock: %w", err)
	}
	return nil
}

func (r *RedisAttemptStore) ActiveAttempt(ctx context.Context, bookingID string) (string, error) {
	if r.client == nil {
		return "", errNilClient
	}
	ref, err := r.client.Get(ctx, attemptKeyPrefix+bookingID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read attempt lock: %w", err)
	}
	return ref, nil
}

func (r *RedisAttemptStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	redisKey := rateLimitKeyPrefix + key
	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}
	return count <= int64(limit), nil
}

func (r *RedisAttemptStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	first, err := r.client.SetNX(ctx, processedKeyPrefix+key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark webhook processed: %w", err)
	}
	return first, nil
}

func (r *RedisAttemptStore) ClearProcessed(ctx context.Context, key string) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.Del(ctx, processedKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to clear webhook marker: %w", err)
	}
	return nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
