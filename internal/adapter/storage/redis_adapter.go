package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

const stockKeyPrefix = "stock:"

// RedisAdapter is the advisory fast path: idempotency claims and on-hand
// snapshots. MySQL stays authoritative for all of it.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) ClaimKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

func (r *RedisAdapter) ReleaseKey(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisAdapter) SetQuantity(ctx context.Context, tenantID, productID string, quantity int) error {
	return r.client.Set(ctx, stockKey(tenantID, productID), quantity, 0).Err()
}

func (r *RedisAdapter) GetQuantity(ctx context.Context, tenantID, productID string) (int, bool, error) {
	qty, err := r.client.Get(ctx, stockKey(tenantID, productID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read cached quantity: %w", err)
	}
	return qty, true, nil
}

func stockKey(tenantID, productID string) string {
	return stockKeyPrefix + tenantID + ":" + productID
}

// RedisLocker hands out short-lived per-job locks so concurrent workers
// don't attempt the same job twice at the same time.
type RedisLocker struct {
	locker *redislock.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{locker: redislock.New(client)}
}

func (r *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	lock, err := r.locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	release := func() {
		_ = lock.Release(context.Background())
	}
	return release, true, nil
}
