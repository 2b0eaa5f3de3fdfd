package calls

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPendingCache stores each recipient's pending list as one JSON value with a short TTL.
type RedisPendingCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisPendingCache(rdb *redis.Client, ttl time.Duration) *RedisPendingCache {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &RedisPendingCache{rdb: rdb, ttl: ttl}
}

func pendingKey(recipientID string) string {
	return "calls:pending:" + recipientID
}

func (c *RedisPendingCache) Get(ctx context.Context, recipientID string) ([]Call, bool, error) {
	raw, err := c.rdb.Get(ctx, pendingKey(recipientID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var out []Call
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (c *RedisPendingCache) Set(ctx context.Context, recipientID string, calls []Call) error {
	raw, err := json.Marshal(calls)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, pendingKey(recipientID), raw, c.ttl).Err()
}

func (c *RedisPendingCache) Invalidate(ctx context.Context, recipientID string) error {
	return c.rdb.Del(ctx, pendingKey(recipientID)).Err()
}
