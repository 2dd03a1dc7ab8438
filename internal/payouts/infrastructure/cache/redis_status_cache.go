package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tutorhive/tutorhive/internal/payouts/application/queries"
)

// RedisStatusCache stores account status read models under
// payouts:status:{instructor_id}.
type RedisStatusCache struct {
	client *redis.Client
}

// NewRedisStatusCache creates a new RedisStatusCache.
func NewRedisStatusCache(client *redis.Client) *RedisStatusCache {
	return &RedisStatusCache{client: client}
}

func statusKey(instructorID uuid.UUID) string {
	return fmt.Sprintf("payouts:status:%s", instructorID)
}

// Get returns the cached status, or (nil, nil) on a miss.
func (c *RedisStatusCache) Get(ctx context.Context, instructorID uuid.UUID) (*queries.AccountStatusDTO, error) {
	val, err := c.client.Get(ctx, statusKey(instructorID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read status cache: %w", err)
	}

	var status queries.AccountStatusDTO
	if err := json.Unmarshal(val, &status); err != nil {
		return nil, fmt.Errorf("decode cached status: %w", err)
	}
	return &status, nil
}

// Set stores the status with the given TTL.
func (c *RedisStatusCache) Set(ctx context.Context, instructorID uuid.UUID, status *queries.AccountStatusDTO, ttl time.Duration) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := c.client.Set(ctx, statusKey(instructorID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("write status cache: %w", err)
	}
	return nil
}
