package stats

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/kyc-verifier/internal/errs"
	"github.com/and161185/kyc-verifier/internal/model"
)

const redisKeyPrefix = "kyc:stats:"

// RedisCache keeps stats as JSON strings with a TTL slightly above the staleness window.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache constructs a Redis-backed cache.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func redisKey(ownerID uuid.UUID) string { return redisKeyPrefix + ownerID.String() }

// Load reads the owner's stats.
func (c *RedisCache) Load(ctx context.Context, ownerID uuid.UUID) (*model.UserStats, error) {
	val, err := c.client.Get(ctx, redisKey(ownerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	var s model.UserStats
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Store overwrites the owner's stats.
func (c *RedisCache) Store(ctx context.Context, s *model.UserStats) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, redisKey(s.OwnerID), raw, c.ttl).Err()
}
