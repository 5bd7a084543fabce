package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tetherhq/tether-engine/pkg/models"
)

// serializedCacheKeyPrefix namespaces cached serialized commitments.
const serializedCacheKeyPrefix = "commitment:serialized:"

// serializedCache is a read-through Redis cache for serialized
// commitments. A nil client disables it; every call is then a miss or a
// no-op. Cache failures are logged and treated as misses, never
// surfaced to the caller.
type serializedCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func newSerializedCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *serializedCache {
	return &serializedCache{client: client, ttl: ttl, logger: logger}
}

func serializedCacheKey(commitmentID uuid.UUID) string {
	return serializedCacheKeyPrefix + commitmentID.String()
}

func (c *serializedCache) Get(ctx context.Context, commitmentID uuid.UUID) *models.SerializedCommitment {
	if c.client == nil {
		return nil
	}

	raw, err := c.client.Get(ctx, serializedCacheKey(commitmentID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Cache read failed",
				zap.String("commitment_id", commitmentID.String()),
				zap.Error(err))
		}
		return nil
	}

	var serialized models.SerializedCommitment
	if err := json.Unmarshal(raw, &serialized); err != nil {
		c.logger.Warn("Discarding corrupt cache entry",
			zap.String("commitment_id", commitmentID.String()),
			zap.Error(err))
		return nil
	}

	return &serialized
}

func (c *serializedCache) Set(ctx context.Context, commitmentID uuid.UUID, serialized *models.SerializedCommitment) {
	if c.client == nil {
		return
	}

	raw, err := json.Marshal(serialized)
	if err != nil {
		c.logger.Warn("Failed to marshal cache entry",
			zap.String("commitment_id", commitmentID.String()),
			zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, serializedCacheKey(commitmentID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Cache write failed",
			zap.String("commitment_id", commitmentID.String()),
			zap.Error(err))
	}
}

func (c *serializedCache) Invalidate(ctx context.Context, commitmentID uuid.UUID) {
	if c.client == nil {
		return
	}

	if err := c.client.Del(ctx, serializedCacheKey(commitmentID)).Err(); err != nil {
		c.logger.Warn("Cache invalidation failed",
			zap.String("commitment_id", commitmentID.String()),
			zap.Error(err))
	}
}
