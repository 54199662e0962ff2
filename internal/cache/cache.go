// Package cache keeps recently decided application records close to the
// status lookup path. Cache failures never fail a request.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"loan-underwriting/internal/common/logger"
	"loan-underwriting/internal/common/metrics"
	"loan-underwriting/internal/models"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const KeyPrefix = "loan:application:"

// DecisionCache stores application records by id. Get reports a miss as
// (nil, nil).
type DecisionCache interface {
	Get(ctx context.Context, applicationID string) (*models.ApplicationRecord, error)
	Set(ctx context.Context, rec models.ApplicationRecord) error
}

func Key(applicationID string) string {
	return KeyPrefix + applicationID
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, log logger.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "redis_cache"}),
	}
}

func (c *RedisCache) Get(ctx context.Context, applicationID string) (*models.ApplicationRecord, error) {
	val, err := c.client.Get(ctx, Key(applicationID)).Result()
	if err == redis.Nil {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, nil
	}
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, err
	}

	var rec models.ApplicationRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		c.logger.Warn("discarding unreadable cache entry", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err.Error(),
		})
		c.client.Del(ctx, Key(applicationID))
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, nil
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &rec, nil
}

func (c *RedisCache) Set(ctx context.Context, rec models.ApplicationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, Key(rec.ApplicationID), data, c.ttl).Err()
}

// LocalCache is the in-process fallback when Redis is not configured.
type LocalCache struct {
	store *gocache.Cache
}

func NewLocalCache(ttl time.Duration) *LocalCache {
	return &LocalCache{store: gocache.New(ttl, 2*ttl)}
}

func (c *LocalCache) Get(_ context.Context, applicationID string) (*models.ApplicationRecord, error) {
	v, ok := c.store.Get(Key(applicationID))
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, nil
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	rec := v.(models.ApplicationRecord).Clone()
	return &rec, nil
}

func (c *LocalCache) Set(_ context.Context, rec models.ApplicationRecord) error {
	c.store.SetDefault(Key(rec.ApplicationID), rec.Clone())
	return nil
}

// Noop never hits.
type Noop struct{}

func (Noop) Get(context.Context, string) (*models.ApplicationRecord, error) { return nil, nil }
func (Noop) Set(context.Context, models.ApplicationRecord) error         { return nil }
