// Package rediscache is the shared second cache tier for fiscal constants
// and the pub/sub channel replicas use to drop stale entries together.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix         = "impots:constants:"
	invalidateChannel = "impots:constants:invalidate"
	defaultTTL        = 5 * time.Minute
	scanBatch         = 100
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewClient opens a go-redis client.
func NewClient(o Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// Key is the Redis key of a constants entry.
func Key(cacheKey string) string {
	return keyPrefix + cacheKey
}

// ConstantsCache stores domain.Constants as JSON under Key(cacheKey).
type ConstantsCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewConstantsCache wraps client.
func NewConstantsCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ConstantsCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &ConstantsCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached constants. A miss is (nil, false, nil).
func (c *ConstantsCache) Get(ctx context.Context, cacheKey string) (domain.Constants, bool, error) {
	data, err := c.client.Get(ctx, Key(cacheKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		c.logger.Warn("redis: get failed", zap.String("key", cacheKey), zap.Error(err))
		return nil, false, err
	}

	var consts domain.Constants
	if err := json.Unmarshal(data, &consts); err != nil {
		c.logger.Warn("redis: corrupt entry dropped", zap.String("key", cacheKey), zap.Error(err))
		_ = c.client.Del(ctx, Key(cacheKey)).Err()
		return nil, false, nil
	}
	return consts, true, nil
}

func (c *ConstantsCache) Set(ctx context.Context, cacheKey string, consts domain.Constants) error {
	data, err := json.Marshal(consts)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, Key(cacheKey), data, c.ttl).Err(); err != nil {
		c.logger.Warn("redis: set failed", zap.String("key", cacheKey), zap.Error(err))
		return err
	}
	return nil
}

func (c *ConstantsCache) Delete(ctx context.Context, cacheKey string) error {
	return c.client.Del(ctx, Key(cacheKey)).Err()
}

// DeleteAll removes every constants entry and returns how many were
// dropped.
func (c *ConstantsCache) DeleteAll(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyPrefix+"*", scanBatch).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, err
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// Ping checks connectivity for readiness probes.
func (c *ConstantsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
