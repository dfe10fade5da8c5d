package ratecache

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/storeops/rates-api/internal/domain"
)

const redisKeyPrefix = "rates:fp:"

// RedisCache stores rate lists in Redis with server-side TTL expiry, letting
// multiple API instances share one cache. Every Redis failure downgrades to a
// cache miss and a log line; callers never see an error.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// RedisCacheConfig configures a RedisCache.
type RedisCacheConfig struct {
	Client     *redis.Client
	Logger     *zap.Logger
	DefaultTTL time.Duration
}

// NewRedisCache constructs a Redis-backed cache.
func NewRedisCache(cfg RedisCacheConfig) (*RedisCache, error) {
	if cfg.Client == nil {
		return nil, errors.New("ratecache: redis client is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: cfg.Client, logger: logger, ttl: ttl}, nil
}

type redisRate struct {
	Carrier       string `json:"carrier"`
	ServiceCode   string `json:"service_code"`
	ServiceName   string `json:"service_name"`
	Cost          string `json:"cost"`
	Currency      string `json:"currency"`
	EstimatedDays string `json:"estimated_days"`
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, fingerprint string) ([]domain.ShippingRate, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+fingerprint).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("rate cache read failed, treating as miss", zap.Error(err))
		}
		c.misses.Add(1)
		return nil, false
	}

	var stored []redisRate
	if err := json.Unmarshal(raw, &stored); err != nil {
		c.logger.Warn("rate cache entry corrupt, treating as miss", zap.Error(err))
		c.misses.Add(1)
		return nil, false
	}

	rates := make([]domain.ShippingRate, 0, len(stored))
	for _, r := range stored {
		cost, err := decimal.NewFromString(r.Cost)
		if err != nil {
			c.logger.Warn("rate cache entry has unparsable cost, treating as miss", zap.String("cost", r.Cost))
			c.misses.Add(1)
			return nil, false
		}
		rates = append(rates, domain.ShippingRate{
			Carrier:       domain.Carrier(r.Carrier),
			ServiceCode:   r.ServiceCode,
			ServiceName:   r.ServiceName,
			Cost:          cost,
			Currency:      r.Currency,
			EstimatedDays: r.EstimatedDays,
		})
	}

	c.hits.Add(1)
	return rates, true
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, fingerprint string, rates []domain.ShippingRate, ttl time.Duration) {
	if fingerprint == "" {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	stored := make([]redisRate, 0, len(rates))
	for _, r := range rates {
		stored = append(stored, redisRate{
			Carrier:       r.Carrier.String(),
			ServiceCode:   r.ServiceCode,
			ServiceName:   r.ServiceName,
			Cost:          r.Cost.String(),
			Currency:      r.Currency,
			EstimatedDays: r.EstimatedDays,
		})
	}

	payload, err := json.Marshal(stored)
	if err != nil {
		c.logger.Warn("rate cache serialization failed, skipping write", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+fingerprint, payload, ttl).Err(); err != nil {
		c.logger.Warn("rate cache write failed", zap.Error(err))
	}
}

// HasValid implements Cache.
func (c *RedisCache) HasValid(ctx context.Context, fingerprint string) bool {
	n, err := c.client.Exists(ctx, redisKeyPrefix+fingerprint).Result()
	if err != nil {
		c.logger.Warn("rate cache exists check failed", zap.Error(err))
		return false
	}
	return n > 0
}

// Clear implements Cache.
func (c *RedisCache) Clear(ctx context.Context, fingerprint string) {
	if err := c.client.Del(ctx, redisKeyPrefix+fingerprint).Err(); err != nil {
		c.logger.Warn("rate cache delete failed", zap.Error(err))
	}
}

// ClearAll implements Cache.
func (c *RedisCache) ClearAll(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn("rate cache delete failed", zap.String("key", iter.Val()), zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("rate cache scan failed", zap.Error(err))
	}
}

// Stats implements Cache. Size is counted with a key scan; on scan failure the
// last known counters are returned with a zero size.
func (c *RedisCache) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	size := 0
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		size++
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("rate cache stats scan failed", zap.Error(err))
		size = 0
	}

	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: size}
}
