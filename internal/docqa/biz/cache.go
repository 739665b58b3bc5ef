package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docqa/internal/model"
)

// QueryCacheConfig configures the answer cache.
type QueryCacheConfig struct {
	// Enabled turns the cache on. When false every call is a no-op.
	Enabled bool
	// TTL is how long a cached answer stays valid.
	TTL time.Duration
	// KeyPrefix namespaces cache keys in Redis.
	KeyPrefix string
}

// QueryCache caches query results in Redis keyed by a hash of the question
// and top_k. A disabled cache (or nil client) degrades to misses.
type QueryCache struct {
	redis  *goredis.Client
	config *QueryCacheConfig
}

// NewQueryCache creates a query cache.
func NewQueryCache(redis *goredis.Client, config *QueryCacheConfig) *QueryCache {
	if config == nil {
		config = &QueryCacheConfig{
			Enabled:   false,
			TTL:       1 * time.Hour,
			KeyPrefix: "docqa:query:",
		}
	}
	return &QueryCache{
		redis:  redis,
		config: config,
	}
}

// Enabled reports whether the cache is active.
func (c *QueryCache) Enabled() bool {
	return c.config.Enabled && c.redis != nil
}

// cacheKey hashes the question together with top_k so the same question at
// different depths gets distinct entries.
func (c *QueryCache) cacheKey(question string, topK int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", topK, question)))
	return c.config.KeyPrefix + hex.EncodeToString(hash[:])
}

// Get returns the cached result for a question, or nil on a miss. Errors
// from Redis are reported but a corrupt entry is dropped and treated as a
// miss.
func (c *QueryCache) Get(ctx context.Context, question string, topK int) (*model.QueryResult, error) {
	if !c.Enabled() {
		return nil, nil
	}

	key := c.cacheKey(question, topK)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			logger.Debugw("Query cache miss", "key", key)
			return nil, nil
		}
		logger.Warnw("Failed to read query cache", "error", err.Error(), "key", key)
		return nil, err
	}

	var result model.QueryResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warnw("Dropping corrupt cache entry", "error", err.Error(), "key", key)
		_ = c.redis.Del(ctx, key).Err()
		return nil, nil
	}

	logger.Infow("Query cache hit", "key", key, "answer_length", len(result.Answer))
	return &result, nil
}

// Set stores a query result.
func (c *QueryCache) Set(ctx context.Context, question string, topK int, result *model.QueryResult) error {
	if !c.Enabled() {
		return nil
	}

	key := c.cacheKey(question, topK)
	data, err := json.Marshal(result)
	if err != nil {
		logger.Warnw("Failed to marshal result for caching", "error", err.Error())
		return err
	}

	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("Failed to write query cache", "error", err.Error(), "key", key)
		return err
	}
	return nil
}

// Clear removes every cached answer under the configured prefix.
func (c *QueryCache) Clear(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}

	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"*", 0).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("Failed to delete cache key", "error", err.Error(), "key", iter.Val())
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return err
	}

	logger.Infow("Cleared query cache", "deleted_count", deleted)
	return nil
}

// GetStats reports cache state for the stats endpoint.
func (c *QueryCache) GetStats(ctx context.Context) (map[string]any, error) {
	if !c.Enabled() {
		return map[string]any{"enabled": false}, nil
	}

	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"*", 0).Iterator()
	keyCount := 0
	for iter.Next(ctx) {
		keyCount++
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return map[string]any{
		"enabled":    true,
		"key_count":  keyCount,
		"ttl":        c.config.TTL.String(),
		"key_prefix": c.config.KeyPrefix,
	}, nil
}
