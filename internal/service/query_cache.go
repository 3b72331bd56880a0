package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// QueryCache is a read-through Redis cache for upstream reads. Keys can be
// tagged so every view derived from an exam is dropped in one call.
// A nil *QueryCache (or one without a client) always loads from the source.
type QueryCache struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// NewQueryCache creates a QueryCache.
func NewQueryCache(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *QueryCache {
	return &QueryCache{
		rdb: rdb,
		ttl: ttl,
		log: log.With().Str("component", "query_cache").Logger(),
	}
}

func (c *QueryCache) enabled() bool {
	return c != nil && c.rdb != nil && c.ttl > 0
}

// cached returns the value stored under key or loads, stores and tags it.
// Redis failures degrade to a direct load.
func cached[T any](ctx context.Context, c *QueryCache, key, tag string, load func(context.Context) (T, error)) (T, error) {
	if !c.enabled() {
		return load(ctx)
	}

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var v T
		if jsonErr := json.Unmarshal(raw, &v); jsonErr == nil {
			return v, nil
		}
		c.log.Warn().Str("key", key).Msg("Dropping undecodable cache entry")
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}
	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, key, encoded, c.ttl)
	if tag != "" {
		pipe.SAdd(ctx, tag, key)
		pipe.Expire(ctx, tag, 2*c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
	return v, nil
}

// Invalidate deletes the given keys.
func (c *QueryCache) Invalidate(ctx context.Context, keys ...string) {
	if !c.enabled() || len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn().Err(err).Strs("keys", keys).Msg("Cache invalidation failed")
	}
}

// InvalidateTag deletes every key recorded under tag, and the tag itself.
func (c *QueryCache) InvalidateTag(ctx context.Context, tag string) {
	if !c.enabled() {
		return
	}
	keys, err := c.rdb.SMembers(ctx, tag).Result()
	if err != nil {
		c.log.Warn().Err(err).Str("tag", tag).Msg("Tag lookup failed")
		return
	}
	c.Invalidate(ctx, append(keys, tag)...)
}
