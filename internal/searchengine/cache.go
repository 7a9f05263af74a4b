package searchengine

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/config"
	pkgredis "github.com/juanj0tj/sistema-recuperacion-informacion/pkg/redis"
)

const cacheKeyPrefix = "search:"

// QueryCache caches Search results keyed by (query, limit), where Searcher
// passes the trimmed query text joined with its default_language override,
// Redis-backed, with singleflight collapsing concurrent identical queries
// into one computation (§4.4 "Query cache and hot-reload" supplement).
// Cache absence degrades to direct execution, never an error.
type QueryCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
}

// NewQueryCache wraps an already-connected Redis client.
func NewQueryCache(client *pkgredis.Client, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached Response for (query, limit), if present.
func (c *QueryCache) Get(ctx context.Context, query string, limit int) (*Response, bool) {
	key := c.buildKey(query, limit)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var resp Response
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &resp, true
}

// Set stores resp under (query, limit) with the configured TTL.
func (c *QueryCache) Set(ctx context.Context, query string, limit int, resp *Response) {
	key := c.buildKey(query, limit)
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result, or runs computeFn and caches its
// result, collapsing concurrent identical lookups via singleflight. The
// returned bool reports whether the result came from the cache.
func (c *QueryCache) GetOrCompute(ctx context.Context, query string, limit int, computeFn func() (*Response, error)) (*Response, bool, error) {
	if resp, ok := c.Get(ctx, query, limit); ok {
		return resp, true, nil
	}
	key := c.buildKey(query, limit)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if resp, ok := c.Get(ctx, query, limit); ok {
			return resp, nil
		}
		resp, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, limit, resp)
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*Response), false, nil
}

// Invalidate drops every cached query result. Called after a successful
// Reload so stale-generation results never outlive their index.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, cacheKeyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating query cache: %w", err)
	}
	c.logger.Info("query cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) buildKey(query string, limit int) string {
	raw := fmt.Sprintf("%s|limit=%d", query, limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", cacheKeyPrefix, hash[:16])
}
