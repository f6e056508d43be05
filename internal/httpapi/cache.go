package httpapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	cacheKeyCatalog  = "catalog:list"
	cacheKeyProduct  = "catalog:product:"
	catalogCacheTTL  = 30 * time.Second
	redisDialTimeout = 5 * time.Second
)

// ProductCache is a cache-aside layer over catalog reads. A nil
// *ProductCache is valid and disables caching, so the handlers never
// have to branch on whether Redis is configured.
type ProductCache struct {
	rdb *redis.Client
}

// NewProductCache connects to Redis at addr. An empty addr returns nil,
// disabling the cache.
func NewProductCache(ctx context.Context, addr string) (*ProductCache, error) {
	if addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	return &ProductCache{rdb: rdb}, nil
}

// Close releases the Redis connection.
func (c *ProductCache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

// GetList returns the cached catalog listing, or nil on miss.
func (c *ProductCache) GetList(ctx context.Context) []byte {
	if c == nil {
		return nil
	}
	return c.get(ctx, cacheKeyCatalog)
}

// SetList stores the catalog listing.
func (c *ProductCache) SetList(ctx context.Context, v any) {
	if c == nil {
		return
	}
	c.set(ctx, cacheKeyCatalog, v)
}

// GetProduct returns a cached single product, or nil on miss.
func (c *ProductCache) GetProduct(ctx context.Context, id uuid.UUID) []byte {
	if c == nil {
		return nil
	}
	return c.get(ctx, cacheKeyProduct+id.String())
}

// SetProduct stores a single product.
func (c *ProductCache) SetProduct(ctx context.Context, id uuid.UUID, v any) {
	if c == nil {
		return
	}
	c.set(ctx, cacheKeyProduct+id.String(), v)
}

// Invalidate drops the listing and, when id is non-nil, the product
// entry. Called after every catalog or stock write.
func (c *ProductCache) Invalidate(ctx context.Context, id *uuid.UUID) {
	if c == nil {
		return
	}
	keys := []string{cacheKeyCatalog}
	if id != nil {
		keys = append(keys, cacheKeyProduct+id.String())
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		zctx.From(ctx).Warn("Cache invalidation failed", zap.Error(err))
	}
}

func (c *ProductCache) get(ctx context.Context, key string) []byte {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			zctx.From(ctx).Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil
	}
	return b
}

func (c *ProductCache) set(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, b, catalogCacheTTL).Err(); err != nil {
		zctx.From(ctx).Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}
