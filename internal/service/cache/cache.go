package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/databot/youtube-tracker/internal/metrics"
	"github.com/databot/youtube-tracker/pkg/logger"
)

// Cache is a read-through JSON cache backed by Redis. Concurrent misses for
// the same key are collapsed into a single fetch. A nil Redis client degrades
// to direct singleflight fetching with no storage.
type Cache struct {
	client   *redis.Client
	staleTTL time.Duration
	group    singleflight.Group
	log      *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithStaleOnError keeps expired values around for hard and serves them when
// a refresh fetch fails.
func WithStaleOnError(hard time.Duration) Option {
	return func(c *Cache) {
		c.staleTTL = hard
	}
}

// New creates a Cache. client may be nil to disable storage.
func New(client *redis.Client, opts ...Option) *Cache {
	c := &Cache{
		client: client,
		log:    logger.Named("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope wraps a stored value with its freshness horizon. The Redis key
// itself may outlive FreshUntil when stale serving is enabled.
type envelope struct {
	Value      json.RawMessage `json:"value"`
	FreshUntil time.Time       `json:"fresh_until"`
}

// GetOrFetch returns the cached value for key, fetching and storing it on a
// miss. At most one fetch per key runs at a time across callers.
func GetOrFetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	raw, err, _ := c.group.Do(key, func() (any, error) {
		return c.lookup(ctx, key, ttl, func(ctx context.Context) (any, error) {
			return fetch(ctx)
		})
	})
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(raw.([]byte), &out); err != nil {
		return zero, fmt.Errorf("decode cached value for %q: %w", key, err)
	}
	return out, nil
}

// lookup runs inside the singleflight group and always returns the value as
// JSON so every collapsed caller decodes into its own copy.
func (c *Cache) lookup(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (any, error)) ([]byte, error) {
	var stale json.RawMessage

	if c.client != nil {
		buf, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			var env envelope
			if jerr := json.Unmarshal(buf, &env); jerr == nil {
				if time.Now().Before(env.FreshUntil) {
					metrics.CacheHits.Inc()
					return env.Value, nil
				}
				stale = env.Value
			}
		} else if err != redis.Nil {
			c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	metrics.CacheMisses.Inc()

	val, err := fetch(ctx)
	if err != nil {
		if c.staleTTL > 0 && stale != nil {
			metrics.CacheStaleServed.Inc()
			c.log.Warn("serving stale cache entry after fetch failure",
				zap.String("key", key), zap.Error(err))
			return stale, nil
		}
		return nil, err
	}

	data, err := json.Marshal(val)
	if err != nil {
		return nil, fmt.Errorf("encode value for %q: %w", key, err)
	}

	if c.client != nil {
		expiry := ttl
		if c.staleTTL > expiry {
			expiry = c.staleTTL
		}
		env, _ := json.Marshal(envelope{Value: data, FreshUntil: time.Now().Add(ttl)})
		if err := c.client.Set(ctx, key, env, expiry).Err(); err != nil {
			c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	return data, nil
}

// Invalidate drops the cached value for key.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("invalidate %q: %w", key, err)
	}
	return nil
}
