// Package cache wraps github.com/redis/go-redis/v9 behind a small client,
// grounded on the gateway service's redisclient package: parse a connection
// URL, build a client, expose Ping for startup health checks. Two callers
// share one Redis instance (SPEC_FULL.md's DOMAIN STACK): internal/modelrouter
// caches classification results, internal/events/ingest publishes a queue
// depth gauge and reads it back for backpressure decisions.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/engintel/platform/internal/config"
	"github.com/engintel/platform/internal/errs"
)

// Client is a thin wrapper over *redis.Client.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// New parses cfg.URL and returns a ready Client. The connection is lazy —
// New never dials; call Ping to verify reachability.
func New(cfg config.RedisConfig) (*Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidInput, "parse redis url", err)
	}
	return &Client{rdb: redis.NewClient(opt), ttl: cfg.TTL}, nil
}

// Ping verifies the connection is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return errs.Wrap(errs.UpstreamUnavailable, "ping redis", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetString returns a cached string value and whether it was present.
func (c *Client) GetString(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.Wrap(errs.UpstreamUnavailable, "redis get", err)
	}
	return v, true, nil
}

// SetString caches value under key with the configured TTL.
func (c *Client) SetString(ctx context.Context, key, value string) error {
	if err := c.rdb.Set(ctx, key, value, c.ttl).Err(); err != nil {
		return errs.Wrap(errs.UpstreamUnavailable, "redis set", err)
	}
	return nil
}

// IncrBy atomically adjusts an integer counter (used for the ingest queue
// depth gauge) and returns its new value.
func (c *Client) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	v, err := c.rdb.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, errs.Wrap(errs.UpstreamUnavailable, "redis incrby", err)
	}
	return v, nil
}

// GetInt reads an integer counter, returning 0 if unset.
func (c *Client) GetInt(ctx context.Context, key string) (int64, error) {
	v, err := c.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errs.Wrap(errs.UpstreamUnavailable, "redis get int", err)
	}
	return v, nil
}
