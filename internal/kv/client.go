// Package kv wraps the Redis-compatible key-value backend shared by the
// draft and preview stores.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotConfigured is reported when no backend credentials were
	// resolved at startup. Callers translate it into a "service not
	// configured" response rather than crashing.
	ErrNotConfigured = errors.New("key-value backend not configured")

	// ErrNil is reported when a key does not exist, distinct from a
	// backend failure.
	ErrNil = errors.New("key not found")
)

// Client is the slice of the backend the stores rely on: plain reads,
// expiring writes and the atomic counter increment. Tests substitute an
// in-memory implementation.
type Client interface {
	Get(ctx context.Context, key string) (string, error)
	MGet(ctx context.Context, keys ...string) ([]*string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

type redisClient struct {
	client *redis.Client
}

// New builds a Client from the resolved endpoint URL and access token. The
// connection is stateless HTTP-style from the caller's perspective: go-redis
// dials lazily per command, so no teardown beyond Close is required.
func New(rawURL, token string) (Client, error) {
	if rawURL == "" {
		return nil, ErrNotConfigured
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse kv url: %w", err)
	}
	if token != "" {
		opts.Password = token
	}
	return &redisClient{client: redis.NewClient(opts)}, nil
}

// NewWithClient builds a Client from an existing Redis client.
func NewWithClient(client *redis.Client) Client {
	return &redisClient{client: client}
}

func (c *redisClient) Get(ctx context.Context, key string) (string, error) {
	value, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNil
	}
	if err != nil {
		return "", fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, nil
}

func (c *redisClient) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	raw, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("kv mget: %w", err)
	}
	values := make([]*string, len(raw))
	for i, v := range raw {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("kv mget %s: unexpected value type %T", keys[i], v)
		}
		values[i] = &s
	}
	return values, nil
}

func (c *redisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

func (c *redisClient) Incr(ctx context.Context, key string) (int64, error) {
	value, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("kv incr %s: %w", key, err)
	}
	return value, nil
}

func (c *redisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *redisClient) Close() error {
	return c.client.Close()
}
