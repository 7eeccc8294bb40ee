// Package redis wraps the go-redis client with the version-counter and JSON
// cache helpers the territory read paths rely on. A nil *Client is a valid
// "cache disabled" client: every method degrades to a no-op or miss.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the go-redis client with health checking capabilities.
type Client struct {
	*redis.Client
}

// New creates a Redis client from a URL. Returns nil if the URL is empty
// (Redis not configured).
func New(url string) (*Client, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

// Enabled reports whether a backing connection exists.
func (c *Client) Enabled() bool { return c != nil }

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.Client.Close()
}

// GetString reads a plain string key; empty string on miss or disabled.
func (c *Client) GetString(ctx context.Context, key string) (string, error) {
	if c == nil {
		return "", nil
	}
	value, err := c.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

// SetString writes a plain string key with no expiry.
func (c *Client) SetString(ctx context.Context, key, value string) error {
	if c == nil {
		return nil
	}
	if err := c.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// GetVersion reads a monotonic version counter, initializing it to 1 when
// absent so cache keys are stable from the first read.
func (c *Client) GetVersion(ctx context.Context, key string) (int64, error) {
	if c == nil {
		return 1, nil
	}
	value, err := c.Get(ctx, key).Result()
	if err == redis.Nil {
		if err := c.Set(ctx, key, "1", 0).Err(); err != nil {
			return 1, fmt.Errorf("redis init version %s: %w", key, err)
		}
		return 1, nil
	}
	if err != nil {
		return 1, fmt.Errorf("redis get version %s: %w", key, err)
	}
	version, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 1, nil
	}
	return version, nil
}

// BumpVersion increments a version counter, invalidating every cache key
// derived from it.
func (c *Client) BumpVersion(ctx context.Context, key string) (int64, error) {
	if c == nil {
		return 0, nil
	}
	version, err := c.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis bump version %s: %w", key, err)
	}
	return version, nil
}

// GetJSON reads and decodes a cached value; ok is false on miss, disabled
// cache, or decode failure (a corrupt entry is just a miss).
func (c *Client) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil {
		return false, nil
	}
	value, err := c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(value, dest); err != nil {
		return false, nil
	}
	return true, nil
}

// SetJSON encodes and caches a value with the given TTL; ttl <= 0 skips the
// write entirely.
func (c *Client) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil || ttl <= 0 {
		return nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %s: %w", key, err)
	}
	if err := c.Set(ctx, key, encoded, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
