package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// ErrNil is returned by Get and HGet for a missing key or field.
var ErrNil = redis.Nil

// Client is the small slice of redis the bot needs.
type Client struct {
	client *redis.Client
}

// New creates a new Redis client
func New(addr, password string, db int) *Client {
	return &Client{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     password,
			DB:           db,
			PoolSize:     100,
			MinIdleConns: 10,
		}),
	}
}

// Connect creates a client and waits until the server answers PING.
func Connect(ctx context.Context, addr, password string, db int, maxWait time.Duration) (*Client, error) {
	c := New(addr, password, db)

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxWait

	err := backoff.Retry(func() error {
		return c.Ping(ctx)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", addr, err)
	}
	return c, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get retrieves a key's value
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	return c.client.Get(ctx, key).Bytes()
}

// Set sets a key's value with TTL. Zero ttl keeps the key forever.
func (c *Client) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Del deletes a key
func (c *Client) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *Client) HGet(ctx context.Context, key, field string) (string, error) {
	return c.client.HGet(ctx, key, field).Result()
}

func (c *Client) HSet(ctx context.Context, key, field, value string) error {
	return c.client.HSet(ctx, key, field, value).Err()
}

// IsNil reports whether err means "no such key".
func IsNil(err error) bool {
	return errors.Is(err, ErrNil)
}

// Close closes the Redis connection
func (c *Client) Close() {
	if c.client != nil {
		_ = c.client.Close()
	}
}
