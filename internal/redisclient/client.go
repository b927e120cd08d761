package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient connects to Redis and verifies the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func idempotencyKey(scope, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", scope, key)
}

// SetIdempotencyKey stores value under key with SETNX; false means the key
// was taken. The scope (the user id) keeps two users' keys apart.
func (c *Client) SetIdempotencyKey(ctx context.Context, scope, key, value string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, idempotencyKey(scope, key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set idempotency key: %w", err)
	}
	return ok, nil
}

func (c *Client) GetIdempotencyKey(ctx context.Context, scope, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, idempotencyKey(scope, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get idempotency key: %w", err)
	}
	return val, true, nil
}
