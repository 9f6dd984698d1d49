// Package cache opens the Redis client shared by the report cache and the
// job queue.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the Redis connection.
type Options struct {
	Addr        string
	DB          int
	PingTimeout time.Duration
}

// New creates a Redis client and verifies it answers a ping.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		DB:           opts.DB,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := Ping(ctx, client, opts.PingTimeout); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Ping checks the connection within timeout, five seconds when zero.
func Ping(ctx context.Context, client *redis.Client, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("platform/cache: ping: %w", err)
	}
	return nil
}
