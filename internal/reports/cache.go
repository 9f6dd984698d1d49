package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "reports:version"
	// BumpChannel carries the new cache version after every Bump.
	BumpChannel = "reports.bump"
)

// Cache stores finished report runs in Redis under versioned keys. Bumping
// the version orphans every existing entry.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Enabled reports whether a Redis client is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(append([]string{"reports"}, parts...), ":")
	if !c.Enabled() {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// Load decodes the entry at key into dest and reports whether it existed.
func (c *Cache) Load(ctx context.Context, key string, dest any) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("reports: decode cached %s: %w", key, err)
	}
	return true, nil
}

// Store writes value at key with the configured TTL.
func (c *Cache) Store(ctx context.Context, key string, value any) error {
	if !c.Enabled() {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Bump invalidates the cache by incrementing the version and publishing it
// on BumpChannel.
func (c *Cache) Bump(ctx context.Context) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	if _, err := c.Version(ctx); err != nil {
		return 0, err
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return 0, err
	}
	if err := c.client.Publish(ctx, BumpChannel, strconv.FormatInt(ver, 10)).Err(); err != nil {
		return ver, err
	}
	return ver, nil
}
