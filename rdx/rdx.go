package rdx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps the Redis client used for OTPs, token blacklisting, hot
// product lookups and the pub/sub event bus.
type Cache struct {
	Conn *redis.Client
}

func Connect(ctx context.Context, addr, password string) (*Cache, error) {
	conn := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := conn.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Cache{Conn: conn}, nil
}

func (c *Cache) Close() error {
	return c.Conn.Close()
}

func (c *Cache) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.Conn.Set(ctx, key, value, ttl).Err()
}

func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	return c.Conn.Get(ctx, key).Result()
}

// Exists reports whether key is present; errors read as absent.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	n, err := c.Conn.Exists(ctx, key).Result()
	return err == nil && n > 0
}

func (c *Cache) Del(ctx context.Context, keys ...string) (int64, error) {
	return c.Conn.Del(ctx, keys...).Result()
}

func (c *Cache) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.Conn.SAdd(ctx, key, args...).Err()
}

func (c *Cache) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.Conn.SRem(ctx, key, args...).Err()
}

func (c *Cache) SMembers(ctx context.Context, key string) ([]string, error) {
	return c.Conn.SMembers(ctx, key).Result()
}
