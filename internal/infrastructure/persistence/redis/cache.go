// Package redis implements the Redis-backed counter store. It is used when the
// registry runs without PostgreSQL, e.g. in small deployments where Redis
// persistence (AOF) is enough.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheConnection is returned by NewCache when Redis cannot be reached.
var ErrCacheConnection = errors.New("cache: connection failed")

// Config is the Redis connection. Zero timeouts keep go-redis defaults.
type Config struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// KeyPrefix namespaces every key this package writes.
	KeyPrefix string
}

// Addr returns host:port, bracketing IPv6 hosts.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Cache is a go-redis client plus the key namespace of this registry.
type Cache struct {
	client redis.UniversalClient
	prefix string
}

// NewCache connects and pings, so a wrong address fails at startup.
func NewCache(cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCacheConnection, cfg.Addr(), err)
	}
	return NewCacheFromClient(client, cfg.KeyPrefix), nil
}

// NewCacheFromClient wraps an existing client; tests pass a miniredis one.
func NewCacheFromClient(client redis.UniversalClient, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) Close() error { return c.client.Close() }

// Ping lets the health checker use the cache directly.
func (c *Cache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

// Key namespaces name.
func (c *Cache) Key(name string) string { return c.prefix + name }

// Client returns the underlying client for scripts.
func (c *Cache) Client() redis.UniversalClient { return c.client }

// HSetInt stores an integer hash field.
func (c *Cache) HSetInt(ctx context.Context, key, field string, value int) error {
	return c.client.HSet(ctx, key, field, value).Err()
}

// HGetAll reads a whole hash. A missing key yields an empty map.
func (c *Cache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.client.HGetAll(ctx, key).Result()
}
