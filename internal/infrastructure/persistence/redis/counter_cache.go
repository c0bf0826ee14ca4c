package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/hostel-hub/hostel-registry/internal/domain/identifier"
)

// CountersKey is the hash holding one field per block.
const CountersKey = "counters"

// advanceScript sets a hash field to ARGV[2] only when that is larger than the
// stored value, atomically on the server.
var advanceScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local value = tonumber(ARGV[2])
if value > current then
  redis.call('HSET', KEYS[1], ARGV[1], value)
  return value
end
return current
`)

// CounterCache is an identifier.CounterStore kept in a Redis hash.
type CounterCache struct {
	cache *Cache
}

var _ identifier.CounterStore = (*CounterCache)(nil)

// NewCounterCache creates a counter store over cache.
func NewCounterCache(cache *Cache) *CounterCache {
	return &CounterCache{cache: cache}
}

func (c *CounterCache) key() string {
	return c.cache.Key(CountersKey)
}

// Load returns every stored block counter. Unknown fields and values that are
// not non-negative integers are skipped.
func (c *CounterCache) Load(ctx context.Context) (identifier.Snapshot, error) {
	fields, err := c.cache.HGetAll(ctx, c.key())
	if err != nil {
		return nil, fmt.Errorf("redis: load counters: %w", err)
	}

	snap := make(identifier.Snapshot, len(fields))
	for field, raw := range fields {
		b, err := identifier.ParseBlock(field)
		if err != nil {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			continue
		}
		snap[b] = v
	}
	return snap, nil
}

// Save overwrites a block counter.
func (c *CounterCache) Save(ctx context.Context, block identifier.Block, value int) error {
	if err := c.cache.HSetInt(ctx, c.key(), block.String(), value); err != nil {
		return fmt.Errorf("redis: save counter %s: %w", block, err)
	}
	return nil
}

// Advance raises a block counter to value, never lowering it.
func (c *CounterCache) Advance(ctx context.Context, block identifier.Block, value int) error {
	err := advanceScript.Run(ctx, c.cache.Client(), []string{c.key()}, block.String(), value).Err()
	if err != nil {
		return fmt.Errorf("redis: advance counter %s: %w", block, err)
	}
	return nil
}
