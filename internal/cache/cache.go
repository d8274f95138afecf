// Package cache is a bounded, cost-aware cache owned by whoever constructs
// it. Eviction is ristretto's TinyLFU admission with sampled LFU eviction.
package cache

import (
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// DefaultMaxCost is 64 MiB of cached values.
const DefaultMaxCost = 64 << 20

// Cache maps string keys to values of type V.
type Cache[V any] struct {
	rc *ristretto.Cache
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits   uint64
	Misses uint64
	Ratio  float64
}

// New creates a cache bounded by maxCost; the cost unit is chosen by the
// caller on Set (bytes for snapshot contents). maxCost <= 0 uses
// DefaultMaxCost.
func New[V any](maxCost int64) (*Cache[V], error) {
	if maxCost <= 0 {
		maxCost = DefaultMaxCost
	}
	counters := maxCost / 100
	if counters < 1000 {
		counters = 1000
	}
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        counters,
		MaxCost:            maxCost,
		BufferItems:        64,
		Metrics:            true,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	return &Cache[V]{rc: rc}, nil
}

func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	v, ok := c.rc.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(V)
	return typed, ok
}

// Set stores v with the given cost and waits until the write is visible.
// The admission policy may still reject it; Set reports whether it was
// accepted into the write buffer.
func (c *Cache[V]) Set(key string, v V, cost int64) bool {
	if c == nil {
		return false
	}
	ok := c.rc.Set(key, v, cost)
	c.rc.Wait()
	return ok
}

func (c *Cache[V]) Del(key string) {
	if c == nil {
		return
	}
	c.rc.Del(key)
}

func (c *Cache[V]) Stats() Stats {
	if c == nil || c.rc.Metrics == nil {
		return Stats{}
	}
	return Stats{
		Hits:   c.rc.Metrics.Hits(),
		Misses: c.rc.Metrics.Misses(),
		Ratio:  c.rc.Metrics.Ratio(),
	}
}

func (c *Cache[V]) Close() {
	if c == nil {
		return
	}
	c.rc.Close()
}
