// Package cache memoizes match results per (query, topK) key.
//
// Entries are tagged with a generation number. Purge bumps the generation,
// so a computation that began against an old snapshot can never publish
// into the new one: its entry is written with the old tag and read as a miss.
package cache

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultSize is the number of distinct lookups kept.
const DefaultSize = 2048

// ComputeFunc produces a value for a missing key. cacheable=false returns
// the value to the caller without storing it.
type ComputeFunc[V any] func(ctx context.Context) (value V, cacheable bool, err error)

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Size       int    `json:"size"`
	Capacity   int    `json:"capacity"`
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Generation uint64 `json:"generation"`
}

type entry[V any] struct {
	gen uint64
	val V
}

type flightResult[V any] struct {
	val       V
	cacheable bool
}

// LookupCache is a bounded LRU with miss coalescing. Values are returned as
// stored; callers must not mutate them.
type LookupCache[V any] struct {
	lru      *lru.Cache[string, entry[V]]
	capacity int
	group    singleflight.Group

	gen    atomic.Uint64
	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a LookupCache holding at most size entries.
func New[V any](size int) *LookupCache[V] {
	if size <= 0 {
		size = DefaultSize
	}
	l, _ := lru.New[string, entry[V]](size)
	return &LookupCache[V]{lru: l, capacity: size}
}

// Get returns the current-generation value for key.
func (c *LookupCache[V]) Get(key string) (V, bool) {
	e, ok := c.lru.Get(key)
	if !ok || e.gen != c.gen.Load() {
		var zero V
		return zero, false
	}
	return e.val, true
}

// GetOrCompute returns the cached value for key or runs compute. Concurrent
// callers with the same key share one computation. Errors, cancelled
// computations, and values marked not cacheable are never stored.
func (c *LookupCache[V]) GetOrCompute(ctx context.Context, key string, compute ComputeFunc[V]) (V, error) {
	var zero V
	if v, ok := c.Get(key); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	for {
		gen := c.gen.Load()
		ch := c.group.DoChan(strconv.FormatUint(gen, 10)+"|"+key, func() (any, error) {
			v, cacheable, err := compute(ctx)
			if err != nil {
				return nil, err
			}
			if cacheable && ctx.Err() == nil && c.gen.Load() == gen {
				c.lru.Add(key, entry[V]{gen: gen, val: v})
			}
			return flightResult[V]{val: v, cacheable: cacheable}, nil
		})

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				// The shared computation ran under another caller's context.
				// If that caller gave up but this one has not, try again.
				if isContextErr(res.Err) && ctx.Err() == nil && res.Shared {
					continue
				}
				return zero, res.Err
			}
			return res.Val.(flightResult[V]).val, nil
		}
	}
}

// Purge drops every entry and starts a new generation.
func (c *LookupCache[V]) Purge() {
	c.gen.Add(1)
	c.lru.Purge()
}

// Len returns the number of stored entries, including any stale ones not
// yet evicted.
func (c *LookupCache[V]) Len() int {
	return c.lru.Len()
}

// Generation returns the current generation.
func (c *LookupCache[V]) Generation() uint64 {
	return c.gen.Load()
}

// Stats returns cache counters.
func (c *LookupCache[V]) Stats() Stats {
	return Stats{
		Size:       c.lru.Len(),
		Capacity:   c.capacity,
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Generation: c.gen.Load(),
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// TitleKey namespaces a title lookup.
func TitleKey(normalized string, topK int) string {
	return "t:" + strconv.Itoa(topK) + ":" + normalized
}

// QueryKey namespaces a duties lookup.
func QueryKey(normalized string, topK int) string {
	return "q:" + strconv.Itoa(topK) + ":" + normalized
}
