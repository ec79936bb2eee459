package cache

import (
	"bytes"
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrInvalidCapacity is returned by New for a capacity below one.
var ErrInvalidCapacity = errors.New("cache capacity must be at least 1")

// Fetcher retrieves origin bytes on a cache miss.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type entry struct {
	key  Key
	url  string // normalized url, checked on lookup to rule out hash collisions
	data []byte
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Capacity    int    `json:"capacity"`
	Entries     int    `json:"entries"`
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Fetches     uint64 `json:"fetches"`
	FetchErrors uint64 `json:"fetch_errors"`
	Evictions   uint64 `json:"evictions"`
}

// Cache is a fixed-capacity LRU cache of origin bytes keyed by source URL.
//
// Concurrent misses for the same URL share one fetch. The lock guarding the
// map and the recency list is never held while fetching, so a slow origin
// only delays callers waiting for that same URL.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[Key]*list.Element
	order    *list.List // front is most recently used

	fetcher Fetcher
	flights singleflight.Group

	hits        atomic.Uint64
	misses      atomic.Uint64
	fetches     atomic.Uint64
	fetchErrors atomic.Uint64
	evictions   atomic.Uint64
}

// New creates a Cache holding at most capacity entries.
func New(capacity int, f Fetcher) (*Cache, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidCapacity, capacity)
	}
	if f == nil {
		return nil, errors.New("cache fetcher cannot be nil")
	}

	return &Cache{
		capacity: capacity,
		entries:  make(map[Key]*list.Element, capacity),
		order:    list.New(),
		fetcher:  f,
	}, nil
}

// GetOrFetch returns the bytes for rawURL, fetching them on a miss.
//
// A hit never performs I/O. On a miss the caller either starts the fetch or
// waits for the one already running. If ctx ends while waiting, GetOrFetch
// returns ctx.Err() but the fetch continues and still populates the cache.
// Fetch errors are delivered to every waiter and are not cached.
//
// The returned slice is a private copy owned by the caller.
func (c *Cache) GetOrFetch(ctx context.Context, rawURL string) ([]byte, error) {
	norm := Normalize(rawURL)
	key := KeyOf(norm)
	log := zerolog.Ctx(ctx)

	if data, ok := c.lookup(key, norm); ok {
		c.hits.Add(1)
		log.Debug().Uint64("key", uint64(key)).Msg("cache hit")
		return bytes.Clone(data), nil
	}
	c.misses.Add(1)
	log.Debug().Uint64("key", uint64(key)).Msg("cache miss")

	// The flight outlives any single waiter, so it must not inherit cancellation.
	fetchCtx := context.WithoutCancel(ctx)

	ch := c.flights.DoChan(norm, func() (any, error) {
		// Another flight for this url may have completed between our miss and now.
		if data, ok := c.lookup(key, norm); ok {
			return data, nil
		}

		c.fetches.Add(1)
		data, err := c.fetcher.Fetch(fetchCtx, norm)
		if err != nil {
			c.fetchErrors.Add(1)
			return nil, err
		}

		c.add(fetchCtx, key, norm, data)
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		data, ok := res.Val.([]byte)
		if !ok {
			panic(fmt.Sprintf("cache: flight for key %d returned %T", key, res.Val))
		}
		return bytes.Clone(data), nil
	}
}

// Get returns a copy of the cached bytes for rawURL and marks them most
// recently used. It never fetches.
func (c *Cache) Get(rawURL string) ([]byte, bool) {
	norm := Normalize(rawURL)
	data, ok := c.lookup(KeyOf(norm), norm)
	if !ok {
		return nil, false
	}
	return bytes.Clone(data), true
}

// Contains reports whether rawURL is cached without touching its recency.
func (c *Cache) Contains(rawURL string) bool {
	norm := Normalize(rawURL)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[KeyOf(norm)]
	return ok && elem.Value.(*entry).url == norm
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Capacity returns the maximum number of entries.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Capacity:    c.capacity,
		Entries:     c.Len(),
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Fetches:     c.fetches.Load(),
		FetchErrors: c.fetchErrors.Load(),
		Evictions:   c.evictions.Load(),
	}
}

func (c *Cache) lookup(key Key, norm string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := elem.Value.(*entry)
	if e.url != norm {
		// Hash collision: treat as a miss, the fetch result will replace it.
		return nil, false
	}

	c.order.MoveToFront(elem)
	return e.data, true
}

func (c *Cache) add(ctx context.Context, key Key, norm string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*entry)
		e.url, e.data = norm, data
		c.order.MoveToFront(elem)
		return
	}

	c.entries[key] = c.order.PushFront(&entry{key: key, url: norm, data: data})

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		evicted := c.order.Remove(oldest).(*entry)
		delete(c.entries, evicted.key)
		c.evictions.Add(1)

		zerolog.Ctx(ctx).Debug().
			Uint64("key", uint64(evicted.key)).
			Str("url", evicted.url).
			Msg("cache entry evicted")
	}
}
