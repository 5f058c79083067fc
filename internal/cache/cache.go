// Package cache memoizes source fetches per (source, keyword) for a TTL.
//
// Only genuine provider answers are stored. A disabled, failed or canceled
// fetch never creates an entry, so the next call goes to the provider again.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lpdev/bitpredector/internal/logging"
	"github.com/lpdev/bitpredector/internal/metrics"
	"github.com/lpdev/bitpredector/internal/source"
)

const (
	DefaultTTL      = 300 * time.Second
	DefaultCapacity = 100

	layerMemory = "memory"
	layerRedis  = "redis"
)

// Backend is an optional shared second tier behind the in-process cache.
type Backend interface {
	// Get returns the stored items and their remaining lifetime.
	Get(ctx context.Context, sourceName, keyword string) (items []source.Item, ttl time.Duration, ok bool, err error)
	Set(ctx context.Context, sourceName, keyword string, items []source.Item, ttl time.Duration) error
	// Invalidate drops every entry of one source.
	Invalidate(ctx context.Context, sourceName string) error
}

// Options configures a Cache. Zero values select the defaults.
type Options struct {
	TTL      time.Duration
	Capacity int
	Clock    clockwork.Clock
	Backend  Backend
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// Cache is a TTL cache with a capacity bound and least-recently-used
// eviction. Concurrent misses on one key share a single fetch.
type Cache struct {
	mu      sync.Mutex
	entries map[entryKey]*list.Element
	lru     *list.List // front is most recently used
	gen     map[string]uint64

	ttl      time.Duration
	capacity int
	clock    clockwork.Clock
	group    singleflight.Group
	backend  Backend
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

type entryKey struct {
	source  string
	keyword string
}

func (k entryKey) String() string { return k.source + "\x00" + k.keyword }

type entry struct {
	key       entryKey
	items     []source.Item
	expiresAt time.Time
}

type outcome struct {
	result source.Result
	cached bool
}

// New creates a cache.
func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Cache{
		entries:  make(map[entryKey]*list.Element),
		lru:      list.New(),
		gen:      make(map[string]uint64),
		ttl:      opts.TTL,
		capacity: opts.Capacity,
		clock:    opts.Clock,
		backend:  opts.Backend,
		logger:   logging.OrNop(opts.Logger),
		metrics:  opts.Metrics,
	}
}

// Normalize is the keyword form used in cache keys.
func Normalize(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}

// GetOrFetch returns the cached items of src for keyword, fetching on a miss.
// cached reports whether the provider was skipped. A disabled source is
// reported as disabled and never served from the cache.
//
// A caller waiting on another caller's fetch stops waiting when its own ctx
// ends. When the shared fetch was abandoned by the caller that started it,
// the remaining callers retry through one new shared fetch.
func (c *Cache) GetOrFetch(ctx context.Context, src source.Source, keyword string) (res source.Result, cached bool) {
	if !src.Enabled() {
		return source.Result{Status: source.StatusDisabled}, false
	}

	k := entryKey{source: src.Name(), keyword: Normalize(keyword)}
	for {
		if items, ok := c.get(k); ok {
			c.metrics.CacheHit(layerMemory)
			return source.Result{Items: items, Status: source.StatusOK}, true
		}
		c.metrics.CacheMiss(layerMemory)

		var led bool
		ch := c.group.DoChan(k.String(), func() (any, error) {
			led = true
			return c.load(ctx, src, k, keyword), nil
		})

		var out outcome
		select {
		case r := <-ch:
			out = r.Val.(outcome)
		case <-ctx.Done():
			return source.Result{Status: source.StatusCanceled}, false
		}

		if out.result.Status == source.StatusCanceled && !led && ctx.Err() == nil {
			continue
		}
		return source.Result{Items: slices.Clone(out.result.Items), Status: out.result.Status}, out.cached
	}
}

// load runs on the shared fetch's goroutine. A panicking source becomes a
// failed result.
func (c *Cache) load(ctx context.Context, src source.Source, k entryKey, keyword string) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("source panicked",
				zap.String("source", k.source),
				zap.String("keyword", k.keyword),
				zap.String("panic", fmt.Sprint(r)),
			)
			out = outcome{result: source.Result{Status: source.StatusFailed}}
		}
	}()

	if items, ok := c.getRemote(ctx, k); ok {
		return outcome{result: source.Result{Items: items, Status: source.StatusOK}, cached: true}
	}

	gen := c.generation(k.source)
	res := src.Fetch(ctx, strings.TrimSpace(keyword))
	if res.OK() && c.put(k, res.Items, c.ttl, gen) {
		c.putRemote(ctx, k, res.Items)
	}
	return outcome{result: res}
}

func (c *Cache) get(k entryKey) ([]source.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if !c.clock.Now().Before(e.expiresAt) {
		c.removeLocked(el)
		return nil, false
	}
	c.lru.MoveToFront(el)
	return slices.Clone(e.items), true
}

// put stores items unless the source was invalidated since gen was read.
func (c *Cache) put(k entryKey, items []source.Item, ttl time.Duration, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen[k.source] != gen {
		return false
	}

	expiresAt := c.clock.Now().Add(ttl)
	if el, ok := c.entries[k]; ok {
		e := el.Value.(*entry)
		e.items, e.expiresAt = slices.Clone(items), expiresAt
		c.lru.MoveToFront(el)
		return true
	}

	if c.lru.Len() >= c.capacity {
		evicted := c.evictExpiredLocked()
		if c.lru.Len() >= c.capacity {
			c.removeLocked(c.lru.Back())
			evicted++
		}
		c.metrics.CacheEvicted(evicted)
	}

	c.entries[k] = c.lru.PushFront(&entry{key: k, items: slices.Clone(items), expiresAt: expiresAt})
	return true
}

func (c *Cache) generation(sourceName string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen[sourceName]
}

func (c *Cache) getRemote(ctx context.Context, k entryKey) ([]source.Item, bool) {
	if c.backend == nil {
		return nil, false
	}
	items, ttl, ok, err := c.backend.Get(ctx, k.source, k.keyword)
	if err != nil {
		c.logger.Warn("cache backend get failed",
			zap.String("source", k.source), zap.String("keyword", k.keyword), zap.Error(err))
		ok = false
	}
	if !ok {
		c.metrics.CacheMiss(layerRedis)
		return nil, false
	}
	c.metrics.CacheHit(layerRedis)

	if ttl <= 0 || ttl > c.ttl {
		ttl = c.ttl
	}
	c.put(k, items, ttl, c.generation(k.source))
	return items, true
}

func (c *Cache) putRemote(ctx context.Context, k entryKey, items []source.Item) {
	if c.backend == nil {
		return
	}
	if err := c.backend.Set(ctx, k.source, k.keyword, items, c.ttl); err != nil {
		c.logger.Warn("cache backend set failed",
			zap.String("source", k.source), zap.String("keyword", k.keyword), zap.Error(err))
	}
}

// Invalidate drops every entry of one source, locally and in the backend.
// Fetches already in flight for that source will not be stored.
func (c *Cache) Invalidate(ctx context.Context, sourceName string) {
	c.mu.Lock()
	c.gen[sourceName]++
	for el := c.lru.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*entry).key.source == sourceName {
			c.removeLocked(el)
		}
		el = next
	}
	c.mu.Unlock()

	if c.backend != nil {
		if err := c.backend.Invalidate(ctx, sourceName); err != nil {
			c.logger.Warn("cache backend invalidate failed", zap.String("source", sourceName), zap.Error(err))
		}
	}
}

// EvictExpired removes all expired entries and returns how many were removed.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.evictExpiredLocked()
	c.metrics.CacheEvicted(n)
	return n
}

func (c *Cache) evictExpiredLocked() int {
	now := c.clock.Now()
	evicted := 0
	for el := c.lru.Front(); el != nil; {
		next := el.Next()
		if !now.Before(el.Value.(*entry).expiresAt) {
			c.removeLocked(el)
			evicted++
		}
		el = next
	}
	return evicted
}

func (c *Cache) removeLocked(el *list.Element) {
	delete(c.entries, el.Value.(*entry).key)
	c.lru.Remove(el)
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// StartEvictionTimer periodically evicts expired entries.
// Returns a stop function that should be called to clean up the goroutine.
func (c *Cache) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.Chan():
				if evicted := c.EvictExpired(); evicted > 0 {
					c.logger.Debug("evicted expired cache entries",
						zap.Int("count", evicted),
						zap.Int("remaining", c.Len()),
					)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
