package ratecache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/storeops/rates-api/internal/domain"
)

type memoryEntry struct {
	rates      []domain.ShippingRate
	insertedAt time.Time
	expiresAt  time.Time
}

// MemoryCache is a mutex-guarded, size-bounded in-process cache. When the
// entry bound is exceeded the oldest ~20% of entries by insertion time are
// evicted (age-based, not LRU-by-access). A background sweeper purges expired
// entries on a fixed interval so memory stays bounded even without reads.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	maxEntries int
	defaultTTL time.Duration
	clock      func() time.Time

	hits   int64
	misses int64

	stopOnce sync.Once
	stop     chan struct{}
}

// MemoryCacheConfig configures a MemoryCache. Zero values fall back to the
// package defaults.
type MemoryCacheConfig struct {
	MaxEntries    int
	DefaultTTL    time.Duration
	SweepInterval time.Duration
	Clock         func() time.Time
}

// NewMemoryCache constructs a memory cache and starts its sweeper. Call Close
// to stop the sweeper goroutine.
func NewMemoryCache(cfg MemoryCacheConfig) *MemoryCache {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = DefaultSweepInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	c := &MemoryCache{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
		defaultTTL: ttl,
		clock:      clock,
		stop:       make(chan struct{}),
	}

	go c.sweepLoop(sweep)
	return c
}

// Get implements Cache. Expired entries are deleted lazily on lookup.
func (c *MemoryCache) Get(_ context.Context, fingerprint string) ([]domain.ShippingRate, bool) {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fingerprint]
	if !ok {
		c.misses++
		return nil, false
	}
	if !now.Before(entry.expiresAt) {
		delete(c.entries, fingerprint)
		c.misses++
		return nil, false
	}

	c.hits++
	out := make([]domain.ShippingRate, len(entry.rates))
	copy(out, entry.rates)
	return out, true
}

// Set implements Cache. A non-positive TTL falls back to the default.
func (c *MemoryCache) Set(_ context.Context, fingerprint string, rates []domain.ShippingRate, ttl time.Duration) {
	if fingerprint == "" {
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.clock()

	stored := make([]domain.ShippingRate, len(rates))
	copy(stored, rates)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fingerprint] = memoryEntry{
		rates:      stored,
		insertedAt: now,
		expiresAt:  now.Add(ttl),
	}

	if len(c.entries) > c.maxEntries {
		c.evictOldestLocked()
	}
}

// HasValid implements Cache without affecting hit/miss counters.
func (c *MemoryCache) HasValid(_ context.Context, fingerprint string) bool {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[fingerprint]
	return ok && now.Before(entry.expiresAt)
}

// Clear implements Cache.
func (c *MemoryCache) Clear(_ context.Context, fingerprint string) {
	c.mu.Lock()
	delete(c.entries, fingerprint)
	c.mu.Unlock()
}

// ClearAll implements Cache.
func (c *MemoryCache) ClearAll(_ context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
}

// Stats implements Cache.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: len(c.entries)}
}

// Close stops the background sweeper. Safe to call more than once.
func (c *MemoryCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// evictOldestLocked removes the oldest fifth of entries by insertion time.
// Callers must hold c.mu.
func (c *MemoryCache) evictOldestLocked() {
	type aged struct {
		key        string
		insertedAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for key, entry := range c.entries {
		all = append(all, aged{key: key, insertedAt: entry.insertedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].insertedAt.Before(all[j].insertedAt) })

	evict := len(c.entries) / 5
	if evict < 1 {
		evict = 1
	}
	// Always shed at least down to the bound.
	if over := len(c.entries) - c.maxEntries; over > evict {
		evict = over
	}
	for i := 0; i < evict && i < len(all); i++ {
		delete(c.entries, all[i].key)
	}
}

func (c *MemoryCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *MemoryCache) sweep() {
	now := c.clock()
	c.mu.Lock()
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}
