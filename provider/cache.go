package provider

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	DefaultCacheTTL             = 10 * time.Minute
	DefaultCacheCleanupInterval = 30 * time.Minute

	keySep = "\x1f"
)

// CacheConfig configures a SelectionCache.
type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl" mapstructure:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
}

// ApplyDefaults fills zero values.
func (c *CacheConfig) ApplyDefaults() {
	if c.TTL == 0 {
		c.TTL = DefaultCacheTTL
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = DefaultCacheCleanupInterval
	}
}

// Validate checks the configuration.
func (c *CacheConfig) Validate() error {
	if c.TTL < 0 {
		return fmt.Errorf("selection.cache.ttl must not be negative")
	}
	if c.CleanupInterval < 0 {
		return fmt.Errorf("selection.cache.cleanup_interval must not be negative")
	}
	return nil
}

// CacheStats is a point-in-time view of cache activity.
type CacheStats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Invalidations uint64 `json:"invalidations"`
	Entries       int    `json:"entries"`
}

// SelectionCache memoizes selection results.
//
// Keys embed a per-contract generation. Invalidate bumps the generation, so
// a result computed against an older registration set can never be served,
// even when it is stored after the invalidation.
type SelectionCache struct {
	store       *gocache.Cache
	generations sync.Map // contract key -> *atomic.Uint64

	hits          atomic.Uint64
	misses        atomic.Uint64
	invalidations atomic.Uint64
}

// NewSelectionCache creates a cache. Zero config values take the defaults
// (10 minute TTL, 30 minute cleanup).
func NewSelectionCache(cfg CacheConfig) *SelectionCache {
	cfg.ApplyDefaults()
	return &SelectionCache{store: gocache.New(cfg.TTL, cfg.CleanupInterval)}
}

func (c *SelectionCache) generation(contract Contract) *atomic.Uint64 {
	if g, ok := c.generations.Load(contract.key()); ok {
		return g.(*atomic.Uint64)
	}
	g, _ := c.generations.LoadOrStore(contract.key(), new(atomic.Uint64))
	return g.(*atomic.Uint64)
}

// Generation returns the current generation of contract.
func (c *SelectionCache) Generation(contract Contract) uint64 {
	return c.generation(contract).Load()
}

// Key builds the cache key for a strategy result over a registration set hash.
func (c *SelectionCache) Key(contract Contract, kind StrategyKind, setHash uint64) string {
	return contract.key() + keySep +
		strconv.FormatUint(c.Generation(contract), 10) + keySep +
		string(kind) + keySep +
		strconv.FormatUint(setHash, 16)
}

// Get returns a cached result and counts the hit or miss.
func (c *SelectionCache) Get(key string) (SelectionResult, bool) {
	if v, ok := c.store.Get(key); ok {
		c.hits.Add(1)
		return v.(SelectionResult), true
	}
	c.misses.Add(1)
	return SelectionResult{}, false
}

// Set stores a result with the default TTL.
func (c *SelectionCache) Set(key string, result SelectionResult) {
	c.store.SetDefault(key, result)
}

// Remove deletes one key.
func (c *SelectionCache) Remove(key string) {
	c.store.Delete(key)
}

// Invalidate bumps the generation of contract and evicts its entries.
// It returns the number of evicted entries.
func (c *SelectionCache) Invalidate(contract Contract) int {
	c.generation(contract).Add(1)
	c.invalidations.Add(1)

	prefix := contract.key() + keySep
	evicted := 0
	for key := range c.store.Items() {
		if strings.HasPrefix(key, prefix) {
			c.store.Delete(key)
			evicted++
		}
	}
	return evicted
}

// HandleChange invalidates the contract of a registry change.
func (c *SelectionCache) HandleChange(ev ChangeEvent) {
	c.Invalidate(ev.Contract)
}

// Flush drops every entry. Generations are kept.
func (c *SelectionCache) Flush() {
	c.store.Flush()
}

// Stats returns the counters and the current entry count.
func (c *SelectionCache) Stats() CacheStats {
	return CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
		Entries:       c.store.ItemCount(),
	}
}
