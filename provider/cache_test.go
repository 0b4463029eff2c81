package provider

import (
	"sync"
	"testing"
	"time"
)

func TestSelectionCache_InvalidateBumpsGeneration(t *testing.T) {
	c := NewSelectionCache(CacheConfig{})
	result := newResult(KindPickOne, nil)

	oldKey := c.Key(greeterContract, KindPickOne, 42)
	c.Set(oldKey, result)
	c.Set(c.Key(NamedContract("other"), KindPickOne, 42), result)

	if n := c.Invalidate(greeterContract); n != 1 {
		t.Fatalf("expected 1 evicted entry, got %d", n)
	}
	if c.Generation(greeterContract) != 1 {
		t.Errorf("expected generation 1, got %d", c.Generation(greeterContract))
	}

	// A result computed before the invalidation and stored after it must
	// never be served.
	c.Set(oldKey, result)
	if _, ok := c.Get(c.Key(greeterContract, KindPickOne, 42)); ok {
		t.Error("entry from an old generation was served")
	}

	stats := c.Stats()
	if stats.Invalidations != 1 || stats.Misses != 1 || stats.Entries != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestSelectionCache_Expiry(t *testing.T) {
	c := NewSelectionCache(CacheConfig{TTL: 20 * time.Millisecond, CleanupInterval: time.Hour})
	key := c.Key(greeterContract, KindPickOne, 1)
	c.Set(key, newResult(KindPickOne, nil))
	if _, ok := c.Get(key); !ok {
		t.Fatal("fresh entry missing")
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Error("expired entry served")
	}
}

func TestSelectionCache_ConcurrentAccess(t *testing.T) {
	c := NewSelectionCache(CacheConfig{})
	contracts := []Contract{greeterContract, NamedContract("a"), NamedContract("b")}

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				contract := contracts[(g+i)%len(contracts)]
				key := c.Key(contract, KindPickOne, uint64(i%7))
				switch i % 4 {
				case 0:
					c.Set(key, newResult(KindPickOne, nil))
				case 1:
					if r, ok := c.Get(key); ok && r.Kind() != KindPickOne {
						t.Errorf("corrupted entry %s", r.Kind())
					}
				case 2:
					c.Remove(key)
				case 3:
					if i%40 == 3 {
						c.Invalidate(contract)
					}
				}
			}
		}(g)
	}
	wg.Wait()

	c.Flush()
	if c.Stats().Entries != 0 {
		t.Error("Flush left entries behind")
	}
}

func TestCacheConfig_Validate(t *testing.T) {
	cfg := CacheConfig{}
	cfg.ApplyDefaults()
	if cfg.TTL != DefaultCacheTTL || cfg.CleanupInterval != DefaultCacheCleanupInterval {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if err := (&CacheConfig{TTL: -1}).Validate(); err == nil {
		t.Error("negative TTL should fail")
	}
}
