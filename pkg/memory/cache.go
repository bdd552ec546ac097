package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/harun/recall/internal/observability"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// resultCache memoizes ranked results per normalized query. It is purged on
// every committed sync; results computed against an older index generation
// are never stored. A nil *resultCache is a disabled cache.
type resultCache struct {
	mu         sync.Mutex
	lru        *expirable.LRU[string, []SearchResult]
	generation uint64
}

func newResultCache(size int, ttl time.Duration) *resultCache {
	return &resultCache{lru: expirable.NewLRU[string, []SearchResult](size, nil, ttl)}
}

func resultCacheKey(query string, p searchParams) string {
	return fmt.Sprintf("%s\x00%d\x00%g\x00%g\x00%g", query, p.maxResults, p.minScore, p.vectorWeight, p.textWeight)
}

func (c *resultCache) Get(key string) ([]SearchResult, bool) {
	if c == nil {
		return nil, false
	}
	res, ok := c.lru.Get(key)
	observability.RecordResultCacheLookup(ok)
	if !ok {
		return nil, false
	}
	return cloneResults(res), true
}

// Generation returns a token to pass to Put.
func (c *resultCache) Generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Put stores results unless a purge happened since gen was taken.
func (c *resultCache) Put(gen uint64, key string, results []SearchResult) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	c.lru.Add(key, cloneResults(results))
}

func (c *resultCache) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.lru.Purge()
}

func (c *resultCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
