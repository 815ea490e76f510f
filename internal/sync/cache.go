package sync

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// cacheTTLDefault is the default lifetime of a cached sync result.
const cacheTTLDefault = 5 * time.Minute

// cacheEntry holds a memoized sync Result plus the content hashes it was
// computed from, so a cache hit can be sanity-checked against the inputs
// that produced it.
type cacheEntry struct {
	Result     Result
	InsertedAt time.Time
	PanelHash  uint64
	TaskHash   uint64
}

// Cache is the per-process, request-scoped memoization layer for sync
// results, keyed by a caller-supplied, presumed-unique requestId. It never
// substitutes for persistence, and its own mutex guards every entry, so
// callers need no additional locking.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

// NewCache constructs a Cache with the given TTL, or cacheTTLDefault if
// ttl <= 0.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = cacheTTLDefault
	}
	return &Cache{entries: map[string]cacheEntry{}, ttl: ttl}
}

// HashBytes returns a stable content hash for cache-key sanity checks.
func HashBytes(b []byte) uint64 { return xxhash.Sum64(b) }

// Get returns the cached result for requestId if present and still
// within TTL; a stale entry is evicted on read rather than left to
// linger.
func (c *Cache) Get(requestID string, now time.Time) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[requestID]
	if !ok {
		return Result{}, false
	}
	if now.Sub(e.InsertedAt) > c.ttl {
		delete(c.entries, requestID)
		return Result{}, false
	}
	return e.Result, true
}

// Put stores a result for requestId along with the panel/task content
// hashes at insertion time.
func (c *Cache) Put(requestID string, result Result, panelHash, taskHash uint64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[requestID] = cacheEntry{Result: result, InsertedAt: now, PanelHash: panelHash, TaskHash: taskHash}
}

// Sweep evicts every entry older than the TTL relative to now. The store
// may call this periodically; eviction also happens lazily on Get.
func (c *Cache) Sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.Sub(e.InsertedAt) > c.ttl {
			delete(c.entries, k)
		}
	}
}
