package vault

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// IndexCache holds parsed vault snapshots keyed by vault root so repeated
// syncs within the TTL skip re-parsing. The watcher clears it on change.
type IndexCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewIndexCache creates a cache whose entries expire after ttl. A zero ttl
// keeps entries until cleared.
func NewIndexCache(ttl time.Duration) (*IndexCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e3,
		MaxCost:     64,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("vault: new index cache: %w", err)
	}
	return &IndexCache{cache: c, ttl: ttl}, nil
}

// Get returns the cached snapshot for root.
func (c *IndexCache) Get(root string) (*Index, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.cache.Get(root)
	if !ok {
		return nil, false
	}
	idx, ok := v.(*Index)
	return idx, ok
}

// Set stores idx for root. Writes are applied before Set returns.
func (c *IndexCache) Set(root string, idx *Index) {
	if c == nil {
		return
	}
	c.cache.SetWithTTL(root, idx, 1, c.ttl)
	c.cache.Wait()
}

// Clear drops every snapshot.
func (c *IndexCache) Clear() {
	if c == nil {
		return
	}
	c.cache.Clear()
}

// Close releases the cache goroutines.
func (c *IndexCache) Close() {
	if c == nil {
		return
	}
	c.cache.Close()
}
