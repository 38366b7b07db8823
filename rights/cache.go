// Package rights provides the endorsing-rights lookup boundary: given a
// block and level, which delegates may endorse and what are their public
// keys. Like protocol/, this is an external-process concern — the cache
// here only memoizes answers the effect layer already fetched, it never
// derives rights itself.
package rights

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkuehr/tezedge/chain"
)

// Source is the narrow interface the effect layer uses to fetch delegate
// public keys for a (block, level) pair. The real implementation calls out
// to the protocol runner's rights endpoint; tests use a FakeSource.
type Source interface {
	EndorsingRights(ctx context.Context, block chain.BlockHash, level chain.Level) (map[string][]byte, error)
}

type cacheKey struct {
	Block chain.BlockHash
	Level chain.Level
}

// Cache memoizes Source lookups so repeated requests for the same
// (block, level) — common across a burst of endorsements at one level —
// hit the network once.
type Cache struct {
	src Source

	mu      sync.Mutex
	entries map[cacheKey]map[string][]byte
}

// NewCache wraps src with memoization.
func NewCache(src Source) *Cache {
	return &Cache{src: src, entries: make(map[cacheKey]map[string][]byte)}
}

// Lookup returns the delegate->pubkey map for (block, level), fetching
// from the source on a cache miss.
func (c *Cache) Lookup(ctx context.Context, block chain.BlockHash, level chain.Level) (map[string][]byte, error) {
	key := cacheKey{Block: block, Level: level}

	c.mu.Lock()
	if rights, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return rights, nil
	}
	c.mu.Unlock()

	rights, err := c.src.EndorsingRights(ctx, block, level)
	if err != nil {
		return nil, fmt.Errorf("endorsing rights for level %d: %w", level, err)
	}

	c.mu.Lock()
	c.entries[key] = rights
	c.mu.Unlock()
	return rights, nil
}

// Forget evicts a cached entry, used once a block moves out of the live
// window so the cache does not grow unbounded.
func (c *Cache) Forget(block chain.BlockHash, level chain.Level) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{Block: block, Level: level})
}
