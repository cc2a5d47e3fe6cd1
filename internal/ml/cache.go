package ml

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ResultCache keeps recent analyses keyed by the raw SMILES text. They are
// a pure function of the input and the immutable store, so entries never
// need invalidation beyond the TTL. A nil cache is disabled.
type ResultCache struct {
	lru *expirable.LRU[string, Analysis]
}

// NewResultCache returns nil when size is not positive. A zero ttl keeps
// entries until evicted by size.
func NewResultCache(size int, ttl time.Duration) *ResultCache {
	if size <= 0 {
		return nil
	}
	return &ResultCache{lru: expirable.NewLRU[string, Analysis](size, nil, ttl)}
}

// Enabled reports whether the cache stores anything.
func (c *ResultCache) Enabled() bool { return c != nil }

// Get returns a copy of the cached analysis.
func (c *ResultCache) Get(smiles string) (Analysis, bool) {
	if c == nil {
		return Analysis{}, false
	}
	a, ok := c.lru.Get(smiles)
	if !ok {
		return Analysis{}, false
	}
	return a.clone(), true
}

// Add stores a copy of a.
func (c *ResultCache) Add(smiles string, a Analysis) {
	if c == nil {
		return
	}
	c.lru.Add(smiles, a.clone())
}

// Len returns the number of cached entries.
func (c *ResultCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
