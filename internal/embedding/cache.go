package embedding

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"sync"
)

const defaultCacheSize = 4096

// CachedEmbedder memoizes vectors in memory, keyed by model and text.
// When the cache reaches its size it is cleared rather than evicting entries.
type CachedEmbedder struct {
	inner   Embedder
	maxSize int

	mu     sync.RWMutex
	cache  map[string][]float32
	hits   int64
	misses int64
}

// NewCachedEmbedder wraps inner with a cache of at most size entries.
func NewCachedEmbedder(inner Embedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = defaultCacheSize
	}
	return &CachedEmbedder{
		inner:   inner,
		maxSize: size,
		cache:   make(map[string][]float32),
	}
}

// ModelID returns the wrapped embedder's model.
func (c *CachedEmbedder) ModelID() string {
	return c.inner.ModelID()
}

// Embed returns a cached vector or computes and stores a new one.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	c.mu.RLock()
	vec, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return cloneVector(vec), nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.misses++
	if len(c.cache) >= c.maxSize {
		c.cache = make(map[string][]float32)
	}
	c.cache[key] = cloneVector(vec)
	c.mu.Unlock()

	return vec, nil
}

// Stats returns cache hits, misses and current size.
func (c *CachedEmbedder) Stats() (hits, misses int64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, len(c.cache)
}

// Close drops the cache and closes the wrapped embedder.
func (c *CachedEmbedder) Close() error {
	c.mu.Lock()
	c.cache = make(map[string][]float32)
	c.mu.Unlock()
	return c.inner.Close()
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha1.New()
	_, _ = io.WriteString(h, c.inner.ModelID())
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, text)
	return hex.EncodeToString(h.Sum(nil))
}

var _ Embedder = (*CachedEmbedder)(nil)
