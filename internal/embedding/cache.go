package embedding

import (
	"fmt"
	"hash/fnv"

	lru "github.com/hashicorp/golang-lru/v2"
	"gocv.io/x/gocv"
)

// DefaultCacheSize is the number of embeddings Cached keeps.
const DefaultCacheSize = 128

// Cached remembers embeddings of recently seen frames. A camera that is
// covered or pointed at a static scene delivers identical frames, which then
// skip the network entirely.
type Cached struct {
	inner Embedder
	cache *lru.Cache[uint64, []float64]
}

// NewCached wraps inner with an LRU cache holding size entries.
func NewCached(inner Embedder, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[uint64, []float64](size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// Embed returns the cached embedding for an identical frame, or computes
// and stores a new one.
func (c *Cached) Embed(frame *gocv.Mat) ([]float64, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyFrame
	}

	key := frameKey(frame)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(frame)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// Width returns the wrapped embedder's width.
func (c *Cached) Width() int {
	return c.inner.Width()
}

// Len returns the number of cached embeddings.
func (c *Cached) Len() int {
	return c.cache.Len()
}

// Close purges the cache and closes the wrapped embedder.
func (c *Cached) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}

// frameKey hashes a frame's geometry and pixel data.
func frameKey(frame *gocv.Mat) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%dx%d:%d:", frame.Rows(), frame.Cols(), int(frame.Type()))
	h.Write(frame.ToBytes())
	return h.Sum64()
}
