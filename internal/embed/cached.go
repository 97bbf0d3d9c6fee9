package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize bounds the embedding LRU. A 768-dim float32
// vector is 3KB, so a full cache holds about 3MB.
const DefaultEmbeddingCacheSize = 1000

// CachedEmbedder fronts another Embedder with an LRU keyed on content
// and model, so repeated queries and re-ingested chunks skip the
// backend.
type CachedEmbedder struct {
	next  Embedder
	cache *lru.Cache[string, []float32]
}

var _ Embedder = (*CachedEmbedder)(nil)

func NewCachedEmbedder(next Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	c, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedder{next: next, cache: c}
}

// cacheKey hashes text together with the model name, so switching
// models never serves a stale vector.
func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + c.next.ModelName()))
	return hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch serves what it can from cache and sends only the misses
// to the backend in one batch.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	var missIdx []int
	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	missing := make([]string, len(missIdx))
	for j, i := range missIdx {
		missing[j] = texts[i]
	}
	vecs, err := c.next.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.cache.Add(c.cacheKey(texts[i]), vecs[j])
	}
	return out, nil
}

func (c *CachedEmbedder) Dimensions() int { return c.next.Dimensions() }

func (c *CachedEmbedder) ModelName() string { return c.next.ModelName() }

func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.next.Available(ctx) }

func (c *CachedEmbedder) Close() error { return c.next.Close() }

// Inner exposes the wrapped embedder for backend introspection.
func (c *CachedEmbedder) Inner() Embedder { return c.next }
