package service

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// CachedEmbedding memoizes query embeddings in an LRU and coalesces
// concurrent misses for the same text. Passage embeddings are not cached.
type CachedEmbedding struct {
	EmbeddingProvider
	lru   *lru.Cache[string, []float32]
	group singleflight.Group
}

// NewCachedEmbedding wraps provider with a query cache of maxEntries.
func NewCachedEmbedding(provider EmbeddingProvider, maxEntries int) (*CachedEmbedding, error) {
	cache, err := lru.New[string, []float32](maxEntries)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedding{
		EmbeddingProvider: provider,
		lru:               cache,
	}, nil
}

// EmbedQuery returns the cached vector for text, loading it on miss.
func (c *CachedEmbedding) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.lru.Get(text); ok {
		return v, nil
	}

	// The shared load must not inherit one caller's cancellation; each caller
	// stops waiting on its own context instead.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(text, func() (any, error) {
		loaded, err := c.EmbeddingProvider.EmbedQuery(loadCtx, text)
		if err != nil {
			return nil, err
		}
		c.lru.Add(text, loaded)
		return loaded, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]float32), nil
	}
}

// Len returns the number of cached query vectors.
func (c *CachedEmbedding) Len() int {
	return c.lru.Len()
}
