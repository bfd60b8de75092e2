package embedding

import (
	"context"

	"github.com/trpc-group/compliance-rag/localcache"
)

// Cached wraps an Embedder with cache-aside semantics keyed on the exact
// input texts, so repeated embedding requests for the same batch (e.g. a
// question re-asked within a session, or a retry after a transient
// failure) skip the round trip to the embedding provider entirely.
type Cached struct {
	inner Embedder
	cache *localcache.Cache
}

// NewCached returns an Embedder that memoizes inner's Embed calls in cache.
func NewCached(inner Embedder, cache *localcache.Cache) *Cached {
	return &Cached{inner: inner, cache: cache}
}

// Embed implements Embedder.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	memoized := localcache.Memoize(c.cache, "embedding", "Embed", texts, func(ctx context.Context) ([][]float32, error) {
		return c.inner.Embed(ctx, texts)
	})
	return memoized(ctx)
}

// Dimensions implements Embedder.
func (c *Cached) Dimensions() int {
	return c.inner.Dimensions()
}
