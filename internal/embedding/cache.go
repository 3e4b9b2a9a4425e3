package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryCache is an LRU of query embeddings shared by every provider built from one Registry.
type QueryCache struct {
	lru *lru.Cache[string, []float32]
}

// NewQueryCache creates a cache holding up to size embeddings.
func NewQueryCache(size int) (*QueryCache, error) {
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}
	return &QueryCache{lru: c}, nil
}

// Len returns the number of cached embeddings.
func (c *QueryCache) Len() int { return c.lru.Len() }

// cacheScope identifies the backend that produced an embedding. Sources without a model scope take
// their URL per request, so the endpoint and a digest of the key are part of the scope.
func cacheScope(source, model string, s SourceSettings) string {
	key := ""
	if s.APIKey != "" {
		sum := sha256.Sum256([]byte(s.APIKey))
		key = hex.EncodeToString(sum[:8])
	}
	return source + "\x00" + model + "\x00" + s.APIURL + "\x00" + key
}

func cacheKey(scope, text string) string {
	return scope + "\x00" + text
}

// CachedProvider serves repeated query embeddings from a QueryCache. Document embeddings and batches
// always reach the wrapped provider.
type CachedProvider struct {
	Provider
	cache    *QueryCache
	settings SourceSettings
}

// NewCachedProvider wraps p with cache. settings are the resolved settings p was built from; entries
// are only shared between providers with the same source, model, URL and key.
func NewCachedProvider(p Provider, cache *QueryCache, settings SourceSettings) *CachedProvider {
	return &CachedProvider{Provider: p, cache: cache, settings: settings}
}

func (c *CachedProvider) Embed(ctx context.Context, text string, isQuery bool) ([]float32, error) {
	if !isQuery {
		return c.Provider.Embed(ctx, text, false)
	}
	key := cacheKey(cacheScope(c.Source(), c.Model(), c.settings), text)
	if vec, ok := c.cache.lru.Get(key); ok {
		return vec, nil
	}
	vec, err := c.Provider.Embed(ctx, text, true)
	if err != nil {
		return nil, err
	}
	c.cache.lru.Add(key, vec)
	return vec, nil
}
