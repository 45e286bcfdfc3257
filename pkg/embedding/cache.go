package embedding

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/vitalmind/agentmem/pkg/errors"
	"github.com/vitalmind/agentmem/pkg/log"
)

// CacheConfig contains configuration options for the embedding cache.
type CacheConfig struct {
	// TTL is the cache entry lifetime (default 1 hour)
	TTL time.Duration

	// MaxEntries bounds the number of cached embeddings
	MaxEntries int
}

// DefaultCacheConfig returns the default embedding cache configuration.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:        time.Hour,
		MaxEntries: 10000,
	}
}

// Cache wraps an embedding Service with a short-TTL content-addressed
// cache. Identical texts hit the cache and skip the provider entirely;
// cache-store failures are logged and swallowed so retrieval never fails
// because of the cache.
type Cache struct {
	service Service
	cache   *ristretto.Cache
	config  CacheConfig
}

// NewCache creates an embedding cache in front of the given service.
func NewCache(service Service, config CacheConfig) (*Cache, error) {
	if config.TTL <= 0 {
		config.TTL = DefaultCacheConfig().TTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultCacheConfig().MaxEntries
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(config.MaxEntries) * 10,
		MaxCost:     int64(config.MaxEntries),
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create embedding cache")
	}

	log.Debug("Embedding cache initialized",
		"ttl", config.TTL,
		"max_entries", config.MaxEntries,
	)

	return &Cache{
		service: service,
		cache:   cache,
		config:  config,
	}, nil
}

// GetOrGenerate returns the embedding for text, computing it via the
// underlying service only on a cache miss.
func (c *Cache) GetOrGenerate(ctx context.Context, text string) ([]float32, error) {
	key := ContentHash(text)

	if cached, ok := c.cache.Get(key); ok {
		if vector, ok := cached.([]float32); ok {
			log.DebugContext(ctx, "Embedding cache hit", "key", key[:12])
			return vector, nil
		}
	}

	vector, err := c.service.Embed(ctx, text)
	if err != nil {
		return nil, errors.Wrap(errors.ErrProvider, "embedding generation failed: %v", err)
	}

	if dims := c.service.Dimensions(); dims > 0 && len(vector) != dims {
		return nil, errors.Wrap(errors.ErrValidation,
			"provider returned %d dimensions, expected %d", len(vector), dims)
	}

	// A rejected admission just means the next identical text pays the
	// provider again
	if !c.cache.SetWithTTL(key, vector, 1, c.config.TTL) {
		log.DebugContext(ctx, "Embedding cache admission rejected", "key", key[:12])
	}

	return vector, nil
}

// Dimensions returns the dimensionality of the wrapped service.
func (c *Cache) Dimensions() int {
	return c.service.Dimensions()
}

// Wait blocks until pending cache writes are visible (used in tests).
func (c *Cache) Wait() {
	c.cache.Wait()
}

// Close releases the cache resources.
func (c *Cache) Close() {
	c.cache.Close()
}
