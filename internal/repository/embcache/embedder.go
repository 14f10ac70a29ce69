// Package embcache caches query embeddings in the key-value store so that
// repeated searches for the same text skip the provider round-trip.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/habita-labs/habita/internal/db"
	"github.com/habita-labs/habita/internal/metrics"
)

// store is the consumer interface for the cache backend (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Embedder is the single-text vectorization contract this cache decorates.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Config holds cache parameters.
type Config struct {
	// KeyPrefix namespaces cache keys, e.g. "habita:listing:".
	KeyPrefix string
	// Model is part of the cache key so vectors from different models
	// never collide.
	Model string
	// TTL bounds how long a cached vector lives. Zero means no expiry.
	TTL time.Duration
}

// CachedEmbedder decorates an Embedder with a read-through cache.
// Cache failures degrade to a plain provider call, never to an error.
type CachedEmbedder struct {
	inner  Embedder
	store  store
	cfg    Config
	logger *zap.Logger
}

// New creates a caching decorator around inner.
func New(inner Embedder, s store, cfg Config, logger *zap.Logger) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, store: s, cfg: cfg, logger: logger}
}

// EmbedOne returns a cached vector or delegates to the inner embedder and
// stores the result.
func (c *CachedEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if vec, ok := c.getFromCache(ctx, key); ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
		return vec, nil
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()

	vec, err := c.inner.EmbedOne(ctx, text)
	if err != nil {
		return nil, err
	}

	c.putToCache(ctx, key, vec)
	return vec, nil
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(c.cfg.Model + "\x00" + text))
	return c.cfg.KeyPrefix + "emb_cache:" + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Embedding cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	vec, err := decodeVector(data)
	if err != nil {
		c.logger.Warn("Discarding corrupt cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) putToCache(ctx context.Context, key string, vec []float32) {
	if err := c.store.SetEx(ctx, key, []byte(db.VectorToBytes(vec)), c.cfg.TTL); err != nil {
		c.logger.Warn("Embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("cached embedding has invalid length %d", len(data))
	}
	return db.BytesToVector(string(data)), nil
}
