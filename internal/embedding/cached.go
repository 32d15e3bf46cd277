package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/projectsamarth/samarth/internal/cache"
)

// Store is the subset of cache.Cache used for query vectors.
type Store interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CachedEmbedder memoises single-text embeddings, which is what repeated
// user questions hit. Batch calls go straight to the wrapped Embedder.
// Cache failures are logged and never fail the call.
type CachedEmbedder struct {
	next  Embedder
	store Store
	ttl   time.Duration
}

func NewCachedEmbedder(next Embedder, store Store, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{next: next, store: store, ttl: ttl}
}

func (c *CachedEmbedder) Model() string { return c.next.Model() }

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return c.next.Embed(ctx, texts)
}

func (c *CachedEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(c.next.Model(), text)

	var vec []float32
	err := c.store.Get(ctx, key, &vec)
	switch {
	case err == nil && len(vec) > 0:
		return vec, nil
	case err != nil && !errors.Is(err, cache.ErrMiss):
		slog.Warn("embedding cache read failed", "error", err)
	}

	vec, err = c.next.EmbedSingle(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, key, vec, c.ttl); err != nil {
		slog.Warn("embedding cache write failed", "error", err)
	}
	return vec, nil
}

// CacheKey scopes a text's vector to the model that produced it.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + model + ":" + hex.EncodeToString(sum[:])
}
