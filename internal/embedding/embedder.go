// Package embedding turns chunk text into vectors, degrading to a nil
// vector whenever the provider cannot serve the request. A nil vector is a
// valid outcome: the chunk stays retrievable through keyword fallback.
package embedding

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/complyassist/backend/internal/cache/redis"
	"github.com/complyassist/backend/internal/metrics"
	"github.com/complyassist/backend/pkg/logger"
	"github.com/complyassist/backend/pkg/utils"
)

// Provider generates one embedding vector for a piece of text.
type Provider interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Cache stores vectors keyed by content hash.
type Cache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

type Embedder struct {
	provider  Provider
	cache     Cache
	minLength int
}

// New builds an embedder. cache may be nil; caching is an optimization, not
// a dependency.
func New(provider Provider, cache Cache, minLength int) *Embedder {
	return &Embedder{
		provider:  provider,
		cache:     cache,
		minLength: minLength,
	}
}

// Embed returns a vector for the text, or nil when embedding is skipped or
// the provider fails. Very short and emergency-mode chunks are skipped
// outright: they are unlikely to be retrieved meaningfully and embedding
// them only spends provider quota.
func (e *Embedder) Embed(ctx context.Context, text string, emergency bool) []float32 {
	if emergency || len(text) < e.minLength {
		logger.Debug("Embedding skipped",
			zap.Int("text_length", len(text)),
			zap.Bool("emergency", emergency),
		)
		return nil
	}

	hash := utils.HashContent(text)

	if e.cache != nil {
		if vec, ok, err := e.cache.GetEmbedding(ctx, hash); err == nil && ok {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			return vec
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
	}

	vec, err := e.provider.GenerateEmbedding(ctx, text)
	if err != nil {
		logger.Warn("Embedding provider unavailable, persisting chunk without vector",
			zap.Error(err),
		)
		return nil
	}

	if e.cache != nil {
		if err := e.cache.SetEmbedding(ctx, hash, vec, redis.EmbeddingTTL); err != nil {
			logger.Debug("Failed to cache embedding", zap.Error(err))
		}
	}

	return vec
}
