// Package embedding batches texts through an embedding provider with
// paced requests and retry on failure.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/habita-labs/habita/internal/domain"
	"github.com/habita-labs/habita/internal/metrics"
)

// Config holds the batching policy.
type Config struct {
	Provider   string        // label for logs and metrics
	BatchSize  int           // texts per API call
	BatchDelay time.Duration // minimum gap between consecutive API calls
	MaxRetries int           // attempts per batch before giving up
	BaseDelay  time.Duration // backoff unit, attempt n waits n*BaseDelay
}

// Service embeds documents in fixed-size batches. Consecutive batches are
// paced by a rate limiter so provider rate limits are respected even
// across concurrent callers.
type Service struct {
	provider domain.BatchEmbedder
	cfg      Config
	limiter  *rate.Limiter
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *zap.Logger
}

// New creates an embedding service.
func New(provider domain.BatchEmbedder, cfg Config, logger *zap.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = 800 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 4
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = cfg.BatchDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		provider: provider,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Every(cfg.BatchDelay), 1),
		sleep:    sleepCtx,
		logger:   logger,
	}
}

// EmbedAll vectorizes texts in input order. The result has exactly one
// vector per text, at the same position.
func (s *Service) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(texts))

		batch, err := s.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch [%d:%d]: %w", start, end, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// EmbedOne vectorizes a single text, subject to the same pacing.
func (s *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// embedBatch runs one provider call with pacing and linear backoff.
// Attempt n (1-based) waits n*BaseDelay before retrying.
func (s *Service) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := s.provider.BatchEmbed(ctx, texts)
		if err == nil {
			return result.Embeddings, nil
		}
		lastErr = err

		s.logger.Warn("embedding batch failed",
			zap.String("provider", s.cfg.Provider),
			zap.Int("attempt", attempt),
			zap.Int("batch_size", len(texts)),
			zap.Error(err),
		)

		if attempt == s.cfg.MaxRetries {
			break
		}
		metrics.EmbeddingRetriesTotal.WithLabelValues(s.cfg.Provider).Inc()
		if err := s.sleep(ctx, time.Duration(attempt)*s.cfg.BaseDelay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", s.cfg.MaxRetries, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
