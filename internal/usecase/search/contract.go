package search

import (
	"context"

	"github.com/habita-labs/habita/internal/domain"
	"github.com/habita-labs/habita/internal/domain/search/filter"
)

// Repository defines the storage contract for search operations.
type Repository interface {
	SearchKNN(
		ctx context.Context, vector []float32, filters filter.Expression, topK int,
	) ([]domain.Match, error)
}

// Embedder vectorizes the query text.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}
