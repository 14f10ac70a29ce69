package ingest

import (
	"context"

	"github.com/habita-labs/habita/internal/domain"
)

// Repository defines the storage contract for listing ingestion.
type Repository interface {
	UpsertBatch(ctx context.Context, batch []domain.EmbeddedListing) error
	EnsureIndex(ctx context.Context) error
}

// Embedder vectorizes listing chunks in input order.
type Embedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
}
