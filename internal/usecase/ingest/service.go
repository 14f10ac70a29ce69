// Package ingest loads listings into the vector index: it enriches each
// listing with an inferred location, embeds its rendered chunk, and writes
// everything through the listing repository.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/habita-labs/habita/internal/domain"
	"github.com/habita-labs/habita/internal/domain/location"
	"github.com/habita-labs/habita/internal/domain/nlp"
)

// Service ingests listings.
type Service struct {
	repo   Repository
	embed  Embedder
	logger *zap.Logger
}

// New creates an ingest service.
func New(repo Repository, embed Embedder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, embed: embed, logger: logger}
}

// Report summarizes one ingestion run.
type Report struct {
	Ingested int      `json:"ingested"`
	IDs      []string `json:"ids"`
}

// Ingest enriches, embeds, and persists listings. IDs are assigned where
// missing; existing city/barrio values are kept, otherwise they are
// inferred from the address with the title as fallback.
func (s *Service) Ingest(ctx context.Context, listings []domain.Listing) (Report, error) {
	if len(listings) == 0 {
		return Report{IDs: []string{}}, nil
	}

	start := time.Now()

	if err := s.repo.EnsureIndex(ctx); err != nil {
		return Report{}, fmt.Errorf("ensure index: %w", err)
	}

	prepared := make([]domain.Listing, len(listings))
	chunks := make([]string, len(listings))
	for i, l := range listings {
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		enrichLocation(&l)
		prepared[i] = l
		chunks[i] = l.Chunk()
	}

	vectors, err := s.embed.EmbedAll(ctx, chunks)
	if err != nil {
		return Report{}, fmt.Errorf("embed %d listings: %w", len(chunks), err)
	}
	if len(vectors) != len(prepared) {
		return Report{}, fmt.Errorf("got %d vectors for %d listings: %w",
			len(vectors), len(prepared), domain.ErrEmbeddingProviderError)
	}

	batch := make([]domain.EmbeddedListing, len(prepared))
	ids := make([]string, len(prepared))
	for i := range prepared {
		batch[i] = domain.EmbeddedListing{Listing: prepared[i], Vector: vectors[i]}
		ids[i] = prepared[i].ID
	}

	if err := s.repo.UpsertBatch(ctx, batch); err != nil {
		return Report{}, fmt.Errorf("persist batch: %w", err)
	}

	s.logger.Info("ingested listings",
		zap.Int("count", len(batch)),
		zap.Duration("duration", time.Since(start)),
	)
	return Report{Ingested: len(batch), IDs: ids}, nil
}

// enrichLocation fills city/barrio from the address, falling back to the
// title when the address yields nothing. Explicit values win.
func enrichLocation(l *domain.Listing) {
	if l.City != "" || l.Barrio != "" {
		return
	}

	place := location.Infer(nlp.Normalize(l.Address))
	if place.IsZero() {
		place = location.Infer(nlp.Normalize(l.Title))
	}
	l.City = place.City
	l.Barrio = place.Barrio
}
