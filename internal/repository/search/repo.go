// Package search adapts FT.SEARCH KNN results into domain matches.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/habita-labs/habita/internal/db"
	"github.com/habita-labs/habita/internal/domain"
	"github.com/habita-labs/habita/internal/domain/search/filter"
)

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo implements usecase/search.Repository.
type Repo struct {
	store     store
	indexName string
	keyPrefix string
}

// New creates a search repository over the listing index.
func New(s store, indexName, keyPrefix string) *Repo {
	return &Repo{store: s, indexName: indexName, keyPrefix: keyPrefix}
}

// returnFields are the stored listing fields surfaced as match metadata.
// The vector blob is deliberately left out of responses.
var returnFields = []string{
	"title", "operation", "price", "address",
	"bedrooms", "bathrooms", "description", "city", "barrio",
	"__vector_score",
}

// SearchKNN performs a vector similarity search with filter pre-filtering
// and returns matches sorted by descending similarity.
func (r *Repo) SearchKNN(
	ctx context.Context, vector []float32, filters filter.Expression, topK int,
) ([]domain.Match, error) {
	q := &db.KNNQuery{
		IndexName:    r.indexName,
		Filters:      filters,
		Vector:       vector,
		K:            topK,
		ReturnFields: returnFields,
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w", r.indexName, err)
	}

	return r.parseResults(sr), nil
}

func (r *Repo) parseResults(sr *db.SearchResult) []domain.Match {
	if sr == nil || sr.Total == 0 {
		return nil
	}

	matches := make([]domain.Match, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		matches = append(matches, domain.Match{
			ID:       strings.TrimPrefix(entry.Key, r.keyPrefix),
			Score:    entry.Score,
			Metadata: entry.Fields,
		})
	}
	return matches
}
