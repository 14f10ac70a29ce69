// Package search runs semantic listing retrieval: parse the raw query,
// embed it, then cascade through progressively looser filter tiers until
// something relevant comes back.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/habita-labs/habita/internal/domain"
	"github.com/habita-labs/habita/internal/domain/query"
	"github.com/habita-labs/habita/internal/domain/search/filter"
	"github.com/habita-labs/habita/internal/metrics"
)

// Tier relaxations relative to the configured minimum score.
const (
	baseTierRelax       = 0.03
	unfilteredTierRelax = 0.06
)

// Config holds retrieval defaults.
type Config struct {
	TopK       int     // candidates fetched per tier
	MinScore   float64 // similarity floor for the strictest tier
	MaxResults int     // hard cap on returned matches
}

// Result is the outcome of one retrieval, including the structured query
// and the tier that produced the matches.
type Result struct {
	Query   query.ParsedQuery `json:"query"`
	Matches []domain.Match    `json:"results"`
	Tier    string            `json:"tier"`
}

// tier is one pass of the filter cascade.
type tier struct {
	name     string
	filters  filter.Expression
	minScore float64
}

// Service is the retrieval engine.
type Service struct {
	repo   Repository
	embed  Embedder
	cfg    Config
	logger *zap.Logger
}

// New creates a search service.
func New(repo Repository, embed Embedder, cfg Config, logger *zap.Logger) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 12
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = 0.56
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, embed: embed, cfg: cfg, logger: logger}
}

// Options are per-request overrides of the retrieval defaults. Zero
// values keep the configured defaults.
type Options struct {
	TopK     int
	MinScore float64
}

// Search runs a retrieval with the configured defaults.
func (s *Service) Search(ctx context.Context, raw string) (Result, error) {
	return s.SearchWithOptions(ctx, raw, Options{})
}

// SearchWithOptions parses and validates the raw query, embeds its cleaned
// text, and walks the filter cascade. Each tier widens the candidate pool
// and lowers the similarity floor; the first tier with hits wins and later
// tiers are never consulted.
func (s *Service) SearchWithOptions(ctx context.Context, raw string, opts Options) (Result, error) {
	start := time.Now()

	topK := s.cfg.TopK
	if opts.TopK > 0 {
		topK = opts.TopK
	}
	minScore := s.cfg.MinScore
	if opts.MinScore > 0 && opts.MinScore <= 1 {
		minScore = opts.MinScore
	}

	parsed := query.Parse(raw)
	if err := query.Validate(&parsed); err != nil {
		return Result{}, err
	}

	vector, err := s.embed.EmbedOne(ctx, parsed.Text)
	if err != nil {
		return Result{}, fmt.Errorf("vectorize query: %w", err)
	}

	base := baseFilter(&parsed)
	strong := strongFilter(base, &parsed)

	// The first pass always runs at the full floor with the strictest
	// filter; without a location cue the strong filter degenerates to the
	// base filter. The relaxed base tier exists only when a location
	// narrowed the first pass, otherwise the cascade drops straight to the
	// unfiltered tier.
	tiers := []tier{
		{metrics.TierStrong, strong, minScore},
	}
	if parsed.HasLocation() {
		tiers = append(tiers, tier{metrics.TierBase, base, minScore - baseTierRelax})
	}
	tiers = append(tiers, tier{metrics.TierUnfiltered, filter.Expression{}, minScore - unfilteredTierRelax})

	result := Result{Query: parsed, Matches: []domain.Match{}, Tier: metrics.TierEmpty}
	for _, tier := range tiers {
		matches, err := s.searchTier(ctx, vector, tier.filters, tier.minScore, topK)
		if err != nil {
			return Result{}, err
		}
		if len(matches) > 0 {
			result.Matches = matches
			result.Tier = tier.name
			break
		}
	}

	metrics.SearchTierTotal.WithLabelValues(result.Tier).Inc()
	metrics.SearchDuration.Observe(time.Since(start).Seconds())

	s.logger.Debug("search completed",
		zap.String("tier", result.Tier),
		zap.Int("matches", len(result.Matches)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// searchTier runs one KNN pass and keeps matches at or above minScore,
// sorted by descending similarity and capped at MaxResults.
func (s *Service) searchTier(
	ctx context.Context, vector []float32, filters filter.Expression, minScore float64, topK int,
) ([]domain.Match, error) {
	matches, err := s.repo.SearchKNN(ctx, vector, filters, topK)
	if err != nil {
		return nil, fmt.Errorf("search knn: %w", err)
	}

	kept := make([]domain.Match, 0, len(matches))
	for _, m := range matches {
		if m.Score >= minScore {
			kept = append(kept, m)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })

	if len(kept) > s.cfg.MaxResults {
		kept = kept[:s.cfg.MaxResults]
	}
	return kept, nil
}

// baseFilter translates the structured, non-location query fields into
// storage predicates.
func baseFilter(p *query.ParsedQuery) filter.Expression {
	expr := filter.Expression{}
	if p.Operation != "" {
		expr = expr.With(filter.NewMatch("operation", p.Operation))
	}
	if p.Bedrooms != nil {
		expr = expr.With(filter.GTE("bedrooms", float64(*p.Bedrooms)))
	}
	if p.PriceMin != nil || p.PriceMax != nil {
		expr = expr.With(filter.NewRange("price", p.PriceMin, p.PriceMax))
	}
	return expr
}

// strongFilter extends the base filter with the location predicates.
func strongFilter(base filter.Expression, p *query.ParsedQuery) filter.Expression {
	expr := base
	if p.City != "" {
		expr = expr.With(filter.NewMatch("city", p.City))
	}
	if p.Barrio != "" {
		expr = expr.With(filter.NewMatch("barrio", p.Barrio))
	}
	return expr
}
