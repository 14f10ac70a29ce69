// Package listing stores property listings and their vectors as Redis hashes
// covered by a single FT index.
package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/habita-labs/habita/internal/db"
	"github.com/habita-labs/habita/internal/domain"
)

// store is the consumer interface for listings (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	IndexInfo(ctx context.Context, name string) (*db.IndexInfo, error)
}

// Config holds the index layout for the listing repository.
type Config struct {
	KeyPrefix       string // e.g. "habita:listing:"
	VectorDim       int
	HNSWM           int
	HNSWEFConstruct int
	ReadyTimeout    time.Duration
}

// Repo implements listing persistence over a hash store with an FT index.
type Repo struct {
	store store
	cfg   Config
}

// New creates a listing repository.
func New(s store, cfg Config) *Repo {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = time.Minute
	}
	return &Repo{store: s, cfg: cfg}
}

// IndexName returns the FT index covering the listing key prefix.
func (r *Repo) IndexName() string {
	return r.cfg.KeyPrefix + "idx"
}

// Upsert writes a single listing hash. Returns true if the key was created.
func (r *Repo) Upsert(ctx context.Context, s domain.EmbeddedListing) (bool, error) {
	if err := r.checkVector(s.Vector); err != nil {
		return false, err
	}
	key := r.key(s.Listing.ID)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check exists %s: %w", key, err)
	}

	if err := r.store.HSet(ctx, key, buildHashFields(&s.Listing, s.Vector)); err != nil {
		return false, fmt.Errorf("hset %s: %w", key, err)
	}
	return !exists, nil
}

// UpsertBatch writes many listings in one pipelined round trip.
func (r *Repo) UpsertBatch(ctx context.Context, batch []domain.EmbeddedListing) error {
	if len(batch) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, 0, len(batch))
	for i := range batch {
		s := &batch[i]
		if err := r.checkVector(s.Vector); err != nil {
			return fmt.Errorf("listing %s: %w", s.Listing.ID, err)
		}
		items = append(items, db.HashSetItem{
			Key:    r.key(s.Listing.ID),
			Fields: buildHashFields(&s.Listing, s.Vector),
		})
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("hset batch of %d: %w", len(items), err)
	}
	return nil
}

// Get returns a listing and its stored vector by ID.
func (r *Repo) Get(ctx context.Context, id string) (domain.Listing, []float32, error) {
	key := r.key(id)
	fields, err := r.store.HGetAll(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.Listing{}, nil, domain.ErrListingNotFound
		}
		return domain.Listing{}, nil, fmt.Errorf("hgetall %s: %w", key, err)
	}
	if len(fields) == 0 {
		return domain.Listing{}, nil, domain.ErrListingNotFound
	}
	l, vec := parseHashFields(id, fields)
	return l, vec, nil
}

// Delete removes a listing.
func (r *Repo) Delete(ctx context.Context, id string) error {
	key := r.key(id)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", key, err)
	}
	if !exists {
		return domain.ErrListingNotFound
	}

	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// EnsureIndex creates the listing index if it does not exist and waits
// until the server reports it. Readiness is queried, never assumed from
// the create reply.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	name := r.IndexName()

	exists, err := r.store.IndexExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", name, err)
	}

	if !exists {
		err := r.store.CreateIndex(ctx, r.indexDefinition())
		if err != nil && !errors.Is(err, db.ErrIndexExists) {
			return fmt.Errorf("create index %s: %w", name, err)
		}
		return r.waitForIndex(ctx, name)
	}

	// A pre-existing index must carry the active provider's vector width,
	// otherwise every KNN query would fail at search time.
	info, err := r.store.IndexInfo(ctx, name)
	if err != nil {
		return fmt.Errorf("inspect index %s: %w", name, err)
	}
	if info.VectorDim > 0 && info.VectorDim != r.cfg.VectorDim {
		return fmt.Errorf("index %s has vector dim %d, provider produces %d: %w",
			name, info.VectorDim, r.cfg.VectorDim, domain.ErrDimensionMismatch)
	}
	return nil
}

// DropIndex removes the listing index so the next EnsureIndex rebuilds it.
// An absent index is not an error.
func (r *Repo) DropIndex(ctx context.Context) error {
	if err := r.store.DropIndex(ctx, r.IndexName()); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index %s: %w", r.IndexName(), err)
	}
	return nil
}

func (r *Repo) waitForIndex(ctx context.Context, name string) error {
	deadline := time.Now().Add(r.cfg.ReadyTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		exists, err := r.store.IndexExists(ctx, name)
		if err == nil && exists {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("index %s: %w", name, domain.ErrIndexNotReady)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Repo) indexDefinition() *db.IndexDefinition {
	return &db.IndexDefinition{
		Name:     r.IndexName(),
		Prefixes: []string{r.cfg.KeyPrefix},
		Fields: []db.IndexField{
			{Name: "operation", Type: db.IndexFieldTag},
			{Name: "city", Type: db.IndexFieldTag},
			{Name: "barrio", Type: db.IndexFieldTag},
			{Name: "bedrooms", Type: db.IndexFieldNumeric},
			{Name: "price", Type: db.IndexFieldNumeric},
			{
				Name:              "vector",
				Type:              db.IndexFieldVector,
				VectorDim:         r.cfg.VectorDim,
				VectorDistance:    db.DistanceCosine,
				VectorM:           r.cfg.HNSWM,
				VectorEFConstruct: r.cfg.HNSWEFConstruct,
			},
		},
	}
}

func (r *Repo) key(id string) string {
	return r.cfg.KeyPrefix + id
}

// ExtractID strips the key prefix from a raw Redis key.
func (r *Repo) ExtractID(key string) string {
	return strings.TrimPrefix(key, r.cfg.KeyPrefix)
}

func (r *Repo) checkVector(vec []float32) error {
	if len(vec) != r.cfg.VectorDim {
		return fmt.Errorf("vector has %d dimensions, index expects %d: %w",
			len(vec), r.cfg.VectorDim, domain.ErrDimensionMismatch)
	}
	return nil
}
