package listing

import (
	"context"
	"errors"
	"testing"

	"github.com/habita-labs/habita/internal/db"
	"github.com/habita-labs/habita/internal/domain"
)

// --- Upsert ---

func TestUpsert_Create(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()
	s := testListing(t)

	ms.existsFn = func(_ context.Context, key string) (bool, error) {
		if key != "habita:listing:l-1" {
			t.Errorf("unexpected key: %s", key)
		}
		return false, nil
	}
	ms.hsetFn = func(_ context.Context, key string, fields map[string]string) error {
		if key != "habita:listing:l-1" {
			t.Errorf("unexpected key: %s", key)
		}
		if fields["operation"] != "rent" {
			t.Errorf("operation = %q, want rent", fields["operation"])
		}
		if fields["bedrooms"] != "2" {
			t.Errorf("bedrooms = %q, want 2", fields["bedrooms"])
		}
		if fields["price"] != "250000" {
			t.Errorf("price = %q, want 250000", fields["price"])
		}
		if len(fields["vector"]) != 16 {
			t.Errorf("vector blob length = %d, want 16", len(fields["vector"]))
		}
		return nil
	}

	created, err := repo.Upsert(ctx, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected created=true for new listing")
	}
}

func TestUpsert_Update(t *testing.T) {
	repo, ms := newTestRepo(t)
	s := testListing(t)

	ms.existsFn = func(_ context.Context, _ string) (bool, error) { return true, nil }

	created, err := repo.Upsert(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatal("expected created=false for existing listing")
	}
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	repo, _ := newTestRepo(t)
	s := testListing(t)
	s.Vector = []float32{0.1, 0.2}

	_, err := repo.Upsert(context.Background(), s)
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("error = %v, want ErrDimensionMismatch", err)
	}
}

// --- UpsertBatch ---

func TestUpsertBatch(t *testing.T) {
	repo, ms := newTestRepo(t)

	first := testListing(t)
	second := testListing(t)
	second.Listing.ID = "l-2"
	second.Listing.Operation = domain.OperationSale

	var got []db.HashSetItem
	ms.hsetMultiFn = func(_ context.Context, items []db.HashSetItem) error {
		got = items
		return nil
	}

	if err := repo.UpsertBatch(context.Background(), []domain.EmbeddedListing{first, second}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("pipelined %d items, want 2", len(got))
	}
	if got[0].Key != "habita:listing:l-1" || got[1].Key != "habita:listing:l-2" {
		t.Errorf("keys = %s, %s", got[0].Key, got[1].Key)
	}
	if got[1].Fields["operation"] != "sale" {
		t.Errorf("second operation = %q, want sale", got[1].Fields["operation"])
	}
}

func TestUpsertBatch_Empty(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hsetMultiFn = func(_ context.Context, _ []db.HashSetItem) error {
		t.Fatal("HSetMulti should not be called for empty batch")
		return nil
	}
	if err := repo.UpsertBatch(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- Get ---

func TestGet(t *testing.T) {
	repo, ms := newTestRepo(t)
	s := testListing(t)

	ms.hgetAllFn = func(_ context.Context, key string) (map[string]string, error) {
		if key != "habita:listing:l-1" {
			t.Errorf("unexpected key: %s", key)
		}
		return buildHashFields(&s.Listing, s.Vector), nil
	}

	got, vec, err := repo.Get(context.Background(), "l-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Title != s.Listing.Title || got.Operation != "rent" || got.Bedrooms != 2 {
		t.Errorf("listing = %+v", got)
	}
	if got.Price != 250000 {
		t.Errorf("price = %g, want 250000", got.Price)
	}
	if len(vec) != 4 || vec[2] != s.Vector[2] {
		t.Errorf("vector = %v", vec)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hgetAllFn = func(_ context.Context, _ string) (map[string]string, error) {
		return nil, db.ErrKeyNotFound
	}
	_, _, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrListingNotFound) {
		t.Fatalf("error = %v, want ErrListingNotFound", err)
	}
}

func TestGet_EmptyHash(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hgetAllFn = func(_ context.Context, _ string) (map[string]string, error) {
		return map[string]string{}, nil
	}
	_, _, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrListingNotFound) {
		t.Fatalf("error = %v, want ErrListingNotFound", err)
	}
}

// --- Delete ---

func TestDelete_NotFound(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.existsFn = func(_ context.Context, _ string) (bool, error) { return false, nil }
	err := repo.Delete(context.Background(), "missing")
	if !errors.Is(err, domain.ErrListingNotFound) {
		t.Fatalf("error = %v, want ErrListingNotFound", err)
	}
}

// --- EnsureIndex ---

func TestEnsureIndex_Creates(t *testing.T) {
	repo, ms := newTestRepo(t)

	calls := 0
	ms.indexExistsFn = func(_ context.Context, name string) (bool, error) {
		if name != "habita:listing:idx" {
			t.Errorf("index name = %s", name)
		}
		calls++
		return calls > 1, nil // missing on first check, ready afterwards
	}
	var created *db.IndexDefinition
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		created = def
		return nil
	}

	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil {
		t.Fatal("expected CreateIndex call")
	}
	if created.Fields[len(created.Fields)-1].VectorDim != 4 {
		t.Errorf("vector dim = %d, want 4", created.Fields[len(created.Fields)-1].VectorDim)
	}
	if got := created.Prefixes[0]; got != "habita:listing:" {
		t.Errorf("prefix = %s", got)
	}
}

func TestEnsureIndex_AlreadyExists(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.indexExistsFn = func(_ context.Context, _ string) (bool, error) { return true, nil }
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error {
		t.Fatal("CreateIndex should not be called when index exists")
		return nil
	}

	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureIndex_ConcurrentCreateTolerated(t *testing.T) {
	repo, ms := newTestRepo(t)

	calls := 0
	ms.indexExistsFn = func(_ context.Context, _ string) (bool, error) {
		calls++
		return calls > 1, nil
	}
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error {
		return db.ErrIndexExists
	}

	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureIndex_ExistingDimMismatch(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.indexExistsFn = func(_ context.Context, _ string) (bool, error) { return true, nil }
	ms.indexInfoFn = func(_ context.Context, _ string) (*db.IndexInfo, error) {
		return &db.IndexInfo{VectorDim: 1536}, nil
	}

	err := repo.EnsureIndex(context.Background())
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("error = %v, want ErrDimensionMismatch", err)
	}
}

func TestEnsureIndex_ExistingDimUnreported(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.indexExistsFn = func(_ context.Context, _ string) (bool, error) { return true, nil }
	ms.indexInfoFn = func(_ context.Context, _ string) (*db.IndexInfo, error) {
		return &db.IndexInfo{}, nil
	}

	// Older servers omit per-attribute parameters; cannot verify, accept.
	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- DropIndex ---

func TestDropIndex(t *testing.T) {
	repo, ms := newTestRepo(t)

	var dropped string
	ms.dropIndexFn = func(_ context.Context, name string) error {
		dropped = name
		return nil
	}

	if err := repo.DropIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dropped != "habita:listing:idx" {
		t.Errorf("dropped %q", dropped)
	}
}

func TestDropIndex_AbsentTolerated(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.dropIndexFn = func(_ context.Context, _ string) error {
		return db.ErrIndexNotFound
	}

	if err := repo.DropIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDropIndex_Error(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.dropIndexFn = func(_ context.Context, _ string) error {
		return errors.New("connection reset")
	}

	if err := repo.DropIndex(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

// --- round trip ---

func TestHashFields_RoundTrip(t *testing.T) {
	s := testListing(t)
	fields := buildHashFields(&s.Listing, s.Vector)

	got, vec := parseHashFields("l-1", fields)
	if got != s.Listing {
		t.Errorf("listing round trip: got %+v want %+v", got, s.Listing)
	}
	for i := range vec {
		if vec[i] != s.Vector[i] {
			t.Errorf("vector[%d] = %g, want %g", i, vec[i], s.Vector[i])
		}
	}
}

func TestBuildHashFields_OmitsEmpty(t *testing.T) {
	l := domain.Listing{ID: "x", Title: "t", Operation: "sale", Price: 1}
	fields := buildHashFields(&l, []float32{0})
	for _, k := range []string{"address", "bedrooms", "bathrooms", "description", "city", "barrio"} {
		if _, ok := fields[k]; ok {
			t.Errorf("field %q should be omitted when empty", k)
		}
	}
}
