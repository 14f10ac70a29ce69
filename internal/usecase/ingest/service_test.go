package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/habita-labs/habita/internal/domain"
)

type mockRepo struct {
	upsertFn      func(ctx context.Context, batch []domain.EmbeddedListing) error
	ensureIndexFn func(ctx context.Context) error
	batches       [][]domain.EmbeddedListing
	indexCalls    int
}

func (m *mockRepo) UpsertBatch(ctx context.Context, batch []domain.EmbeddedListing) error {
	m.batches = append(m.batches, batch)
	if m.upsertFn != nil {
		return m.upsertFn(ctx, batch)
	}
	return nil
}

func (m *mockRepo) EnsureIndex(ctx context.Context) error {
	m.indexCalls++
	if m.ensureIndexFn != nil {
		return m.ensureIndexFn(ctx)
	}
	return nil
}

type mockEmbedder struct {
	embedAllFn func(ctx context.Context, texts []string) ([][]float32, error)
	texts      []string
}

func (m *mockEmbedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	m.texts = texts
	if m.embedAllFn != nil {
		return m.embedAllFn(ctx, texts)
	}
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = []float32{float32(i)}
	}
	return vecs, nil
}

func newTestService() (*Service, *mockRepo, *mockEmbedder) {
	repo := &mockRepo{}
	embed := &mockEmbedder{}
	return New(repo, embed, zap.NewNop()), repo, embed
}

func TestIngest(t *testing.T) {
	svc, repo, embed := newTestService()

	listings := []domain.Listing{
		{Title: "depto luminoso", Operation: "rent", Price: 250000, Address: "Av. Santa Fe 3200, Palermo, CABA", Bedrooms: 2},
		{ID: "given-id", Title: "casa en Mar del Plata", Operation: "sale", Price: 90000},
	}

	report, err := svc.Ingest(context.Background(), listings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Ingested != 2 {
		t.Errorf("ingested = %d, want 2", report.Ingested)
	}
	if repo.indexCalls != 1 {
		t.Errorf("EnsureIndex called %d times, want 1", repo.indexCalls)
	}
	if len(repo.batches) != 1 || len(repo.batches[0]) != 2 {
		t.Fatalf("batches = %v", repo.batches)
	}

	first := repo.batches[0][0].Listing
	if first.ID == "" {
		t.Error("missing ID should be assigned")
	}
	if first.City != "caba" || first.Barrio != "palermo" {
		t.Errorf("location = %q/%q, want caba/palermo from address", first.City, first.Barrio)
	}

	second := repo.batches[0][1].Listing
	if second.ID != "given-id" {
		t.Errorf("explicit ID replaced: %s", second.ID)
	}
	// City inferred from the title since the address is empty.
	if second.City != "mar del plata" {
		t.Errorf("city = %q, want mar del plata from title", second.City)
	}
	if report.IDs[1] != "given-id" {
		t.Errorf("ids = %v", report.IDs)
	}

	// Chunks carry the rendered listing text.
	if !strings.Contains(embed.texts[0], "title: depto luminoso") {
		t.Errorf("chunk = %q", embed.texts[0])
	}
	// Vectors stay aligned with their listings.
	if repo.batches[0][1].Vector[0] != 1 {
		t.Errorf("vector misaligned: %v", repo.batches[0][1].Vector)
	}
}

func TestIngest_KeepsExplicitLocation(t *testing.T) {
	svc, repo, _ := newTestService()

	listings := []domain.Listing{
		{Title: "depto en Palermo", Operation: "rent", Price: 1, City: "cordoba"},
	}
	if _, err := svc.Ingest(context.Background(), listings); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := repo.batches[0][0].Listing
	if got.City != "cordoba" {
		t.Errorf("city = %q, explicit value should win", got.City)
	}
}

func TestIngest_Empty(t *testing.T) {
	svc, repo, _ := newTestService()
	report, err := svc.Ingest(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Ingested != 0 {
		t.Errorf("ingested = %d, want 0", report.Ingested)
	}
	if repo.indexCalls != 0 {
		t.Error("EnsureIndex should not run for empty input")
	}
}

func TestIngest_EmbedFailure(t *testing.T) {
	svc, repo, embed := newTestService()
	embed.embedAllFn = func(_ context.Context, _ []string) ([][]float32, error) {
		return nil, errors.New("provider down")
	}

	_, err := svc.Ingest(context.Background(), []domain.Listing{{Title: "x", Operation: "rent", Price: 1}})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(repo.batches) != 0 {
		t.Error("nothing should be persisted when embedding fails")
	}
}

func TestIngest_IndexFailure(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.ensureIndexFn = func(_ context.Context) error {
		return domain.ErrIndexNotReady
	}

	_, err := svc.Ingest(context.Background(), []domain.Listing{{Title: "x", Operation: "rent", Price: 1}})
	if !errors.Is(err, domain.ErrIndexNotReady) {
		t.Fatalf("error = %v, want ErrIndexNotReady", err)
	}
}
