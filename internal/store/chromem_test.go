package store

import (
	"context"
	"testing"

	"docquery/internal/config"
	"docquery/internal/errs"
	"docquery/internal/models"
)

func newMemoryStore(t *testing.T) *ChromemStore {
	t.Helper()
	s, err := NewChromemStore(&config.StoreConfig{Collection: "test"}, true)
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	return s
}

func embedded(id string, chunkID int, content string, vec []float32) models.ChunkEmbedding {
	return models.ChunkEmbedding{
		Chunk: models.Chunk{
			Content:    content,
			DocumentID: id,
			Source:     "data/" + id + ".txt",
			PageNumber: 1,
			ChunkID:    chunkID,
		},
		Embedding: vec,
	}
}

func TestChromemUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)

	err := s.Upsert(ctx, []models.ChunkEmbedding{
		embedded("a", 1, "the sky is blue", []float32{1, 0, 0}),
		embedded("b", 1, "grass is green", []float32{0, 1, 0}),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	count, _ := s.Count(ctx)
	if count != 2 {
		t.Fatalf("expected 2 stored chunks, got %d", count)
	}

	hits, err := s.Search(ctx, []float32{0.9, 0.1, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].DocumentID != "a" {
		t.Errorf("expected nearest chunk from document a, got %q", hits[0].DocumentID)
	}
	if hits[0].Source != "data/a.txt" || hits[0].PageNumber != 1 || hits[0].ChunkID != 1 {
		t.Errorf("metadata not round-tripped: %+v", hits[0].Chunk)
	}
}

func TestChromemSearchClampsK(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)
	if err := s.Upsert(ctx, []models.ChunkEmbedding{
		embedded("a", 1, "one", []float32{1, 0, 0}),
		embedded("a", 2, "two", []float32{0, 1, 0}),
	}); err != nil {
		t.Fatal(err)
	}

	hits, err := s.Search(ctx, []float32{1, 0, 0}, 50)
	if err != nil {
		t.Fatalf("Search with oversized k: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected all 2 chunks, got %d", len(hits))
	}
}

func TestChromemSearchDeterministic(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)
	if err := s.Upsert(ctx, []models.ChunkEmbedding{
		embedded("a", 1, "one", []float32{1, 0, 0}),
		embedded("b", 1, "two", []float32{0.7, 0.7, 0}),
		embedded("c", 1, "three", []float32{0, 0, 1}),
	}); err != nil {
		t.Fatal(err)
	}

	query := []float32{0.8, 0.2, 0}
	first, err := s.Search(ctx, query, 3)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Search(ctx, query, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("result counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].DocumentID != second[i].DocumentID || first[i].Score != second[i].Score {
			t.Errorf("position %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
	for i := 1; i < len(first); i++ {
		if first[i].Score > first[i-1].Score {
			t.Errorf("scores not descending at %d", i)
		}
	}
}

func TestChromemSearchEmptyCollection(t *testing.T) {
	s := newMemoryStore(t)
	_, err := s.Search(context.Background(), []float32{1, 0, 0}, 5)
	if !errs.Is(err, errs.KindRetrieval) {
		t.Fatalf("expected retrieval error on empty collection, got %v", err)
	}
}

func TestChromemResetClearsChunks(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)
	if err := s.Upsert(ctx, []models.ChunkEmbedding{
		embedded("old-a", 1, "stale one", []float32{1, 0, 0}),
		embedded("old-b", 1, "stale two", []float32{0, 1, 0}),
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	count, _ := s.Count(ctx)
	if count != 0 {
		t.Fatalf("expected empty store after reset, got %d chunks", count)
	}

	// The store stays usable after a reset.
	if err := s.Upsert(ctx, []models.ChunkEmbedding{
		embedded("new", 1, "fresh", []float32{1, 0, 0}),
	}); err != nil {
		t.Fatalf("Upsert after reset: %v", err)
	}
	hits, err := s.Search(ctx, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search after reset: %v", err)
	}
	for _, hit := range hits {
		if hit.DocumentID == "old-a" || hit.DocumentID == "old-b" {
			t.Errorf("stale chunk survived reset: %+v", hit.Chunk)
		}
	}
}

func TestChromemExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := &config.StoreConfig{
		Collection:    "roundtrip",
		Path:          t.TempDir(),
		EncryptionKey: "0123456789abcdef0123456789abcdef",
	}

	src, err := NewChromemStore(cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Upsert(ctx, []models.ChunkEmbedding{
		embedded("a", 1, "the sky is blue", []float32{1, 0, 0}),
		embedded("b", 1, "grass is green", []float32{0, 1, 0}),
	}); err != nil {
		t.Fatal(err)
	}
	if err := src.Export(ctx); err != nil {
		t.Fatalf("Export: %v", err)
	}

	dst, err := NewChromemStore(cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := dst.Import(ctx); err != nil {
		t.Fatalf("Import: %v", err)
	}
	count, _ := dst.Count(ctx)
	if count != 2 {
		t.Fatalf("expected 2 chunks after import, got %d", count)
	}
	hits, err := dst.Search(ctx, []float32{0.9, 0.1, 0}, 1)
	if err != nil {
		t.Fatalf("Search after import: %v", err)
	}
	if len(hits) != 1 || hits[0].DocumentID != "a" {
		t.Fatalf("imported index does not retrieve: %+v", hits)
	}
}

func TestChromemExportRequiresPathAndKey(t *testing.T) {
	ctx := context.Background()

	noPath, err := NewChromemStore(&config.StoreConfig{Collection: "x", EncryptionKey: "k"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := noPath.Export(ctx); err == nil {
		t.Error("export with empty path should fail, not write at filesystem root")
	}
	if err := noPath.Import(ctx); err == nil {
		t.Error("import with empty path should fail")
	}

	noKey, err := NewChromemStore(&config.StoreConfig{Collection: "x", Path: t.TempDir()}, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := noKey.Export(ctx); err == nil {
		t.Error("export without encryption key should fail")
	}
}

func TestVectorLiteral(t *testing.T) {
	got := vectorLiteral([]float32{0.5, -1, 2})
	if got != "[0.5,-1,2]" {
		t.Fatalf("got %q", got)
	}
}
