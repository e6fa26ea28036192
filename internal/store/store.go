package store

import (
	"context"

	"docquery/internal/config"
	"docquery/internal/errs"
	"docquery/internal/models"
)

// VectorStore holds embedded chunks and finds nearest neighbors for a
// query vector. Scores are cosine similarity in [0,1], descending.
type VectorStore interface {
	Upsert(ctx context.Context, chunks []models.ChunkEmbedding) error
	Search(ctx context.Context, queryEmbedding []float32, k int) ([]models.ScoredChunk, error)
	Count(ctx context.Context) (int, error)
	// Reset drops any chunks left from a previous run so a build
	// starts from an empty store.
	Reset(ctx context.Context) error
	Close() error
}

// New builds the configured store backend.
func New(cfg *config.StoreConfig) (VectorStore, error) {
	var vs VectorStore
	var err error
	switch cfg.Backend {
	case "memory":
		vs, err = NewChromemStore(cfg, true)
	case "chromem":
		vs, err = NewChromemStore(cfg, false)
	case "postgres":
		vs, err = NewPostgresStore(cfg)
	default:
		return nil, errs.New(errs.KindConfig, "unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return vs, nil
}
