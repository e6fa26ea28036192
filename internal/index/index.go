package index

import (
	"context"

	"github.com/rs/zerolog/log"

	"docquery/internal/config"
	"docquery/internal/embedding"
	"docquery/internal/errs"
	"docquery/internal/models"
	"docquery/internal/parser"
	"docquery/internal/store"
)

// Index is a built vector index over a document set. Read-only after
// Build; safe for concurrent retrieval.
type Index struct {
	store    store.VectorStore
	embedder embedding.Embedder
	chunks   int
}

// Build splits the documents into chunks, embeds every chunk and
// loads the store. On success the index is immediately queryable.
func Build(ctx context.Context, docs []models.Document, embedder embedding.Embedder, vs store.VectorStore, cfg *config.RAGConfig) (*Index, error) {
	if len(docs) == 0 {
		return nil, errs.New(errs.KindIndexBuild, "no documents to index")
	}

	splitter := parser.Splitter{ChunkSize: cfg.ChunkSize, ChunkOverlap: cfg.ChunkOverlap}
	var chunks []models.Chunk
	for _, doc := range docs {
		chunks = append(chunks, splitter.Split(doc)...)
	}
	if len(chunks) == 0 {
		return nil, errs.New(errs.KindIndexBuild, "documents produced no chunks")
	}
	log.Info().Int("documents", len(docs)).Int("chunks", len(chunks)).Msg("Split documents")

	embedded, err := embedding.EmbedChunks(ctx, embedder, chunks, cfg.EmbedWorkers)
	if err != nil {
		return nil, err
	}

	// Rebuild-from-scratch: chunks from a previous run must not
	// survive into this index.
	if err := vs.Reset(ctx); err != nil {
		return nil, err
	}
	if err := vs.Upsert(ctx, embedded); err != nil {
		return nil, err
	}
	log.Info().Int("chunks", len(embedded)).Msg("Index built")

	return &Index{store: vs, embedder: embedder, chunks: len(embedded)}, nil
}

// Open wraps an already-populated store, for stores that persist
// across runs.
func Open(ctx context.Context, embedder embedding.Embedder, vs store.VectorStore) (*Index, error) {
	count, err := vs.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, errs.New(errs.KindIndexBuild, "store holds no chunks")
	}
	return &Index{store: vs, embedder: embedder, chunks: count}, nil
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int { return ix.chunks }

// Retrieve embeds the query text and returns the top-k nearest
// chunks, scores descending.
func (ix *Index) Retrieve(ctx context.Context, query string, k int) ([]models.ScoredChunk, error) {
	vec, err := ix.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.KindRetrieval, err, "embedding query")
	}
	return ix.store.Search(ctx, vec, k)
}
