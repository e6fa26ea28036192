package embedding

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/sync/errgroup"

	"docquery/internal/config"
	"docquery/internal/errs"
	"docquery/internal/models"
)

// Embedder turns text into a fixed-dimensionality vector. Satisfied
// by langchaingo's EmbedderImpl and by test fakes.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder builds an embedder for the configured provider.
func NewEmbedder(cfg *config.LLMConfig, apiKey string) (Embedder, error) {
	log.Debug().
		Str("provider", cfg.Provider).
		Str("base_url", cfg.BaseURL).
		Str("embedding_model", cfg.Model).
		Msg("Initializing embedder")

	switch cfg.Provider {
	case "ollama":
		return newOllamaEmbedder(cfg)
	default:
		return newOpenAIEmbedder(cfg, apiKey)
	}
}

func newOpenAIEmbedder(cfg *config.LLMConfig, apiKey string) (Embedder, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(apiKey, "Bearer ")),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, errs.Wrap(errs.KindIndexBuild, err, "initializing openai embedder")
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, errs.Wrap(errs.KindIndexBuild, err, "creating embedder")
	}
	return embedder, nil
}

func newOllamaEmbedder(cfg *config.LLMConfig) (Embedder, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, errs.Wrap(errs.KindIndexBuild, err, "initializing ollama embedder")
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, errs.Wrap(errs.KindIndexBuild, err, "creating embedder")
	}
	return embedder, nil
}

// EmbedChunks embeds every chunk through a bounded worker pool. Chunk
// order is preserved in the result. Any failed chunk fails the whole
// batch.
func EmbedChunks(ctx context.Context, embedder Embedder, chunks []models.Chunk, workers int) ([]models.ChunkEmbedding, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}
	if workers < 1 {
		workers = 1
	}

	out := make([]models.ChunkEmbedding, len(chunks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, chunk := range chunks {
		g.Go(func() error {
			vec, err := embedder.EmbedQuery(ctx, chunk.Content)
			if err != nil {
				return errs.Wrap(errs.KindIndexBuild, err, "embedding chunk %d of %q", chunk.ChunkID, chunk.Source)
			}
			if len(vec) == 0 {
				return errs.New(errs.KindIndexBuild, "empty embedding for chunk %d of %q", chunk.ChunkID, chunk.Source)
			}
			out[i] = models.ChunkEmbedding{Chunk: chunk, Embedding: vec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
