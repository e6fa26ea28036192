package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"docquery/internal/errs"
	"docquery/internal/index"
	"docquery/internal/llmservice"
	"docquery/internal/models"
)

// SynthesisMode selects how retrieved chunks are turned into one
// answer.
type SynthesisMode int

const (
	// ModeCompact packs chunks into the fewest prompts that fit the
	// context budget, refining the answer across prompts. The default:
	// fewest provider calls at the cost of some per-chunk attention.
	ModeCompact SynthesisMode = iota
	// ModeRefine makes one call per chunk, refining the running answer.
	ModeRefine
	// ModeTree summarizes chunk batches, then answers over the
	// combined summaries.
	ModeTree
)

func (m SynthesisMode) String() string {
	switch m {
	case ModeRefine:
		return "refine"
	case ModeTree:
		return "tree"
	default:
		return "compact"
	}
}

// ParseMode converts a config string into a synthesis mode.
func ParseMode(s string) (SynthesisMode, error) {
	switch s {
	case "compact", "":
		return ModeCompact, nil
	case "refine":
		return ModeRefine, nil
	case "tree":
		return ModeTree, nil
	default:
		return ModeCompact, errs.New(errs.KindConfig, "unknown synthesis_mode %q", s)
	}
}

// Options bound retrieval and synthesis for a pipeline.
type Options struct {
	TopK             int
	SimilarityCutoff float32
	Mode             SynthesisMode
	// ContextBudget caps the characters of chunk text per prompt.
	ContextBudget int
}

// Pipeline answers queries against a built index. Safe for concurrent
// use; each query embeds its own text and shares no mutable state.
type Pipeline struct {
	index *index.Index
	llm   llmservice.Generator
	opts  Options
}

func NewPipeline(ix *index.Index, llm llmservice.Generator, opts Options) (*Pipeline, error) {
	if opts.TopK < 1 {
		return nil, errs.New(errs.KindConfig, "top_k must be positive, got %d", opts.TopK)
	}
	if opts.SimilarityCutoff < 0 || opts.SimilarityCutoff > 1 {
		return nil, errs.New(errs.KindConfig, "similarity_cutoff must be in [0,1], got %g", opts.SimilarityCutoff)
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = 12000
	}
	return &Pipeline{index: ix, llm: llm, opts: opts}, nil
}

// Query retrieves the top-k chunks, drops those under the similarity
// cutoff and synthesizes an answer from the survivors.
func (p *Pipeline) Query(ctx context.Context, query string) (*models.Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errs.New(errs.KindRetrieval, "query text is empty")
	}

	hits, err := p.index.Retrieve(ctx, query, p.opts.TopK)
	if err != nil {
		return nil, err
	}

	// Cutoff applies after top-k truncation, so len(hits) <= top_k
	// holds even before filtering.
	kept := make([]models.ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		if hit.Score >= p.opts.SimilarityCutoff {
			kept = append(kept, hit)
		}
	}
	log.Debug().
		Int("retrieved", len(hits)).
		Int("kept", len(kept)).
		Float32("cutoff", p.opts.SimilarityCutoff).
		Msg("Filtered retrieval results")

	if len(kept) == 0 {
		return nil, errs.New(errs.KindNoRelevantContext,
			"no chunk scored above cutoff %g for query %q", p.opts.SimilarityCutoff, query)
	}

	var content string
	switch p.opts.Mode {
	case ModeRefine:
		content, err = p.synthesizeRefine(ctx, query, kept)
	case ModeTree:
		content, err = p.synthesizeTree(ctx, query, kept)
	default:
		content, err = p.synthesizeCompact(ctx, query, kept)
	}
	if err != nil {
		return nil, err
	}

	return &models.Response{Query: query, Content: content, Sources: kept}, nil
}

// synthesizeCompact concatenates chunks into the fewest prompts that
// fit the budget. A single batch is one completion call; additional
// batches refine the running answer.
func (p *Pipeline) synthesizeCompact(ctx context.Context, query string, chunks []models.ScoredChunk) (string, error) {
	batches := packChunks(chunks, p.opts.ContextBudget)

	answer, err := p.llm.Generate(ctx, models.SystemPrompt,
		fmt.Sprintf(models.AnswerPromptTemplate, batches[0], query))
	if err != nil {
		return "", err
	}
	for _, batch := range batches[1:] {
		answer, err = p.llm.Generate(ctx, models.SystemPrompt,
			fmt.Sprintf(models.RefinePromptTemplate, query, answer, batch))
		if err != nil {
			return "", err
		}
	}
	return answer, nil
}

// synthesizeRefine walks the chunks one at a time, refining the
// answer at each step.
func (p *Pipeline) synthesizeRefine(ctx context.Context, query string, chunks []models.ScoredChunk) (string, error) {
	answer, err := p.llm.Generate(ctx, models.SystemPrompt,
		fmt.Sprintf(models.AnswerPromptTemplate, chunkText(chunks[0]), query))
	if err != nil {
		return "", err
	}
	for _, chunk := range chunks[1:] {
		answer, err = p.llm.Generate(ctx, models.SystemPrompt,
			fmt.Sprintf(models.RefinePromptTemplate, query, answer, chunkText(chunk)))
		if err != nil {
			return "", err
		}
	}
	return answer, nil
}

// synthesizeTree summarizes each batch, then answers over the joined
// summaries.
func (p *Pipeline) synthesizeTree(ctx context.Context, query string, chunks []models.ScoredChunk) (string, error) {
	batches := packChunks(chunks, p.opts.ContextBudget)
	if len(batches) == 1 {
		return p.llm.Generate(ctx, models.SystemPrompt,
			fmt.Sprintf(models.AnswerPromptTemplate, batches[0], query))
	}

	summaries := make([]string, 0, len(batches))
	for _, batch := range batches {
		summary, err := p.llm.Generate(ctx, models.SystemPrompt,
			fmt.Sprintf(models.SummarizePromptTemplate, query, batch))
		if err != nil {
			return "", err
		}
		summaries = append(summaries, summary)
	}
	return p.llm.Generate(ctx, models.SystemPrompt,
		fmt.Sprintf(models.AnswerPromptTemplate, strings.Join(summaries, "\n\n"), query))
}

// packChunks groups chunk texts into batches no larger than budget
// characters. A chunk bigger than the budget becomes its own batch.
func packChunks(chunks []models.ScoredChunk, budget int) []string {
	var batches []string
	var batch strings.Builder
	for _, chunk := range chunks {
		text := chunkText(chunk)
		if batch.Len() > 0 && batch.Len()+len(text) > budget {
			batches = append(batches, batch.String())
			batch.Reset()
		}
		batch.WriteString(text)
		batch.WriteString("\n\n")
	}
	if batch.Len() > 0 {
		batches = append(batches, batch.String())
	}
	return batches
}

func chunkText(chunk models.ScoredChunk) string {
	return fmt.Sprintf("[%s p.%d]\n%s", chunk.Source, chunk.PageNumber, chunk.Content)
}
