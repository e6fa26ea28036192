package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"docquery/internal/config"
	"docquery/internal/errs"
	"docquery/internal/index"
	"docquery/internal/models"
	"docquery/internal/store"
)

// axisEmbedder keys a 3-dim vector off topic words so similarity is
// predictable: matching topic scores near 1, mismatching near 0.
type axisEmbedder struct{}

func (axisEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	text = strings.ToLower(text)
	vec := []float32{0.01, 0.01, 0.01}
	if strings.Contains(text, "sky") {
		vec[0] = 1
	}
	if strings.Contains(text, "grass") {
		vec[1] = 1
	}
	if strings.Contains(text, "sea") {
		vec[2] = 1
	}
	return vec, nil
}

// scriptedLLM records prompts and echoes a canned answer.
type scriptedLLM struct {
	calls   int
	prompts []string
	answer  string
	err     error
}

func (s *scriptedLLM) Generate(_ context.Context, _, prompt string) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

func buildIndex(t *testing.T, texts ...string) *index.Index {
	t.Helper()
	vs, err := store.NewChromemStore(&config.StoreConfig{Collection: "test"}, true)
	if err != nil {
		t.Fatal(err)
	}
	var docs []models.Document
	for i, text := range texts {
		docs = append(docs, models.Document{
			ID:       fmt.Sprintf("doc-%d", i+1),
			Path:     fmt.Sprintf("data/doc-%d.txt", i+1),
			Sections: []models.Section{{Text: text, Page: 1}},
		})
	}
	ix, err := index.Build(context.Background(), docs, axisEmbedder{},
		vs, &config.RAGConfig{ChunkSize: 1000, ChunkOverlap: 100, EmbedWorkers: 1})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return ix
}

func TestQueryAnswersFromRelevantChunk(t *testing.T) {
	ix := buildIndex(t, "The sky is blue.", "The grass is green.")
	llm := &scriptedLLM{answer: "The sky is blue."}

	p, err := NewPipeline(ix, llm, Options{TopK: 5, SimilarityCutoff: 0})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.Query(context.Background(), "What color is the sky?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if resp.Content == "" {
		t.Error("expected non-empty synthesized answer")
	}
	found := false
	for _, src := range resp.Sources {
		if strings.Contains(src.Content, "sky") {
			found = true
		}
	}
	if !found {
		t.Errorf("sources should include the sky chunk: %+v", resp.Sources)
	}
	if llm.calls != 1 {
		t.Errorf("compact mode over one batch should make exactly 1 call, made %d", llm.calls)
	}
	if !strings.Contains(llm.prompts[0], "sky is blue") {
		t.Errorf("retrieved context missing from prompt: %q", llm.prompts[0])
	}
}

func TestQueryCutoffExhaustsResults(t *testing.T) {
	ix := buildIndex(t, "The grass is green.")
	llm := &scriptedLLM{answer: "unused"}

	p, err := NewPipeline(ix, llm, Options{TopK: 5, SimilarityCutoff: 0.99})
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Query(context.Background(), "Tell me about the sky")
	if !errs.Is(err, errs.KindNoRelevantContext) {
		t.Fatalf("expected no_relevant_context, got %v", err)
	}
	if llm.calls != 0 {
		t.Errorf("no completion call should happen with empty context, made %d", llm.calls)
	}
}

func TestQueryTopKBoundsSources(t *testing.T) {
	ix := buildIndex(t, "sky one", "sky two", "sky three", "sky four")
	llm := &scriptedLLM{answer: "ok"}

	p, err := NewPipeline(ix, llm, Options{TopK: 2, SimilarityCutoff: 0})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.Query(context.Background(), "sky")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Sources) > 2 {
		t.Fatalf("top_k=2 but got %d sources", len(resp.Sources))
	}
}

func TestQueryDeterministic(t *testing.T) {
	ix := buildIndex(t, "The sky is blue.", "The sea is wide.", "The grass is green.")
	llm := &scriptedLLM{answer: "ok"}
	p, err := NewPipeline(ix, llm, Options{TopK: 3, SimilarityCutoff: 0})
	if err != nil {
		t.Fatal(err)
	}

	first, err := p.Query(context.Background(), "sky")
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Query(context.Background(), "sky")
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Sources) != len(second.Sources) {
		t.Fatalf("source counts differ: %d vs %d", len(first.Sources), len(second.Sources))
	}
	for i := range first.Sources {
		if first.Sources[i].DocumentID != second.Sources[i].DocumentID ||
			first.Sources[i].Score != second.Sources[i].Score {
			t.Errorf("source %d differs between identical queries", i)
		}
	}
}

func TestQueryEmptyText(t *testing.T) {
	ix := buildIndex(t, "anything")
	p, err := NewPipeline(ix, &scriptedLLM{answer: "x"}, Options{TopK: 1, SimilarityCutoff: 0})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Query(context.Background(), "  "); !errs.Is(err, errs.KindRetrieval) {
		t.Fatalf("expected retrieval error for blank query, got %v", err)
	}
}

func TestQuerySynthesisFailure(t *testing.T) {
	ix := buildIndex(t, "The sky is blue.")
	cause := errors.New("rate limited")
	p, err := NewPipeline(ix, &scriptedLLM{err: errs.Wrap(errs.KindSynthesis, cause, "completion call failed")},
		Options{TopK: 1, SimilarityCutoff: 0})
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Query(context.Background(), "sky")
	if !errs.Is(err, errs.KindSynthesis) {
		t.Fatalf("expected synthesis error, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost: %v", err)
	}
}

func TestRefineModeCallsPerChunk(t *testing.T) {
	ix := buildIndex(t, "sky alpha", "sky beta", "sky gamma")
	llm := &scriptedLLM{answer: "refined"}
	p, err := NewPipeline(ix, llm, Options{TopK: 3, SimilarityCutoff: 0, Mode: ModeRefine})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.Query(context.Background(), "sky")
	if err != nil {
		t.Fatal(err)
	}
	if llm.calls != len(resp.Sources) {
		t.Fatalf("refine mode should call once per chunk: %d calls for %d chunks", llm.calls, len(resp.Sources))
	}
}

func TestCompactModeBatchesByBudget(t *testing.T) {
	long := "sky " + strings.Repeat("x", 200)
	ix := buildIndex(t, long, long, long)
	llm := &scriptedLLM{answer: "ok"}
	// Budget fits roughly one chunk per batch: first call answers,
	// the rest refine.
	p, err := NewPipeline(ix, llm, Options{TopK: 3, SimilarityCutoff: 0, ContextBudget: 250})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Query(context.Background(), "sky"); err != nil {
		t.Fatal(err)
	}
	if llm.calls != 3 {
		t.Fatalf("expected 3 calls for 3 over-budget batches, got %d", llm.calls)
	}
}

func TestTreeModeSummarizesThenAnswers(t *testing.T) {
	long := "sky " + strings.Repeat("y", 200)
	ix := buildIndex(t, long, long)
	llm := &scriptedLLM{answer: "summary"}
	p, err := NewPipeline(ix, llm, Options{TopK: 2, SimilarityCutoff: 0, Mode: ModeTree, ContextBudget: 250})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Query(context.Background(), "sky"); err != nil {
		t.Fatal(err)
	}
	// Two batch summaries plus one final answer.
	if llm.calls != 3 {
		t.Fatalf("expected 3 calls (2 summaries + 1 answer), got %d", llm.calls)
	}
}

func TestParseMode(t *testing.T) {
	for s, want := range map[string]SynthesisMode{"": ModeCompact, "compact": ModeCompact, "refine": ModeRefine, "tree": ModeTree} {
		got, err := ParseMode(s)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", s, got, err)
		}
	}
	if _, err := ParseMode("loud"); !errs.Is(err, errs.KindConfig) {
		t.Errorf("expected config error for unknown mode, got %v", err)
	}
}

func TestNewPipelineValidation(t *testing.T) {
	ix := buildIndex(t, "x")
	if _, err := NewPipeline(ix, &scriptedLLM{}, Options{TopK: 0}); !errs.Is(err, errs.KindConfig) {
		t.Errorf("top_k 0 should be rejected, got %v", err)
	}
	if _, err := NewPipeline(ix, &scriptedLLM{}, Options{TopK: 1, SimilarityCutoff: 1.2}); !errs.Is(err, errs.KindConfig) {
		t.Errorf("cutoff 1.2 should be rejected, got %v", err)
	}
}
