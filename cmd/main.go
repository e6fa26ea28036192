package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"docquery/internal/config"
	"docquery/internal/embedding"
	"docquery/internal/errs"
	"docquery/internal/helper"
	"docquery/internal/index"
	"docquery/internal/ingest"
	"docquery/internal/llmservice"
	"docquery/internal/rag"
	"docquery/internal/store"
)

const defaultConfigPath = "./configs/config.yaml"

type runOptions struct {
	dataDir     string
	query       string
	configPath  string
	topK        int
	cutoff      float32
	mode        string
	dryRun      bool
	exportIndex bool
	importIndex bool
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	dataDir := flag.String("data", "./data", "Directory of documents to index")
	query := flag.String("query", "", "Query to be answered (required unless -dry-run)")
	configPath := flag.String("config", defaultConfigPath, "Path to the config file")
	topK := flag.Int("top-k", 0, "Override top_k candidates retrieved per query")
	cutoff := flag.Float64("cutoff", -1, "Override similarity cutoff in [0,1]")
	mode := flag.String("mode", "", "Synthesis mode: compact, refine or tree")
	dryRun := flag.Bool("dry-run", false, "Load and chunk documents without calling any provider")
	exportIndex := flag.Bool("export", false, "Export the built index to an encrypted file")
	importIndex := flag.Bool("import", false, "Query a previously exported index instead of rebuilding")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	opts := runOptions{
		dataDir:     *dataDir,
		query:       *query,
		configPath:  *configPath,
		topK:        *topK,
		cutoff:      float32(*cutoff),
		mode:        *mode,
		dryRun:      *dryRun,
		exportIndex: *exportIndex,
		importIndex: *importIndex,
	}
	if err := run(context.Background(), opts); err != nil {
		log.Error().Err(err).Msg("docquery failed")
		os.Exit(errs.ExitCode(err))
	}
}

func run(ctx context.Context, opts runOptions) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.topK > 0 {
		cfg.RAG.TopK = opts.topK
	}
	if opts.cutoff >= 0 {
		cfg.RAG.SimilarityCutoff = opts.cutoff
	}
	if opts.mode != "" {
		cfg.RAG.SynthesisMode = opts.mode
	}
	synthesisMode, err := rag.ParseMode(cfg.RAG.SynthesisMode)
	if err != nil {
		return err
	}
	if opts.exportIndex && opts.importIndex {
		return errs.New(errs.KindConfig, "-export and -import are mutually exclusive")
	}
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	if opts.dryRun {
		docs, err := ingest.LoadDocuments(opts.dataDir)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			helper.PrettyPrint(map[string]any{
				"id":       doc.ID,
				"path":     doc.Path,
				"sections": len(doc.Sections),
				"chars":    len(doc.Text()),
			})
		}
		return nil
	}

	if opts.query == "" {
		return errs.New(errs.KindConfig, "a query is required, pass it with -query")
	}

	// Credentials are resolved before any provider client exists.
	llmKey, embedKey, err := config.ResolveCredentials(cfg)
	if err != nil {
		return err
	}

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM, embedKey)
	if err != nil {
		return err
	}

	if cfg.Store.Backend == "chromem" || ((opts.exportIndex || opts.importIndex) && cfg.Store.Path != "") {
		if err := helper.CreateFolder(cfg.Store.Path); err != nil {
			return errs.Wrap(errs.KindIndexBuild, err, "preparing store directory")
		}
	}
	vs, err := store.New(&cfg.Store)
	if err != nil {
		return err
	}
	defer vs.Close()

	var ix *index.Index
	if opts.importIndex {
		cs, ok := vs.(*store.ChromemStore)
		if !ok {
			return errs.New(errs.KindConfig, "import requires the memory or chromem store backend")
		}
		if err := cs.Import(ctx); err != nil {
			return errs.Wrap(errs.KindIndexBuild, err, "importing index")
		}
		ix, err = index.Open(ctx, embedder, vs)
		if err != nil {
			return err
		}
	} else {
		docs, err := ingest.LoadDocuments(opts.dataDir)
		if err != nil {
			return err
		}
		ix, err = index.Build(ctx, docs, embedder, vs, &cfg.RAG)
		if err != nil {
			return err
		}
	}

	if opts.exportIndex {
		cs, ok := vs.(*store.ChromemStore)
		if !ok {
			return errs.New(errs.KindConfig, "export requires the memory or chromem store backend")
		}
		if err := cs.Export(ctx); err != nil {
			return errs.Wrap(errs.KindIndexBuild, err, "exporting index")
		}
	}

	llm, err := llmservice.NewClient(&cfg.LLM, llmKey, cfg.RAG.MaxRetries)
	if err != nil {
		return err
	}

	pipeline, err := rag.NewPipeline(ix, llm, rag.Options{
		TopK:             cfg.RAG.TopK,
		SimilarityCutoff: cfg.RAG.SimilarityCutoff,
		Mode:             synthesisMode,
		ContextBudget:    cfg.RAG.ContextBudget,
	})
	if err != nil {
		return err
	}

	response, err := pipeline.Query(ctx, opts.query)
	if err != nil {
		return err
	}

	fmt.Printf("Query:\n%s\n\n", response.Query)
	fmt.Printf("Sources:\n")
	for _, src := range response.Sources {
		fmt.Printf("  %s p.%d (score %.3f)\n", src.Source, src.PageNumber, src.Score)
	}
	fmt.Printf("\nAnswer:\n%s\n", response.Content)
	return nil
}
