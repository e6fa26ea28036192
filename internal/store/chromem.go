package store

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"docquery/internal/config"
	"docquery/internal/errs"
	"docquery/internal/models"
)

const compress = false

// ChromemStore keeps vectors in a chromem-go collection, either
// purely in memory or persisted under a directory.
type ChromemStore struct {
	db            *chromem.DB
	collection    *chromem.Collection
	dbPath        string
	encryptionKey string
}

func NewChromemStore(cfg *config.StoreConfig, inMemory bool) (*ChromemStore, error) {
	var db *chromem.DB
	var err error
	if inMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, compress)
		if err != nil {
			return nil, errs.Wrap(errs.KindIndexBuild, err, "opening vector database at %q", cfg.Path)
		}
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindIndexBuild, err, "creating collection %q", cfg.Collection)
	}

	return &ChromemStore{
		db:            db,
		collection:    collection,
		dbPath:        cfg.Path,
		encryptionKey: cfg.EncryptionKey,
	}, nil
}

func (s *ChromemStore) Upsert(ctx context.Context, chunks []models.ChunkEmbedding) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(chunks))
	for i, ce := range chunks {
		docs[i] = chromem.Document{
			ID:        fmt.Sprintf("%s-%d", ce.DocumentID, ce.ChunkID),
			Content:   ce.Content,
			Embedding: ce.Embedding,
			Metadata: map[string]string{
				"document_id": ce.DocumentID,
				"source":      ce.Source,
				"page":        strconv.Itoa(ce.PageNumber),
				"chunk_id":    strconv.Itoa(ce.ChunkID),
			},
		}
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return errs.Wrap(errs.KindIndexBuild, err, "adding %d documents to collection", len(docs))
	}
	return nil
}

func (s *ChromemStore) Search(ctx context.Context, queryEmbedding []float32, k int) ([]models.ScoredChunk, error) {
	count := s.collection.Count()
	if count == 0 {
		return nil, errs.New(errs.KindRetrieval, "collection %q is empty", s.collection.Name)
	}
	if k > count {
		k = count
	}

	results, err := s.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: queryEmbedding,
		NResults:       k,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindRetrieval, err, "similarity query failed")
	}

	scored := make([]models.ScoredChunk, 0, len(results))
	for _, res := range results {
		page, _ := strconv.Atoi(res.Metadata["page"])
		chunkID, _ := strconv.Atoi(res.Metadata["chunk_id"])
		scored = append(scored, models.ScoredChunk{
			Chunk: models.Chunk{
				Content:    res.Content,
				DocumentID: res.Metadata["document_id"],
				Source:     res.Metadata["source"],
				PageNumber: page,
				ChunkID:    chunkID,
			},
			Score: res.Similarity,
		})
	}
	return scored, nil
}

func (s *ChromemStore) Count(context.Context) (int, error) {
	return s.collection.Count(), nil
}

// Reset drops and recreates the collection so stale chunks from a
// previous run never mix into a fresh build.
func (s *ChromemStore) Reset(context.Context) error {
	name := s.collection.Name
	if err := s.db.DeleteCollection(name); err != nil {
		return errs.Wrap(errs.KindIndexBuild, err, "dropping collection %q", name)
	}
	collection, err := s.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return errs.Wrap(errs.KindIndexBuild, err, "recreating collection %q", name)
	}
	s.collection = collection
	return nil
}

func (s *ChromemStore) Close() error { return nil }

func (s *ChromemStore) exportFile() (string, error) {
	if s.dbPath == "" {
		return "", fmt.Errorf("store path is required for export/import")
	}
	if s.encryptionKey == "" {
		return "", fmt.Errorf("encryption key is required")
	}
	return fmt.Sprintf("%s/%s.chromem", s.dbPath, s.collection.Name), nil
}

// Export writes an in-memory collection to an encrypted file so a
// later run can import it instead of re-embedding.
func (s *ChromemStore) Export(ctx context.Context) error {
	file, err := s.exportFile()
	if err != nil {
		return err
	}
	log.Debug().Str("file", file).Msg("Exporting collection")
	if err := s.db.ExportToFile(file, compress, s.encryptionKey, s.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %v", err)
	}
	return nil
}

// Import loads a previously exported collection file.
func (s *ChromemStore) Import(ctx context.Context) error {
	file, err := s.exportFile()
	if err != nil {
		return err
	}
	log.Debug().Str("file", file).Msg("Importing collection")
	if err := s.db.ImportFromFile(file, s.encryptionKey); err != nil {
		return fmt.Errorf("failed to import database: %v", err)
	}
	// The import replaces the collection inside the DB; re-resolve it
	// so reads see the imported chunks.
	collection, err := s.db.GetOrCreateCollection(s.collection.Name, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to reopen imported collection: %v", err)
	}
	s.collection = collection
	return nil
}
