package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"docquery/internal/config"
	"docquery/internal/errs"
	"docquery/internal/models"
)

type chunkRow struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`
	ID            int64   `bun:"id,pk,autoincrement"`
	DocumentID    string  `bun:"document_id,notnull"`
	Source        string  `bun:"source,notnull"`
	Page          int     `bun:"page"`
	ChunkID       int     `bun:"chunk_id"`
	Content       string  `bun:"content,notnull"`
	Embedding     string  `bun:"embedding,notnull"`
	Score         float32 `bun:"score,scanonly"`
}

// PostgresStore keeps vectors in a pgvector table reached through bun.
type PostgresStore struct {
	db         *bun.DB
	vectorSize int
}

func NewPostgresStore(cfg *config.StoreConfig) (*PostgresStore, error) {
	dsn := cfg.DSN
	if !strings.Contains(dsn, "sslmode") {
		dsn += "?sslmode=disable"
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn), pgdriver.WithPassword(cfg.Password)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	s := &PostgresStore{db: db, vectorSize: cfg.VectorSize}
	if err := s.init(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return errs.Wrap(errs.KindIndexBuild, err, "enabling pgvector extension")
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
		id BIGSERIAL PRIMARY KEY,
		document_id TEXT NOT NULL,
		source TEXT NOT NULL,
		page INT,
		chunk_id INT,
		content TEXT NOT NULL,
		embedding vector(%d) NOT NULL
	)`, s.vectorSize)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return errs.Wrap(errs.KindIndexBuild, err, "creating chunks table")
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, chunks []models.ChunkEmbedding) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := make([]chunkRow, len(chunks))
	for i, ce := range chunks {
		rows[i] = chunkRow{
			DocumentID: ce.DocumentID,
			Source:     ce.Source,
			Page:       ce.PageNumber,
			ChunkID:    ce.ChunkID,
			Content:    ce.Content,
			Embedding:  vectorLiteral(ce.Embedding),
		}
	}
	if _, err := s.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return errs.Wrap(errs.KindIndexBuild, err, "storing %d chunks", len(rows))
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, queryEmbedding []float32, k int) ([]models.ScoredChunk, error) {
	q := vectorLiteral(queryEmbedding)
	var rows []chunkRow
	err := s.db.NewSelect().
		Model(&rows).
		Column("document_id", "source", "page", "chunk_id", "content").
		ColumnExpr("1 - (embedding <=> ?::vector) AS score", q).
		OrderExpr("embedding <=> ?::vector", q).
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindRetrieval, err, "similarity query failed")
	}

	scored := make([]models.ScoredChunk, 0, len(rows))
	for _, row := range rows {
		scored = append(scored, models.ScoredChunk{
			Chunk: models.Chunk{
				Content:    row.Content,
				DocumentID: row.DocumentID,
				Source:     row.Source,
				PageNumber: row.Page,
				ChunkID:    row.ChunkID,
			},
			Score: row.Score,
		})
	}
	return scored, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	count, err := s.db.NewSelect().Model((*chunkRow)(nil)).Count(ctx)
	if err != nil {
		return 0, errs.Wrap(errs.KindRetrieval, err, "counting chunks")
	}
	return count, nil
}

// Reset drops and recreates the chunks table so every build starts
// from an empty store.
func (s *PostgresStore) Reset(ctx context.Context) error {
	_, err := s.db.NewDropTable().Model((*chunkRow)(nil)).IfExists().Exec(ctx)
	if err != nil {
		return errs.Wrap(errs.KindIndexBuild, err, "dropping chunks table")
	}
	return s.init(ctx)
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// vectorLiteral renders a pgvector input literal, e.g. [0.1,0.2].
func vectorLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", v)
	}
	b.WriteByte(']')
	return b.String()
}
