package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"resume-rag/internal/config"
	"resume-rag/internal/models"
)

type Document struct {
	bun.BaseModel `bun:"table:resume_passages,alias:d"`
	ID            int64           `bun:"id,pk,autoincrement"`
	Collection    string          `bun:"collection,notnull"`
	Seq           int             `bun:"seq,notnull"`
	PageNumber    int             `bun:"page_number,notnull"`
	ChunkID       int             `bun:"chunk_id,notnull"`
	Content       string          `bun:"content,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Score         float32         `bun:"score,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a connection pool with the configured driver.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPq:
		return sql.Open("postgres", cfg.DSN)
	case config.DriverPgdriver, "":
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, &models.ConfigurationError{Field: "database.driver", Reason: fmt.Sprintf("unknown driver %q", cfg.Driver)}
	}
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	_, err := db.NewCreateIndex().Model((*Document)(nil)).
		Index("resume_passages_collection_idx").
		IfNotExists().
		Column("collection", "seq").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Store keeps every collection in one pgvector table, keyed by collection name.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Build replaces the rows of the named collection inside one transaction.
func (s *Store) Build(ctx context.Context, name string, entries []models.IndexEntry) (models.IndexHandle, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("failed to build collection %s: no entries", name)
	}

	docs := make([]Document, len(entries))
	dim := len(entries[0].Embedding)
	for i, e := range entries {
		if len(e.Embedding) == 0 || len(e.Embedding) != dim {
			return nil, fmt.Errorf("failed to build collection %s: entry %d has dimension %d, want %d", name, i, len(e.Embedding), dim)
		}
		docs[i] = Document{
			Collection: name,
			Seq:        e.Passage.Seq,
			PageNumber: e.Passage.Page,
			ChunkID:    e.Passage.ChunkID,
			Content:    e.Passage.Content,
			Embedding:  pgvector.NewVector(e.Embedding),
		}
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*Document)(nil)).Where("collection = ?", name).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear collection: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			log.Warn().Str("collection", name).Int64("entries", n).Msg("Overwriting existing collection")
		}
		if _, err := tx.NewInsert().Model(&docs).Exec(ctx); err != nil {
			return fmt.Errorf("failed to store documents: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("collection", name).Int("entries", len(docs)).Msg("Built collection")
	return &Collection{db: s.db, name: name, count: len(docs)}, nil
}

func (s *Store) Open(ctx context.Context, name string) (models.IndexHandle, error) {
	n, err := s.db.NewSelect().Model((*Document)(nil)).Where("collection = ?", name).Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrCollectionNotFound, name)
	}
	return &Collection{db: s.db, name: name, count: n}, nil
}

// DropDocuments removes the passages table.
func DropDocuments(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*Document)(nil)).IfExists().Exec(ctx)
	return err
}

type Collection struct {
	db    *bun.DB
	name  string
	count int
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) Count() int { return c.count }

// Search orders by cosine distance, then by insertion sequence.
func (c *Collection) Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(query) == 0 {
		return nil, errors.New("empty query vector")
	}

	vec := pgvector.NewVector(query)
	var docs []Document
	err := c.db.NewSelect().
		Model(&docs).
		Column("seq", "page_number", "chunk_id", "content").
		ColumnExpr("1 - (embedding <=> ?) AS score", vec).
		Where("collection = ?", c.name).
		OrderExpr("embedding <=> ? ASC, seq ASC", vec).
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}

	out := make([]models.SearchResult, len(docs))
	for i, d := range docs {
		out[i] = models.SearchResult{
			Passage: models.Passage{Content: d.Content, Page: d.PageNumber, ChunkID: d.ChunkID, Seq: d.Seq},
			Score:   d.Score,
		}
	}
	return out, nil
}
