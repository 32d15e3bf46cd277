package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/projectsamarth/samarth/internal/index"
)

// PgVectorStore mirrors an index into Postgres so retrieval can run in the
// database instead of in process memory. Rows are scoped by embedding model.
type PgVectorStore struct {
	db    *pgxpool.Pool
	model string
}

func NewPgVectorStore(db *pgxpool.Pool, model string) *PgVectorStore {
	return &PgVectorStore{db: db, model: model}
}

const upsertBatch = 500

// Upsert writes entries for model in batches, replacing rows with the same
// document id.
func (s *PgVectorStore) Upsert(ctx context.Context, model string, entries []index.Entry) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertEntries(ctx, tx, model, entries); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Replace swaps every row of model for entries in one transaction, so
// concurrent searches see either the previous index or the new one. It
// returns the number of rows removed.
func (s *PgVectorStore) Replace(ctx context.Context, model string, entries []index.Entry) (int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, "DELETE FROM embedded_documents WHERE model = $1", model)
	if err != nil {
		return 0, fmt.Errorf("delete model %s: %w", model, err)
	}
	if err := insertEntries(ctx, tx, model, entries); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit replace: %w", err)
	}
	return tag.RowsAffected(), nil
}

func insertEntries(ctx context.Context, tx pgx.Tx, model string, entries []index.Entry) error {
	for start := 0; start < len(entries); start += upsertBatch {
		end := min(start+upsertBatch, len(entries))

		batch := &pgx.Batch{}
		for i, e := range entries[start:end] {
			batch.Queue(
				`INSERT INTO embedded_documents (id, model, position, source, content, metadata, embedding)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 ON CONFLICT (id, model) DO UPDATE
				 SET position = $3, source = $4, content = $5, metadata = $6, embedding = $7`,
				e.Document.ID, model, start+i, string(e.Document.Source()), e.Document.Text,
				e.Document.Metadata, pgvector.NewVector(e.Vector),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert documents %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

// SimilaritySearch orders by cosine distance; ties fall back to insertion
// position so results match the in-memory index.
func (s *PgVectorStore) SimilaritySearch(ctx context.Context, query []float32, k int) ([]index.Hit, error) {
	if k <= 0 {
		return nil, index.ErrInvalidK
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, content, metadata, 1 - (embedding <=> $1) AS score
		 FROM embedded_documents
		 WHERE model = $2
		 ORDER BY embedding <=> $1, position
		 LIMIT $3`,
		pgvector.NewVector(query), s.model, k,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	hits := []index.Hit{}
	for rows.Next() {
		var h index.Hit
		if err := rows.Scan(&h.Document.ID, &h.Document.Text, &h.Document.Metadata, &h.Score); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	return hits, nil
}

// DeleteModel removes every row stored for model.
func (s *PgVectorStore) DeleteModel(ctx context.Context, model string) (int64, error) {
	tag, err := s.db.Exec(ctx, "DELETE FROM embedded_documents WHERE model = $1", model)
	if err != nil {
		return 0, fmt.Errorf("delete model %s: %w", model, err)
	}
	return tag.RowsAffected(), nil
}

// Count reports how many rows are stored for the configured model.
func (s *PgVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, "SELECT count(*) FROM embedded_documents WHERE model = $1", s.model).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}
