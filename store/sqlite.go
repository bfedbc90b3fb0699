package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"ustawy/types"
)

var _ VectorStore = (*SQLiteStore)(nil)

const sqliteFile = "vectors.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	dimension  INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	collection   TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
	content_hash TEXT NOT NULL,
	source       TEXT,
	source_path  TEXT,
	metadata     TEXT,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id         TEXT PRIMARY KEY,
	collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
	doc_id     TEXT NOT NULL,
	idx        INTEGER NOT NULL,
	content    TEXT NOT NULL,
	metadata   TEXT,
	embedding  BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection);
CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);
`

// SQLiteStore persists collections in a single SQLite file under a directory
// and searches by scanning the collection's vectors.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) dir/vectors.db.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	dbPath := filepath.Join(dir, sqliteFile)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	slog.Info("sqlite store opened", "stage", "store", "path", dbPath)
	return &SQLiteStore{db: db, path: dbPath}, nil
}

func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) GetOrCreateCollection(ctx context.Context, name string, dimension int) (types.Collection, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (name, dimension, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		name, dimension, time.Now().UnixMilli())
	if err != nil {
		return types.Collection{}, fmt.Errorf("creating collection: %w", err)
	}

	col, err := s.Collection(ctx, name)
	if err != nil {
		return types.Collection{}, err
	}
	if err := checkDimension(col, dimension); err != nil {
		return types.Collection{}, err
	}
	return col, nil
}

func (s *SQLiteStore) Collection(ctx context.Context, name string) (types.Collection, error) {
	var (
		col     types.Collection
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, dimension, created_at FROM collections WHERE name = ?`, name,
	).Scan(&col.Name, &col.Dimension, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Collection{}, types.ErrCollectionNotFound
	}
	if err != nil {
		return types.Collection{}, fmt.Errorf("reading collection: %w", err)
	}
	col.CreatedAt = time.UnixMilli(created)
	return col, nil
}

func (s *SQLiteStore) SaveDocument(ctx context.Context, collection string, doc types.Document) error {
	if _, err := s.Collection(ctx, collection); err != nil {
		return err
	}
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, collection, content_hash, source, source_path, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content_hash = excluded.content_hash,
			source = excluded.source,
			source_path = excluded.source_path,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		doc.ID.String(), collection, doc.ContentHash, doc.Source, doc.SourcePath, string(meta),
		doc.CreatedAt.UnixMilli(), doc.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetDocumentByID(ctx context.Context, collection string, id uuid.UUID) (*types.Document, error) {
	var (
		doc              types.Document
		rawID, meta      string
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, content_hash, source, source_path, metadata, created_at, updated_at
		FROM documents WHERE collection = ? AND id = ?`, collection, id.String(),
	).Scan(&rawID, &doc.ContentHash, &doc.Source, &doc.SourcePath, &meta, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}

	if doc.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("parsing document id: %w", err)
	}
	if err := unmarshalMetadata(meta, &doc.Metadata); err != nil {
		return nil, err
	}
	doc.CreatedAt = time.UnixMilli(created)
	doc.UpdatedAt = time.UnixMilli(updated)
	return &doc, nil
}

func (s *SQLiteStore) DocumentIDsBySource(ctx context.Context, collection, sourcePath string) ([]uuid.UUID, error) {
	if _, err := s.Collection(ctx, collection); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM documents WHERE collection = ? AND source_path = ?`, collection, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing document id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, collection string, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE collection = ? AND doc_id = ?`, collection, id.String()); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id.String()); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteChunksByDocID(ctx context.Context, collection string, docID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE collection = ? AND doc_id = ?`, collection, docID.String())
	if err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, collection string, chunks []types.Chunk) error {
	col, err := s.Collection(ctx, collection)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		if err := checkDimension(col, len(c.Embedding)); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, collection, doc_id, idx, content, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			doc_id = excluded.doc_id,
			idx = excluded.idx,
			content = excluded.content,
			metadata = excluded.metadata,
			embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID.String(), collection, c.DocID.String(), c.Index,
			c.Content, string(meta), encodeVector(c.Embedding)); err != nil {
			return fmt.Errorf("upserting chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Search(ctx context.Context, collection string, query []float32, k int) ([]types.Chunk, error) {
	col, err := s.Collection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if err := checkDimension(col, len(query)); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []types.Chunk{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc_id, idx, content, metadata, embedding
		FROM chunks WHERE collection = ? ORDER BY rowid`, collection)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	candidates := []types.Chunk{}
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return rank(candidates, query, k), nil
}

func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	if _, err := s.Collection(ctx, collection); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE collection = ?`, collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanChunk(rows *sql.Rows) (types.Chunk, error) {
	var (
		c             types.Chunk
		id, docID     string
		meta          sql.NullString
		embeddingBlob []byte
	)
	if err := rows.Scan(&id, &docID, &c.Index, &c.Content, &meta, &embeddingBlob); err != nil {
		return types.Chunk{}, fmt.Errorf("scanning chunk: %w", err)
	}

	var err error
	if c.ID, err = uuid.Parse(id); err != nil {
		return types.Chunk{}, fmt.Errorf("parsing chunk id: %w", err)
	}
	if c.DocID, err = uuid.Parse(docID); err != nil {
		return types.Chunk{}, fmt.Errorf("parsing doc id: %w", err)
	}
	if err := unmarshalMetadata(meta.String, &c.Metadata); err != nil {
		return types.Chunk{}, err
	}
	c.Embedding = decodeVector(embeddingBlob)
	return c, nil
}

func unmarshalMetadata(raw string, dst *types.Metadata) error {
	if raw == "" || raw == "null" {
		*dst = types.Metadata{}
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("unmarshal metadata: %w", err)
	}
	return nil
}
