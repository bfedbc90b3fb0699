package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"ustawy/types"
)

var _ VectorStore = (*PostgresStore)(nil)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool: pool,
	}, nil
}

// Init creates the extension, tables and indexes if they are missing.
func (p *PostgresStore) Init(ctx context.Context) error {
	query := `
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		dimension INT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY,
		collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
		content_hash TEXT NOT NULL,
		source TEXT,
		source_path TEXT,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE,
		updated_at TIMESTAMP WITH TIME ZONE
	);

	-- vector without a fixed size, collections of different dimensions share the table
	CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY,
		collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
		doc_id UUID NOT NULL,
		idx INT NOT NULL,
		content TEXT NOT NULL,
		metadata JSONB,
		embedding vector NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
	CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);
	`
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) GetOrCreateCollection(ctx context.Context, name string, dimension int) (types.Collection, error) {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO collections (name, dimension) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		name, dimension)
	if err != nil {
		return types.Collection{}, fmt.Errorf("creating collection: %w", err)
	}

	col, err := p.Collection(ctx, name)
	if err != nil {
		return types.Collection{}, err
	}
	if err := checkDimension(col, dimension); err != nil {
		return types.Collection{}, err
	}
	return col, nil
}

func (p *PostgresStore) Collection(ctx context.Context, name string) (types.Collection, error) {
	var col types.Collection
	err := p.pool.QueryRow(ctx,
		`SELECT name, dimension, created_at FROM collections WHERE name = $1`, name,
	).Scan(&col.Name, &col.Dimension, &col.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Collection{}, types.ErrCollectionNotFound
	}
	if err != nil {
		return types.Collection{}, fmt.Errorf("reading collection: %w", err)
	}
	return col, nil
}

func (p *PostgresStore) SaveDocument(ctx context.Context, collection string, doc types.Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `INSERT INTO documents (id, collection, content_hash, source, source_path, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			source = EXCLUDED.source,
			source_path = EXCLUDED.source_path,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
			`
	_, err = p.pool.Exec(
		ctx,
		query,
		doc.ID,
		collection,
		doc.ContentHash,
		doc.Source,
		doc.SourcePath,
		meta,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: %s", types.ErrCollectionNotFound, collection)
	}
	return err
}

func (p *PostgresStore) GetDocumentByID(ctx context.Context, collection string, docID uuid.UUID) (*types.Document, error) {
	doc := &types.Document{}
	var (
		meta                []byte
		source, sourcePath  sql.NullString
		createdAt, updateAt sql.NullTime
	)
	err := p.pool.QueryRow(ctx, `
		SELECT id, content_hash, source, source_path, metadata, created_at, updated_at
		FROM documents WHERE collection = $1 AND id = $2`, collection, docID,
	).Scan(&doc.ID, &doc.ContentHash, &source, &sourcePath, &meta, &createdAt, &updateAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	doc.Source = source.String
	doc.SourcePath = sourcePath.String
	doc.CreatedAt = createdAt.Time
	doc.UpdatedAt = updateAt.Time
	if err := unmarshalMetadata(string(meta), &doc.Metadata); err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *PostgresStore) DocumentIDsBySource(ctx context.Context, collection, sourcePath string) ([]uuid.UUID, error) {
	if _, err := p.Collection(ctx, collection); err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id FROM documents WHERE collection = $1 AND source_path = $2`, collection, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("error listing documents: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *PostgresStore) DeleteDocument(ctx context.Context, collection string, id uuid.UUID) error {
	batch := &pgx.Batch{}
	batch.Queue("DELETE FROM chunks WHERE collection = $1 AND doc_id = $2", collection, id)
	batch.Queue("DELETE FROM documents WHERE collection = $1 AND id = $2", collection, id)
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("error deleting document: %w", err)
	}
	return nil
}

func (p *PostgresStore) DeleteChunksByDocID(ctx context.Context, collection string, docID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM chunks WHERE collection = $1 AND doc_id = $2", collection, docID)
	if err != nil {
		return fmt.Errorf("error deleting old chunks: %w", err)
	}
	return nil
}

func (p *PostgresStore) Upsert(ctx context.Context, collection string, chunks []types.Chunk) error {
	col, err := p.Collection(ctx, collection)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		if err := checkDimension(col, len(c.Embedding)); err != nil {
			return err
		}
	}

	query := `
	INSERT INTO chunks (id, collection, doc_id, idx, content, metadata, embedding)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE SET
		doc_id = EXCLUDED.doc_id,
		idx = EXCLUDED.idx,
		content = EXCLUDED.content,
		metadata = EXCLUDED.metadata,
		embedding = EXCLUDED.embedding
	`
	batch := &pgx.Batch{}
	for _, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		batch.Queue(query, c.ID, collection, c.DocID, c.Index, c.Content, meta, pgvector.NewVector(c.Embedding))
	}

	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, c := range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upserting chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

func (p *PostgresStore) Search(ctx context.Context, collection string, queryVec []float32, limit int) ([]types.Chunk, error) {
	col, err := p.Collection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if err := checkDimension(col, len(queryVec)); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []types.Chunk{}, nil
	}

	query := `
		SELECT id, doc_id, idx, content, metadata, embedding,
		       1 - (embedding <=> $1) AS similarity
		FROM chunks
		WHERE collection = $2
		ORDER BY embedding <=> $1, idx
		LIMIT $3
	`
	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(queryVec), collection, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := []types.Chunk{}
	for rows.Next() {
		var (
			chunk types.Chunk
			meta  []byte
			vec   pgvector.Vector
			score float64
		)
		if err := rows.Scan(&chunk.ID, &chunk.DocID, &chunk.Index, &chunk.Content, &meta, &vec, &score); err != nil {
			return nil, err
		}
		if err := unmarshalMetadata(string(meta), &chunk.Metadata); err != nil {
			return nil, err
		}
		chunk.Embedding = vec.Slice()
		chunk.Score = sql.NullFloat64{Float64: score, Valid: true}

		slog.Debug("chunk found", "stage", "search", "doc_id", chunk.DocID, "index", chunk.Index, "similarity", score)
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (p *PostgresStore) Count(ctx context.Context, collection string) (int, error) {
	if _, err := p.Collection(ctx, collection); err != nil {
		return 0, err
	}
	var n int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks WHERE collection = $1`, collection).Scan(&n)
	return n, err
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		slog.Info("postgres connection pool is closed", "stage", "store")
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
