package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"ustawy/config"
	"ustawy/types"
)

// VectorStore keeps documents and their embedded chunks grouped in named
// collections. Every collection has a fixed embedding dimension.
type VectorStore interface {
	GetOrCreateCollection(ctx context.Context, name string, dimension int) (types.Collection, error)
	// Collection returns types.ErrCollectionNotFound when name does not exist.
	Collection(ctx context.Context, name string) (types.Collection, error)
	SaveDocument(ctx context.Context, collection string, doc types.Document) error
	// GetDocumentByID returns types.ErrNotFound when the document is unknown.
	// Document.Text is not persisted and comes back empty.
	GetDocumentByID(ctx context.Context, collection string, id uuid.UUID) (*types.Document, error)
	// DocumentIDsBySource lists the documents stored for one source file.
	DocumentIDsBySource(ctx context.Context, collection, sourcePath string) ([]uuid.UUID, error)
	// DeleteDocument removes a document and its chunks. Unknown ids are not an error.
	DeleteDocument(ctx context.Context, collection string, id uuid.UUID) error
	DeleteChunksByDocID(ctx context.Context, collection string, docID uuid.UUID) error
	Upsert(ctx context.Context, collection string, chunks []types.Chunk) error
	// Search returns at most k chunks ordered by descending cosine similarity,
	// each with Score set.
	Search(ctx context.Context, collection string, query []float32, k int) ([]types.Chunk, error)
	Count(ctx context.Context, collection string) (int, error)
	Close() error
}

// New opens the backend named by cfg.Store.Backend.
func New(ctx context.Context, cfg *config.Config) (VectorStore, error) {
	slog.Info("opening vector store", "stage", "store", "backend", cfg.Store.Backend)

	switch cfg.Store.Backend {
	case "postgres":
		s, err := NewPostgresStore(ctx, cfg.Postgres.ConnString())
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := s.Init(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("init postgres schema: %w", err)
		}
		return s, nil
	case "sqlite", "":
		return NewSQLiteStore(cfg.Store.Path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}
}

func checkDimension(col types.Collection, got int) error {
	if col.Dimension != got {
		return fmt.Errorf("%w: collection %s has %d, got %d",
			types.ErrDimensionMismatch, col.Name, col.Dimension, got)
	}
	return nil
}
