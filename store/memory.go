package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"ustawy/types"
)

var _ VectorStore = (*MemoryStore)(nil)

type memCollection struct {
	info   types.Collection
	docs   map[uuid.UUID]types.Document
	chunks map[uuid.UUID]types.Chunk
	order  []uuid.UUID // insertion order, keeps search ties stable
}

// MemoryStore is a process-local VectorStore used by tests and one-off runs.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

func (m *MemoryStore) GetOrCreateCollection(_ context.Context, name string, dimension int) (types.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.collections[name]; ok {
		if err := checkDimension(c.info, dimension); err != nil {
			return types.Collection{}, err
		}
		return c.info, nil
	}
	c := &memCollection{
		info:   types.Collection{Name: name, Dimension: dimension, CreatedAt: time.Now()},
		docs:   make(map[uuid.UUID]types.Document),
		chunks: make(map[uuid.UUID]types.Chunk),
	}
	m.collections[name] = c
	return c.info, nil
}

func (m *MemoryStore) Collection(_ context.Context, name string) (types.Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[name]
	if !ok {
		return types.Collection{}, types.ErrCollectionNotFound
	}
	return c.info, nil
}

func (m *MemoryStore) get(name string) (*memCollection, error) {
	c, ok := m.collections[name]
	if !ok {
		return nil, types.ErrCollectionNotFound
	}
	return c, nil
}

func (m *MemoryStore) SaveDocument(_ context.Context, collection string, doc types.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.get(collection)
	if err != nil {
		return err
	}
	doc.Text = ""
	doc.Metadata = doc.Metadata.Clone()
	c.docs[doc.ID] = doc
	return nil
}

func (m *MemoryStore) GetDocumentByID(_ context.Context, collection string, id uuid.UUID) (*types.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.get(collection)
	if err != nil {
		return nil, err
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	doc.Metadata = doc.Metadata.Clone()
	return &doc, nil
}

func (m *MemoryStore) DocumentIDsBySource(_ context.Context, collection, sourcePath string) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.get(collection)
	if err != nil {
		return nil, err
	}
	ids := []uuid.UUID{}
	for id, doc := range c.docs {
		if doc.SourcePath == sourcePath {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *MemoryStore) DeleteDocument(ctx context.Context, collection string, id uuid.UUID) error {
	if err := m.DeleteChunksByDocID(ctx, collection, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.collections[collection]; ok {
		delete(c.docs, id)
	}
	return nil
}

func (m *MemoryStore) DeleteChunksByDocID(_ context.Context, collection string, docID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.get(collection)
	if err != nil {
		return err
	}
	kept := c.order[:0]
	for _, id := range c.order {
		if c.chunks[id].DocID == docID {
			delete(c.chunks, id)
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept
	return nil
}

func (m *MemoryStore) Upsert(_ context.Context, collection string, chunks []types.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.get(collection)
	if err != nil {
		return err
	}
	for _, ch := range chunks {
		if err := checkDimension(c.info, len(ch.Embedding)); err != nil {
			return err
		}
	}
	for _, ch := range chunks {
		if _, exists := c.chunks[ch.ID]; !exists {
			c.order = append(c.order, ch.ID)
		}
		ch.Embedding = append([]float32(nil), ch.Embedding...)
		ch.Metadata = ch.Metadata.Clone()
		ch.Score.Valid = false
		c.chunks[ch.ID] = ch
	}
	return nil
}

func (m *MemoryStore) Search(_ context.Context, collection string, query []float32, k int) ([]types.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.get(collection)
	if err != nil {
		return nil, err
	}
	if err := checkDimension(c.info, len(query)); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []types.Chunk{}, nil
	}

	candidates := make([]types.Chunk, 0, len(c.order))
	for _, id := range c.order {
		ch := c.chunks[id]
		ch.Metadata = ch.Metadata.Clone()
		candidates = append(candidates, ch)
	}
	return rank(candidates, query, k), nil
}

func (m *MemoryStore) Count(_ context.Context, collection string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.get(collection)
	if err != nil {
		return 0, err
	}
	return len(c.chunks), nil
}

func (m *MemoryStore) Close() error { return nil }
