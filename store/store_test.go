package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ustawy/types"
)

func chunkOf(docID uuid.UUID, idx int, text string, vec ...float32) types.Chunk {
	return types.Chunk{
		ID:        uuid.NewSHA1(docID, []byte(text)),
		DocID:     docID,
		Index:     idx,
		Content:   text,
		Metadata:  types.Metadata{types.MetaFileName: "ustawa.pdf", types.MetaPageLabel: "12"},
		Embedding: vec,
	}
}

// runStoreContract exercises behaviour every VectorStore backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) VectorStore) {
	ctx := context.Background()

	t.Run("collection get or create", func(t *testing.T) {
		s := newStore(t)

		_, err := s.Collection(ctx, "pomoc_ukrainie")
		assert.ErrorIs(t, err, types.ErrCollectionNotFound)

		col, err := s.GetOrCreateCollection(ctx, "pomoc_ukrainie", 3)
		require.NoError(t, err)
		assert.Equal(t, 3, col.Dimension)

		again, err := s.GetOrCreateCollection(ctx, "pomoc_ukrainie", 3)
		require.NoError(t, err)
		assert.Equal(t, col.Name, again.Name)

		_, err = s.GetOrCreateCollection(ctx, "pomoc_ukrainie", 4)
		assert.ErrorIs(t, err, types.ErrDimensionMismatch)
	})

	t.Run("empty collection search", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetOrCreateCollection(ctx, "c", 3)
		require.NoError(t, err)

		res, err := s.Search(ctx, "c", []float32{1, 0, 0}, 3)
		require.NoError(t, err)
		assert.NotNil(t, res)
		assert.Empty(t, res)
	})

	t.Run("search ranks by similarity and honours k", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetOrCreateCollection(ctx, "c", 3)
		require.NoError(t, err)

		doc := uuid.New()
		require.NoError(t, s.Upsert(ctx, "c", []types.Chunk{
			chunkOf(doc, 0, "far", 0, 0, 1),
			chunkOf(doc, 1, "near", 1, 0.1, 0),
			chunkOf(doc, 2, "middle", 1, 1, 0),
		}))

		res, err := s.Search(ctx, "c", []float32{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "near", res[0].Content)
		assert.Equal(t, "middle", res[1].Content)
		assert.True(t, res[0].Score.Valid)
		assert.GreaterOrEqual(t, res[0].Score.Float64, res[1].Score.Float64)
		assert.Equal(t, "ustawa.pdf", res[0].Metadata.FileName())
		assert.Equal(t, "12", res[0].Metadata.PageLabel())

		all, err := s.Search(ctx, "c", []float32{1, 0, 0}, 10)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetOrCreateCollection(ctx, "c", 3)
		require.NoError(t, err)

		_, err = s.Search(ctx, "c", []float32{1, 0}, 1)
		assert.ErrorIs(t, err, types.ErrDimensionMismatch)

		err = s.Upsert(ctx, "c", []types.Chunk{chunkOf(uuid.New(), 0, "x", 1, 0)})
		assert.ErrorIs(t, err, types.ErrDimensionMismatch)
	})

	t.Run("missing collection", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Search(ctx, "nope", []float32{1}, 1)
		assert.ErrorIs(t, err, types.ErrCollectionNotFound)
	})

	t.Run("upsert is idempotent", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetOrCreateCollection(ctx, "c", 2)
		require.NoError(t, err)

		doc := uuid.New()
		chunks := []types.Chunk{chunkOf(doc, 0, "a", 1, 0), chunkOf(doc, 1, "b", 0, 1)}
		require.NoError(t, s.Upsert(ctx, "c", chunks))
		require.NoError(t, s.Upsert(ctx, "c", chunks))

		n, err := s.Count(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("documents and chunk deletion", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetOrCreateCollection(ctx, "c", 2)
		require.NoError(t, err)

		now := time.Now().Truncate(time.Millisecond)
		doc := types.Document{
			ID:          uuid.New(),
			Text:        "treść",
			Metadata:    types.Metadata{types.MetaFileName: "ustawa.pdf"},
			ContentHash: "abc",
			Source:      "pdf",
			SourcePath:  "/data/ustawa.pdf",
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		_, err = s.GetDocumentByID(ctx, "c", doc.ID)
		assert.ErrorIs(t, err, types.ErrNotFound)

		require.NoError(t, s.SaveDocument(ctx, "c", doc))
		got, err := s.GetDocumentByID(ctx, "c", doc.ID)
		require.NoError(t, err)
		assert.Equal(t, doc.ID, got.ID)
		assert.Equal(t, "abc", got.ContentHash)
		assert.Equal(t, "ustawa.pdf", got.Metadata.FileName())
		assert.Empty(t, got.Text)

		other := uuid.New()
		require.NoError(t, s.Upsert(ctx, "c", []types.Chunk{
			chunkOf(doc.ID, 0, "a", 1, 0),
			chunkOf(doc.ID, 1, "b", 0, 1),
			chunkOf(other, 0, "c", 1, 1),
		}))
		require.NoError(t, s.DeleteChunksByDocID(ctx, "c", doc.ID))

		n, err := s.Count(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("documents by source and document deletion", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetOrCreateCollection(ctx, "c", 2)
		require.NoError(t, err)

		now := time.Now().Truncate(time.Millisecond)
		pageDoc := func(path string) types.Document {
			return types.Document{ID: uuid.New(), ContentHash: "h", SourcePath: path, CreatedAt: now, UpdatedAt: now}
		}
		p1, p2, other := pageDoc("ustawa.pdf"), pageDoc("ustawa.pdf"), pageDoc("a/ustawa.pdf")
		for _, d := range []types.Document{p1, p2, other} {
			require.NoError(t, s.SaveDocument(ctx, "c", d))
		}
		require.NoError(t, s.Upsert(ctx, "c", []types.Chunk{
			chunkOf(p1.ID, 0, "a", 1, 0),
			chunkOf(p2.ID, 0, "b", 0, 1),
			chunkOf(other.ID, 0, "c", 1, 1),
		}))

		ids, err := s.DocumentIDsBySource(ctx, "c", "ustawa.pdf")
		require.NoError(t, err)
		assert.ElementsMatch(t, []uuid.UUID{p1.ID, p2.ID}, ids)

		ids, err = s.DocumentIDsBySource(ctx, "c", "brak.pdf")
		require.NoError(t, err)
		assert.Empty(t, ids)

		require.NoError(t, s.DeleteDocument(ctx, "c", p2.ID))
		require.NoError(t, s.DeleteDocument(ctx, "c", uuid.New()))

		_, err = s.GetDocumentByID(ctx, "c", p2.ID)
		assert.ErrorIs(t, err, types.ErrNotFound)
		ids, err = s.DocumentIDsBySource(ctx, "c", "ustawa.pdf")
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{p1.ID}, ids)

		n, err := s.Count(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) VectorStore {
		return NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) VectorStore {
		s, err := NewSQLiteStore(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStorePersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewSQLiteStore(dir)
	require.NoError(t, err)
	_, err = s.GetOrCreateCollection(ctx, "pomoc_ukrainie", 2)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, "pomoc_ukrainie", []types.Chunk{chunkOf(uuid.New(), 0, "odciski palców", 0.6, 0.8)}))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	res, err := reopened.Search(ctx, "pomoc_ukrainie", []float32{0.6, 0.8}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "odciski palców", res[0].Content)
	assert.InDelta(t, 1.0, res[0].Score.Float64, 1e-6)
	assert.Equal(t, []float32{0.6, 0.8}, res[0].Embedding)
}

func TestVectorCodec(t *testing.T) {
	in := []float32{0.25, -1.5, 3}
	assert.Equal(t, in, decodeVector(encodeVector(in)))
	assert.Nil(t, decodeVector(nil))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 1}, []float32{2, 2}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 1}))
}
