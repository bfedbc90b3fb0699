package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"ustawy/config"
	"ustawy/loader/internal"
	"ustawy/model"
	"ustawy/store"
	"ustawy/types"
)

// Reader loads documents from the filesystem.
type Reader interface {
	ReadDir(ctx context.Context, dir string) ([]types.Document, error)
	ReadFile(ctx context.Context, path string) ([]types.Document, error)
}

// Stats summarizes one ingestion run.
type Stats struct {
	Documents int // documents (re)indexed
	Skipped   int // documents unchanged since the last run
	Chunks    int
	Removed   int // stale documents of a re-read file, e.g. pages that no longer exist
}

func (s Stats) add(o Stats) Stats {
	return Stats{
		Documents: s.Documents + o.Documents,
		Skipped:   s.Skipped + o.Skipped,
		Chunks:    s.Chunks + o.Chunks,
		Removed:   s.Removed + o.Removed,
	}
}

type Service struct {
	logger     *slog.Logger
	store      store.VectorStore
	embedder   model.Embedder
	splitter   *internal.SentenceSplitter
	reader     Reader
	loaderCfg  config.LoaderConfig
	collection string
}

func New(cfg *config.Config, st store.VectorStore, embedder model.Embedder, tok model.Tokenizer) *Service {
	return &Service{
		logger:     slog.Default(),
		store:      st,
		embedder:   embedder,
		splitter:   internal.NewSentenceSplitter(cfg.Loader.ChunkSize, cfg.Loader.ChunkOverlap, tok),
		reader:     internal.NewDirectoryReader(internal.NewPDFLoader(cfg.Loader)),
		loaderCfg:  cfg.Loader,
		collection: cfg.Store.Collection,
	}
}

// WithReader replaces the document reader.
func (s *Service) WithReader(r Reader) *Service {
	s.reader = r
	return s
}

func (s *Service) Collection() string { return s.collection }

// DocumentID derives a stable id from where the document came from, so the
// same page of the same file always maps to the same record. The source path
// identifies the file; the file name is used only when it is missing.
func DocumentID(collection string, doc types.Document) uuid.UUID {
	key := doc.SourcePath
	if key == "" {
		key = doc.Metadata.FileName()
	}
	if key == "" {
		key = ContentHash(doc.Text)
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(collection+"|"+key+"|"+doc.Metadata.PageLabel()))
}

func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func chunkID(docID uuid.UUID, index int, text string) uuid.UUID {
	return uuid.NewSHA1(docID, []byte(fmt.Sprintf("%d|%s", index, text)))
}

// Ingest chunks, embeds and stores docs under collection. Documents whose
// text did not change since the previous run are skipped. An embedding
// failure stops the run; documents stored before it stay stored.
func (s *Service) Ingest(ctx context.Context, docs []types.Document, collection string) (Stats, error) {
	var stats Stats

	if _, err := s.store.GetOrCreateCollection(ctx, collection, s.embedder.Dimension()); err != nil {
		return stats, fmt.Errorf("get or create collection %s: %w", collection, err)
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		n, skipped, err := s.ingestDocument(ctx, collection, doc)
		if err != nil {
			return stats, err
		}
		if skipped {
			stats.Skipped++
			continue
		}
		stats.Documents++
		stats.Chunks += n
	}

	s.logger.Info("ingestion finished", "stage", "ingest", "collection", collection,
		"documents", stats.Documents, "skipped", stats.Skipped, "chunks", stats.Chunks)
	return stats, nil
}

func (s *Service) ingestDocument(ctx context.Context, collection string, doc types.Document) (int, bool, error) {
	doc.ID = DocumentID(collection, doc)
	doc.ContentHash = ContentHash(doc.Text)
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	existing, err := s.store.GetDocumentByID(ctx, collection, doc.ID)
	switch {
	case err == nil && existing.ContentHash == doc.ContentHash:
		s.logger.Debug("document unchanged", "stage", "ingest", "file", doc.Metadata.FileName(), "page", doc.Metadata.PageLabel())
		return 0, true, nil
	case err == nil:
		doc.CreatedAt = existing.CreatedAt
		if err := s.store.DeleteChunksByDocID(ctx, collection, doc.ID); err != nil {
			return 0, false, err
		}
	case !errors.Is(err, types.ErrNotFound):
		return 0, false, fmt.Errorf("lookup document: %w", err)
	}

	texts := s.splitter.Split(doc.Text)
	chunks := make([]types.Chunk, 0, len(texts))
	for i, text := range texts {
		embedding, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return 0, false, fmt.Errorf("embed chunk %d of %s: %w", i, doc.Metadata.FileName(), err)
		}
		chunks = append(chunks, types.Chunk{
			ID:        chunkID(doc.ID, i, text),
			DocID:     doc.ID,
			Index:     i,
			Content:   text,
			Metadata:  doc.Metadata.Clone(),
			Embedding: embedding,
		})
	}

	if err := s.store.Upsert(ctx, collection, chunks); err != nil {
		return 0, false, fmt.Errorf("store chunks: %w", err)
	}
	// saved last: a document whose chunks failed is retried on the next run
	if err := s.store.SaveDocument(ctx, collection, doc); err != nil {
		return 0, false, fmt.Errorf("store document: %w", err)
	}

	s.logger.Debug("document indexed", "stage", "ingest", "file", doc.Metadata.FileName(),
		"page", doc.Metadata.PageLabel(), "chunks", len(chunks))
	return len(chunks), false, nil
}

// IngestDir reads every supported file under dir into the default collection.
// Stored documents of a read file that it no longer produces are removed.
func (s *Service) IngestDir(ctx context.Context, dir string) (Stats, error) {
	docs, err := s.reader.ReadDir(ctx, dir)
	if err != nil {
		return Stats{}, err
	}
	return s.ingestSources(ctx, docs, nil)
}

// IngestFile indexes one file, replacing whatever was stored for it before.
func (s *Service) IngestFile(ctx context.Context, path string) (Stats, error) {
	docs, err := s.reader.ReadFile(ctx, path)
	if err != nil {
		return Stats{}, err
	}
	return s.ingestSources(ctx, docs, []string{internal.SourceKey(filepath.Dir(path), path)})
}

// ingestSources ingests docs, then drops stored documents of their sources
// (and of extra, which may have produced no documents at all) that are not
// among docs.
func (s *Service) ingestSources(ctx context.Context, docs []types.Document, extra []string) (Stats, error) {
	stats, err := s.Ingest(ctx, docs, s.collection)
	if err != nil {
		return stats, err
	}

	keep := make(map[uuid.UUID]struct{}, len(docs))
	sources := make(map[string]struct{}, len(extra))
	for _, src := range extra {
		sources[src] = struct{}{}
	}
	for _, doc := range docs {
		keep[DocumentID(s.collection, doc)] = struct{}{}
		if doc.SourcePath != "" {
			sources[doc.SourcePath] = struct{}{}
		}
	}

	for src := range sources {
		ids, err := s.store.DocumentIDsBySource(ctx, s.collection, src)
		if err != nil {
			return stats, fmt.Errorf("list documents of %s: %w", src, err)
		}
		for _, id := range ids {
			if _, ok := keep[id]; ok {
				continue
			}
			if err := s.store.DeleteDocument(ctx, s.collection, id); err != nil {
				return stats, fmt.Errorf("remove stale document of %s: %w", src, err)
			}
			stats.Removed++
			s.logger.Info("stale document removed", "stage", "ingest", "source", src, "id", id)
		}
	}
	return stats, nil
}

type fileResult struct {
	path  string
	stats Stats
	err   error
}

// Run watches the loader source directory until ctx is cancelled. Stable
// files are ingested and then moved to the archive, or to the bad
// directory when ingestion fails.
func (s *Service) Run(ctx context.Context) (Stats, error) {
	watcher, err := internal.NewWatcher(s.loaderCfg)
	if err != nil {
		return Stats{}, err
	}

	fileChan := make(chan string, 10)
	resultChan := make(chan fileResult)
	var (
		wg       sync.WaitGroup
		watchErr error
		total    Stats
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		watchErr = watcher.WatchFile(ctx, fileChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(resultChan)
		s.processFiles(ctx, fileChan, resultChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		total = s.saveResults(watcher, resultChan)
	}()

	wg.Wait()
	s.logger.Info("loader service stopped", "stage", "watch",
		"documents", total.Documents, "skipped", total.Skipped, "chunks", total.Chunks)
	return total, watchErr
}

func (s *Service) processFiles(ctx context.Context, fileChan <-chan string, results chan<- fileResult) {
	for path := range fileChan {
		s.logger.Info("processing file", "stage", "watch", "path", path)
		stats, err := s.IngestFile(ctx, path)
		select {
		case results <- fileResult{path: path, stats: stats, err: err}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) saveResults(watcher *internal.Watcher, results <-chan fileResult) Stats {
	var total Stats
	for r := range results {
		if errors.Is(r.err, context.Canceled) {
			// left in the source dir, picked up again on the next start
			s.logger.Info("file processing interrupted", "stage", "watch", "path", r.path)
			continue
		}
		state := internal.StateDone
		if r.err != nil {
			state = internal.StateBad
			s.logger.Error("file ingestion failed", "stage", "watch", "path", r.path, "error", r.err)
		}
		total = total.add(r.stats)
		if err := watcher.Done(r.path, state); err != nil {
			s.logger.Error("error moving file", "stage", "watch", "path", r.path, "error", err)
		}
	}
	return total
}
