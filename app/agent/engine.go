package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ustawy/model"
	"ustawy/store"
	"ustawy/types"
)

type Options struct {
	Collection       string
	ContextTokens    int
	SimilarityCutoff float64 // 0 disables
}

// Engine answers questions from the passages of one collection.
type Engine struct {
	embedder      model.Embedder
	store         store.VectorStore
	llm           model.Generator
	tok           model.Tokenizer
	collection    string
	contextTokens int
	cutoff        float64
	logger        *slog.Logger
}

func NewEngine(embedder model.Embedder, st store.VectorStore, llm model.Generator, tok model.Tokenizer, opts Options) *Engine {
	if tok == nil {
		tok = model.WordTokenizer{}
	}
	if opts.ContextTokens <= 0 {
		opts.ContextTokens = 3000
	}
	return &Engine{
		embedder:      embedder,
		store:         st,
		llm:           llm,
		tok:           tok,
		collection:    opts.Collection,
		contextTokens: opts.ContextTokens,
		cutoff:        opts.SimilarityCutoff,
		logger:        slog.Default(),
	}
}

// Answer embeds question, retrieves the k nearest passages and synthesizes
// an answer with mode. An empty retrieval result is not an error: the model
// is still asked and reports that it found nothing.
func (e *Engine) Answer(ctx context.Context, question string, k int, mode types.SynthesisMode) (*types.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, types.ErrEmptyQuestion
	}
	if mode == "" {
		mode = types.ModeCompact
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown synthesis mode %q", mode)
	}
	if k <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d", k)
	}

	start := time.Now()
	chunks, err := e.Retrieve(ctx, question, k)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = passageText(c)
	}

	var text string
	switch mode {
	case types.ModeTreeSummarize:
		text, err = e.treeSummarize(ctx, question, texts)
	default:
		text, err = e.compact(ctx, question, texts)
	}
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	e.logger.Info("question answered", "stage", "answer", "mode", mode, "k", k,
		"sources", len(chunks), "took", time.Since(start))
	return &types.Answer{
		Question: question,
		Text:     text,
		Sources:  chunks,
		Mode:     mode,
	}, nil
}

// Retrieve returns up to k passages ranked by similarity to question.
func (e *Engine) Retrieve(ctx context.Context, question string, k int) ([]types.Chunk, error) {
	vec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	col, err := e.store.Collection(ctx, e.collection)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", e.collection, err)
	}
	if len(vec) != col.Dimension {
		return nil, fmt.Errorf("%w: question has %d, collection %s has %d",
			types.ErrDimensionMismatch, len(vec), col.Name, col.Dimension)
	}

	chunks, err := e.store.Search(ctx, e.collection, vec, k)
	if err != nil {
		if errors.Is(err, types.ErrDimensionMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("search: %w", err)
	}

	chunks = e.filterChunks(chunks)
	if chunks == nil {
		chunks = []types.Chunk{}
	}
	e.logger.Debug("passages retrieved", "stage", "retrieve", "count", len(chunks))
	return chunks, nil
}

func (e *Engine) filterChunks(chunks []types.Chunk) []types.Chunk {
	if e.cutoff <= 0 {
		return chunks
	}
	result := make([]types.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Score.Valid && c.Score.Float64 < e.cutoff {
			e.logger.Debug("passage filtered", "stage", "retrieve", "similarity", c.Score.Float64, "cutoff", e.cutoff)
			continue
		}
		result = append(result, c)
	}
	return result
}
