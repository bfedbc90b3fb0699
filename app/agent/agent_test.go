package agent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ustawy/model"
	"ustawy/store"
	"ustawy/types"
)

const noInfo = "Nie znalazłem informacji na ten temat w dostępnych dokumentach."

type fakeEmbedder struct {
	dim     int
	vectors map[string][]float32
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	v := make([]float32, f.dim)
	v[len(v)-1] = 1
	return v, nil
}

type fakeLLM struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
}

func (f *fakeLLM) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.reply(prompt)
}

func replyWith(text string) func(string) (string, error) {
	return func(string) (string, error) { return text, nil }
}

// countingStore records Search calls on top of a MemoryStore.
type countingStore struct {
	*store.MemoryStore
	searches int
}

func (c *countingStore) Search(ctx context.Context, collection string, q []float32, k int) ([]types.Chunk, error) {
	c.searches++
	return c.MemoryStore.Search(ctx, collection, q, k)
}

func newStore(t *testing.T, dim int, chunks ...types.Chunk) *countingStore {
	t.Helper()
	st := &countingStore{MemoryStore: store.NewMemoryStore()}
	_, err := st.GetOrCreateCollection(context.Background(), "pomoc_ukrainie", dim)
	require.NoError(t, err)
	if len(chunks) > 0 {
		require.NoError(t, st.Upsert(context.Background(), "pomoc_ukrainie", chunks))
	}
	return st
}

func passage(text, file, page string, vec ...float32) types.Chunk {
	meta := types.Metadata{}
	if file != "" {
		meta[types.MetaFileName] = file
	}
	if page != "" {
		meta[types.MetaPageLabel] = page
	}
	return types.Chunk{ID: uuid.New(), DocID: uuid.New(), Content: text, Metadata: meta, Embedding: vec}
}

func newEngine(emb model.Embedder, st store.VectorStore, llm model.Generator, contextTokens int) *Engine {
	return NewEngine(emb, st, llm, model.WordTokenizer{}, Options{
		Collection:    "pomoc_ukrainie",
		ContextTokens: contextTokens,
	})
}

func TestAnswerEmptyCollection(t *testing.T) {
	st := newStore(t, 3)
	llm := &fakeLLM{reply: replyWith(noInfo)}
	e := newEngine(&fakeEmbedder{dim: 3}, st, llm, 3000)

	for _, mode := range []types.SynthesisMode{types.ModeCompact, types.ModeTreeSummarize} {
		llm.prompts = nil
		ans, err := e.Answer(context.Background(), "Kto płaci za szkołę?", 3, mode)
		require.NoError(t, err)

		assert.Equal(t, noInfo, ans.Text)
		assert.NotNil(t, ans.Sources)
		assert.Empty(t, ans.Sources)
		require.Len(t, llm.prompts, 1, "model is still asked")
		assert.Contains(t, llm.prompts[0], emptyContext)
		assert.Equal(t, noInfo, Format(ans, 3))
	}
}

func TestAnswerSinglePassage(t *testing.T) {
	st := newStore(t, 3, passage("Odciski palców pobiera się od osób powyżej 12 roku życia.", "ustawa.pdf", "12", 1, 0, 0))
	emb := &fakeEmbedder{dim: 3, vectors: map[string][]float32{
		"odciski palców": {0.8, 0.6, 0},
	}}
	llm := &fakeLLM{reply: replyWith("Od osób powyżej 12 roku życia.")}
	e := newEngine(emb, st, llm, 3000)

	ans, err := e.Answer(context.Background(), "odciski palców", 1, types.ModeCompact)
	require.NoError(t, err)

	require.Len(t, ans.Sources, 1)
	assert.InDelta(t, 0.8, ans.Sources[0].Score.Float64, 1e-6)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "Odciski palców pobiera się")
	assert.Contains(t, llm.prompts[0], "Pytanie: odciski palców")

	out := Format(ans, 3)
	assert.True(t, strings.HasPrefix(out, "Od osób powyżej 12 roku życia."))
	assert.Contains(t, out, "ustawa.pdf")
	assert.Contains(t, out, "Strona: 12")
	assert.Regexp(t, regexp.MustCompile(`0\.\d{3}`), out)
	assert.Contains(t, out, "podobieństwo: 0.800")
}

func TestAnswerDimensionMismatch(t *testing.T) {
	st := newStore(t, 3, passage("x", "a.pdf", "1", 1, 0, 0))
	llm := &fakeLLM{reply: replyWith("nie")}
	e := newEngine(&fakeEmbedder{dim: 2}, st, llm, 3000)

	_, err := e.Answer(context.Background(), "pytanie", 3, types.ModeCompact)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
	assert.Zero(t, st.searches, "rejected before querying")
	assert.Empty(t, llm.prompts)
}

func TestAnswerMissingCollection(t *testing.T) {
	st := &countingStore{MemoryStore: store.NewMemoryStore()}
	e := newEngine(&fakeEmbedder{dim: 3}, st, &fakeLLM{reply: replyWith("x")}, 3000)

	_, err := e.Answer(context.Background(), "pytanie", 3, types.ModeCompact)
	assert.ErrorIs(t, err, types.ErrCollectionNotFound)
}

func TestAnswerGenerationFailure(t *testing.T) {
	st := newStore(t, 3)
	boom := errors.New("context deadline exceeded")

	e := newEngine(&fakeEmbedder{dim: 3}, st, &fakeLLM{reply: func(string) (string, error) { return "", boom }}, 3000)
	_, err := e.Answer(context.Background(), "pytanie", 3, types.ModeCompact)
	assert.ErrorIs(t, err, boom)

	e = newEngine(&fakeEmbedder{dim: 3}, st, &fakeLLM{reply: replyWith("   \n")}, 3000)
	_, err = e.Answer(context.Background(), "pytanie", 3, types.ModeCompact)
	assert.ErrorIs(t, err, types.ErrEmptyResponse)
}

func TestAnswerRejectsBadInput(t *testing.T) {
	e := newEngine(&fakeEmbedder{dim: 3}, newStore(t, 3), &fakeLLM{reply: replyWith("x")}, 3000)

	_, err := e.Answer(context.Background(), "   ", 3, types.ModeCompact)
	assert.ErrorIs(t, err, types.ErrEmptyQuestion)

	_, err = e.Answer(context.Background(), "pytanie", 0, types.ModeCompact)
	assert.Error(t, err)

	_, err = e.Answer(context.Background(), "pytanie", 3, "refine")
	assert.Error(t, err)
}

func words(n int, word string) string {
	return strings.TrimSpace(strings.Repeat(word+" ", n))
}

func fourLongPassages() []types.Chunk {
	var chunks []types.Chunk
	for i := 0; i < 4; i++ {
		chunks = append(chunks, passage(words(40, fmt.Sprintf("słowo%d", i)), "ustawa.pdf", fmt.Sprint(i+1), 1, float32(i)/10, 0))
	}
	return chunks
}

func TestCompactTruncatesToBudget(t *testing.T) {
	st := newStore(t, 3, fourLongPassages()...)
	llm := &fakeLLM{reply: replyWith("odpowiedź")}
	e := newEngine(&fakeEmbedder{dim: 3, vectors: map[string][]float32{"pytanie": {1, 0, 0}}}, st, llm, 1)

	ans, err := e.Answer(context.Background(), "pytanie", 4, types.ModeCompact)
	require.NoError(t, err)
	assert.Len(t, ans.Sources, 4)

	require.Len(t, llm.prompts, 1, "compact never recurses")
	overhead := model.WordTokenizer{}.Count(qaPrompt("", "pytanie"))
	assert.LessOrEqual(t, model.WordTokenizer{}.Count(llm.prompts[0]), minBudget+overhead)
	assert.NotContains(t, llm.prompts[0], "słowo3", "tail is cut")
}

func TestTreeSummarize(t *testing.T) {
	st := newStore(t, 3, fourLongPassages()...)
	llm := &fakeLLM{reply: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Streszczenie:") {
			return "krótkie streszczenie", nil
		}
		return "odpowiedź końcowa", nil
	}}
	e := newEngine(&fakeEmbedder{dim: 3, vectors: map[string][]float32{"pytanie": {1, 0, 0}}}, st, llm, 1)

	ans, err := e.Answer(context.Background(), "pytanie", 4, types.ModeTreeSummarize)
	require.NoError(t, err)
	assert.Equal(t, "odpowiedź końcowa", ans.Text)
	assert.Equal(t, types.ModeTreeSummarize, ans.Mode)
	assert.Len(t, ans.Sources, 4)

	require.Len(t, llm.prompts, 5, "four group summaries and one answer")
	for _, p := range llm.prompts[:4] {
		assert.Contains(t, p, "Streszczenie:")
		assert.Contains(t, p, "Pytanie: pytanie")
	}
	final := llm.prompts[4]
	assert.Contains(t, final, "Odpowiedź:")
	assert.Equal(t, 4, strings.Count(final, "krótkie streszczenie"))
}

func TestTreeSummarizeFitsInOneCall(t *testing.T) {
	st := newStore(t, 3, passage("Krótki fragment.", "a.pdf", "1", 1, 0, 0))
	llm := &fakeLLM{reply: replyWith("ok")}
	e := newEngine(&fakeEmbedder{dim: 3}, st, llm, 3000)

	_, err := e.Answer(context.Background(), "pytanie", 3, types.ModeTreeSummarize)
	require.NoError(t, err)
	assert.Len(t, llm.prompts, 1)
}

func TestSimilarityCutoff(t *testing.T) {
	st := newStore(t, 2,
		passage("blisko", "a.pdf", "1", 1, 0),
		passage("daleko", "b.pdf", "1", 0, 1),
	)
	e := NewEngine(&fakeEmbedder{dim: 2, vectors: map[string][]float32{"q": {1, 0}}}, st,
		&fakeLLM{reply: replyWith("ok")}, model.WordTokenizer{},
		Options{Collection: "pomoc_ukrainie", SimilarityCutoff: 0.5})

	ans, err := e.Answer(context.Background(), "q", 2, types.ModeCompact)
	require.NoError(t, err)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "blisko", ans.Sources[0].Content)
}

func scored(c types.Chunk, score float64) types.Chunk {
	c.Score = sql.NullFloat64{Float64: score, Valid: true}
	return c
}

func TestFormat(t *testing.T) {
	long := strings.Repeat("ż", 250)
	answer := &types.Answer{
		Text: "Odpowiedź.",
		Sources: []types.Chunk{
			scored(passage("pierwszy", "ustawa.pdf", "12", 1), 0.8734),
			scored(passage("drugi", "", "3", 1), 0.5),
			passage(long, "rozporządzenie.pdf", "", 1),
			scored(passage("czwarty", "d.pdf", "1", 1), 0.1),
		},
	}
	before := fmt.Sprintf("%+v", *answer)

	out := Format(answer, 3)
	want := "Odpowiedź.\n\n---\nŹródła:\n" +
		"1. ustawa.pdf, Strona: 12, podobieństwo: 0.873\n" +
		"   „pierwszy...”\n" +
		"2. nieznany dokument, Strona: 3, podobieństwo: 0.500\n" +
		"   „drugi...”\n" +
		"3. rozporządzenie.pdf\n" +
		"   „" + strings.Repeat("ż", 200) + "...”"
	assert.Equal(t, want, out)
	assert.NotContains(t, out, "czwarty")
	assert.Equal(t, before, fmt.Sprintf("%+v", *answer), "answer is not mutated")

	t.Run("default max sources", func(t *testing.T) {
		out := Format(answer, 0)
		assert.Contains(t, out, "3. ")
		assert.NotContains(t, out, "4. ")
	})

	t.Run("fewer sources than max", func(t *testing.T) {
		out := Format(&types.Answer{Text: "A", Sources: answer.Sources[:1]}, 5)
		assert.Contains(t, out, "1. ustawa.pdf")
		assert.NotContains(t, out, "2. ")
	})

	t.Run("no sources", func(t *testing.T) {
		assert.Equal(t, "A", Format(&types.Answer{Text: "A", Sources: []types.Chunk{}}, 3))
	})
}
