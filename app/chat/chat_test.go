package chat

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ustawy/types"
)

type stubEngine struct {
	answer    func(question string) (*types.Answer, error)
	questions []string
	lastK     int
	lastMode  types.SynthesisMode
}

func (s *stubEngine) Answer(_ context.Context, question string, k int, mode types.SynthesisMode) (*types.Answer, error) {
	s.questions = append(s.questions, question)
	s.lastK, s.lastMode = k, mode
	return s.answer(question)
}

func echo(question string) (*types.Answer, error) {
	return &types.Answer{Question: question, Text: "Odpowiedź na: " + question, Sources: []types.Chunk{}}, nil
}

func defaultSettings() *SettingsStore {
	return NewSettingsStore(Settings{TopK: 3, Mode: types.ModeCompact, MaxSources: 3})
}

func TestNewSessionGreets(t *testing.T) {
	s := NewSession(&stubEngine{answer: echo}, defaultSettings())

	assert.Equal(t, AwaitingInput, s.State())
	tr := s.Transcript()
	require.Len(t, tr, 1)
	assert.Equal(t, types.RoleAssistant, tr[0].Role)
	assert.Equal(t, Greeting, tr[0].Content)
}

func TestTwoTurns(t *testing.T) {
	engine := &stubEngine{}
	s := NewSession(engine, defaultSettings())

	var beforeSecondReply []types.ChatMessage
	engine.answer = func(q string) (*types.Answer, error) {
		if q == "Pytanie 2" {
			beforeSecondReply = s.Transcript()
			assert.Equal(t, AwaitingResponse, s.State())
		}
		return echo(q)
	}

	_, err := s.Submit(context.Background(), "Pytanie 1")
	require.NoError(t, err)
	reply, err := s.Submit(context.Background(), "Pytanie 2")
	require.NoError(t, err)
	assert.Equal(t, "Odpowiedź na: Pytanie 2", reply.Content)

	require.Len(t, beforeSecondReply, 4)
	assert.Equal(t, []types.Role{types.RoleAssistant, types.RoleUser, types.RoleAssistant, types.RoleUser},
		roles(beforeSecondReply))
	assert.Equal(t, "Pytanie 2", beforeSecondReply[3].Content)

	tr := s.Transcript()
	require.Len(t, tr, 5)
	assert.Equal(t, types.RoleAssistant, tr[4].Role)
	assert.Equal(t, AwaitingInput, s.State())
	assert.Equal(t, []string{"Pytanie 1", "Pytanie 2"}, engine.questions)
}

func roles(msgs []types.ChatMessage) []types.Role {
	out := make([]types.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func TestFailedTurnKeepsSessionUsable(t *testing.T) {
	fail := true
	engine := &stubEngine{answer: func(q string) (*types.Answer, error) {
		if fail {
			return nil, errors.New("ollama: connection refused")
		}
		return echo(q)
	}}
	s := NewSession(engine, defaultSettings())

	_, err := s.Submit(context.Background(), "Pytanie")
	require.Error(t, err)

	var turnErr *TurnError
	require.ErrorAs(t, err, &turnErr)
	assert.Equal(t, "Błąd: ollama: connection refused", turnErr.Message())

	tr := s.Transcript()
	require.Len(t, tr, 2, "only the user message is added")
	assert.Equal(t, types.RoleUser, tr[1].Role)
	assert.Equal(t, AwaitingInput, s.State())

	fail = false
	_, err = s.Submit(context.Background(), "Pytanie ponownie")
	require.NoError(t, err)
	assert.Len(t, s.Transcript(), 4)
}

func TestSubmitWhileAwaitingResponse(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	engine := &stubEngine{answer: func(q string) (*types.Answer, error) {
		close(started)
		<-release
		return echo(q)
	}}
	s := NewSession(engine, defaultSettings())

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), "Pierwsze")
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first turn never started")
	}

	_, err := s.Submit(context.Background(), "Drugie")
	assert.ErrorIs(t, err, ErrTurnInProgress)

	close(release)
	require.NoError(t, <-done)

	tr := s.Transcript()
	require.Len(t, tr, 3)
	assert.Equal(t, "Pierwsze", tr[1].Content)
}

func TestSubmitEmptyMessage(t *testing.T) {
	s := NewSession(&stubEngine{answer: echo}, defaultSettings())
	_, err := s.Submit(context.Background(), "  \t")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Len(t, s.Transcript(), 1)
}

func TestTranscriptIsACopy(t *testing.T) {
	s := NewSession(&stubEngine{answer: echo}, defaultSettings())
	tr := s.Transcript()
	tr[0].Content = "zmienione"
	assert.Equal(t, Greeting, s.Transcript()[0].Content)
}

func TestShowSources(t *testing.T) {
	engine := &stubEngine{answer: func(q string) (*types.Answer, error) {
		return &types.Answer{
			Text: "Tak.",
			Sources: []types.Chunk{{
				Content:  "Odciski palców pobiera się.",
				Metadata: types.Metadata{types.MetaFileName: "ustawa.pdf", types.MetaPageLabel: "12"},
				Score:    sql.NullFloat64{Float64: 0.9, Valid: true},
			}},
		}, nil
	}}
	settings := NewSettingsStore(Settings{TopK: 1, Mode: types.ModeTreeSummarize, MaxSources: 3})
	s := NewSession(engine, settings)

	reply, err := s.Submit(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "Tak.", reply.Content)
	assert.Equal(t, 1, engine.lastK)
	assert.Equal(t, types.ModeTreeSummarize, engine.lastMode)

	show := true
	settings.Update(types.SettingsParams{ShowSources: &show})
	reply, err = s.Submit(context.Background(), "q")
	require.NoError(t, err)
	assert.Contains(t, reply.Content, "Źródła:")
	assert.Contains(t, reply.Content, "ustawa.pdf, Strona: 12, podobieństwo: 0.900")
}

func TestSettingsUpdate(t *testing.T) {
	st := defaultSettings()
	k, mode := 7, "tree_summarize"
	got := st.Update(types.SettingsParams{TopK: &k, SynthesisMode: &mode})

	assert.Equal(t, 7, got.TopK)
	assert.Equal(t, types.ModeTreeSummarize, got.Mode)
	assert.Equal(t, 3, got.MaxSources, "untouched")
	assert.Equal(t, got, st.Get())
}

func TestManager(t *testing.T) {
	m := NewManager(&stubEngine{answer: echo}, defaultSettings())

	a := m.Create()
	b := m.Create()
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, m.Len())

	got, err := m.Get(a.ID)
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = a.Submit(context.Background(), "tylko w a")
	require.NoError(t, err)
	assert.Len(t, a.Transcript(), 3)
	assert.Len(t, b.Transcript(), 1, "sessions are independent")

	require.NoError(t, m.Delete(a.ID))
	_, err = m.Get(a.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, m.Delete(uuid.New()), types.ErrNotFound)
}
