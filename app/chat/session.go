package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ustawy/app/agent"
	"ustawy/types"
)

const Greeting = "Dzień dobry! Jestem asystentem prawnym. Zadaj pytanie o przepisy dotyczące pomocy obywatelom Ukrainy."

var (
	ErrTurnInProgress = errors.New("previous question is still being answered")
	ErrEmptyMessage   = errors.New("message is empty")
)

// Answerer is the retrieval and synthesis step behind a chat turn.
type Answerer interface {
	Answer(ctx context.Context, question string, k int, mode types.SynthesisMode) (*types.Answer, error)
}

type State int

const (
	AwaitingInput State = iota
	AwaitingResponse
)

func (s State) String() string {
	if s == AwaitingResponse {
		return "awaiting_response"
	}
	return "awaiting_input"
}

// TurnError is a failed turn. The transcript keeps the user message and gets
// no assistant reply; the session accepts the next submission.
type TurnError struct {
	Err error
}

func (e *TurnError) Error() string { return "chat turn failed: " + e.Err.Error() }
func (e *TurnError) Unwrap() error { return e.Err }

// Message is the text shown to the user in place of an answer.
func (e *TurnError) Message() string { return "Błąd: " + e.Err.Error() }

// Session is one conversation. Turns are strictly sequential: a new message
// is refused while the previous one is being answered.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	engine   Answerer
	settings *SettingsStore

	mu       sync.Mutex
	state    State
	messages []types.ChatMessage
}

func NewSession(engine Answerer, settings *SettingsStore) *Session {
	return &Session{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		engine:    engine,
		settings:  settings,
		state:     AwaitingInput,
		messages:  []types.ChatMessage{{Role: types.RoleAssistant, Content: Greeting}},
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns a copy of the messages so far.
func (s *Session) Transcript() []types.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Submit records text as a user message, answers it and records the reply.
// On failure the returned error is a *TurnError and nothing but the user
// message is added.
func (s *Session) Submit(ctx context.Context, text string) (types.ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return types.ChatMessage{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.state == AwaitingResponse {
		s.mu.Unlock()
		return types.ChatMessage{}, ErrTurnInProgress
	}
	s.messages = append(s.messages, types.ChatMessage{Role: types.RoleUser, Content: text})
	s.state = AwaitingResponse
	s.mu.Unlock()

	cfg := s.settings.Get()
	answer, err := s.engine.Answer(ctx, text, cfg.TopK, cfg.Mode)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = AwaitingInput

	if err != nil {
		return types.ChatMessage{}, &TurnError{Err: err}
	}

	content := answer.Text
	if cfg.ShowSources {
		content = agent.Format(answer, cfg.MaxSources)
	}
	reply := types.ChatMessage{Role: types.RoleAssistant, Content: content}
	s.messages = append(s.messages, reply)
	return reply, nil
}
