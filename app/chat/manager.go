package chat

import (
	"sync"

	"github.com/google/uuid"

	"ustawy/types"
)

// Manager keeps the open sessions of all users.
type Manager struct {
	engine   Answerer
	settings *SettingsStore

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewManager(engine Answerer, settings *SettingsStore) *Manager {
	return &Manager{
		engine:   engine,
		settings: settings,
		sessions: make(map[uuid.UUID]*Session),
	}
}

func (m *Manager) Settings() *SettingsStore { return m.settings }

func (m *Manager) Create() *Session {
	s := NewSession(m.engine, m.settings)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns types.ErrNotFound for unknown ids.
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return s, nil
}

func (m *Manager) Delete(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return types.ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
