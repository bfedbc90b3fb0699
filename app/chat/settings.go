package chat

import (
	"sync"

	"ustawy/config"
	"ustawy/types"
)

// Settings are the engine knobs that can change while the server runs.
type Settings struct {
	TopK        int                 `json:"top_k"`
	Mode        types.SynthesisMode `json:"synthesis_mode"`
	MaxSources  int                 `json:"max_sources"`
	ShowSources bool                `json:"show_sources"`
}

func SettingsFromConfig(cfg config.EngineConfig) Settings {
	return Settings{
		TopK:        cfg.TopK,
		Mode:        types.SynthesisMode(cfg.SynthesisMode),
		MaxSources:  cfg.MaxSources,
		ShowSources: cfg.ShowSources,
	}
}

// SettingsStore is shared by every session so a change applies to the next turn.
type SettingsStore struct {
	mu sync.RWMutex
	s  Settings
}

func NewSettingsStore(s Settings) *SettingsStore {
	return &SettingsStore{s: s}
}

func (p *SettingsStore) Get() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.s
}

// Update applies the non-nil fields of params. params must be validated.
func (p *SettingsStore) Update(params types.SettingsParams) Settings {
	p.mu.Lock()
	defer p.mu.Unlock()

	if params.TopK != nil {
		p.s.TopK = *params.TopK
	}
	if params.SynthesisMode != nil {
		p.s.Mode = types.SynthesisMode(*params.SynthesisMode)
	}
	if params.MaxSources != nil {
		p.s.MaxSources = *params.MaxSources
	}
	if params.ShowSources != nil {
		p.s.ShowSources = *params.ShowSources
	}
	return p.s
}

// Examples are shown next to the chat as inspiration. They are not submitted.
var Examples = []string{
	"Jakie świadczenia przysługują obywatelom Ukrainy?",
	"Czy obywatel Ukrainy może podjąć pracę bez zezwolenia?",
	"Jak uzyskać numer PESEL dla obywatela Ukrainy?",
	"Od jakiego wieku pobiera się odciski palców?",
	"Jak długo obywatel Ukrainy może legalnie przebywać w Polsce?",
}
