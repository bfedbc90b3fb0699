package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ustawy/config"
)

// DefaultSystemPrompt is sent with every generation request unless overridden.
const DefaultSystemPrompt = `Jesteś asystentem prawnym odpowiadającym na pytania o przepisy dotyczące pomocy obywatelom Ukrainy.
Odpowiadaj wyłącznie po polsku, jasno i na temat, tylko na podstawie dostarczonego kontekstu.
Jeśli kontekst jest pusty lub nie zawiera odpowiedzi, napisz: "Nie znalazłem informacji na ten temat w dostępnych dokumentach."
Nie dodawaj wstępów typu "Oczywiście!" ani "Oto odpowiedź:".`

var _ Generator = (*OllamaGenerator)(nil)

// OllamaGenerator calls the Ollama /api/generate endpoint.
type OllamaGenerator struct {
	client *http.Client
	url    string
	model  string
	system string
	logger *slog.Logger
}

type GenerateRequest struct {
	Model  string `json:"model"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type GenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func NewOllamaGenerator(cfg config.LLMConfig) *OllamaGenerator {
	system := cfg.System
	if strings.TrimSpace(system) == "" {
		system = DefaultSystemPrompt
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &OllamaGenerator{
		client: &http.Client{Timeout: timeout},
		url:    cfg.URL,
		model:  cfg.Model,
		system: system,
		logger: slog.Default(),
	}
}

func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	defer func() {
		g.logger.Debug("llm answer", "stage", "generate", "model", g.model, "took", time.Since(start))
	}()

	reqBody, err := json.Marshal(GenerateRequest{
		Model:  g.model,
		System: g.system,
		Prompt: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return decodeGenerate(body)
}

// decodeGenerate accepts a single JSON object or an NDJSON stream of chunks.
func decodeGenerate(body []byte) (string, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	var b strings.Builder
	chunks := 0
	for decoder.More() {
		var chunk GenerateResponse
		if err := decoder.Decode(&chunk); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("ollama error: %s", chunk.Error)
		}
		b.WriteString(chunk.Response)
		chunks++
		if chunk.Done {
			break
		}
	}
	if chunks == 0 {
		return "", fmt.Errorf("decode response: empty body")
	}
	return b.String(), nil
}
