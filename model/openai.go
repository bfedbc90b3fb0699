package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"ustawy/config"
	"ustawy/types"
)

var (
	_ Embedder  = (*OpenAIEmbedder)(nil)
	_ Generator = (*OpenAIGenerator)(nil)
)

// OpenAIEmbedder talks to any OpenAI-compatible embeddings endpoint
// (OpenAI itself, Ollama's /v1, vLLM, ...).
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
}

func clientOptions(url, apiKey string) []option.RequestOption {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	} else {
		// local servers ignore the key but the SDK insists on one
		opts = append(opts, option.WithAPIKey("unused"))
	}
	if url != "" {
		opts = append(opts, option.WithBaseURL(url))
	}
	return opts
}

func NewOpenAIEmbedder(cfg config.EmbeddingConfig) *OpenAIEmbedder {
	opts := clientOptions(cfg.URL, cfg.APIKey)
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAIEmbedder{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}
}

func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	}
	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings generated")
	}

	raw := resp.Data[0].Embedding
	if e.dimension > 0 && len(raw) != e.dimension {
		return nil, fmt.Errorf("%w: model %s returned %d, configured %d",
			types.ErrDimensionMismatch, e.model, len(raw), e.dimension)
	}
	vector := make([]float32, len(raw))
	for i, v := range raw {
		vector[i] = float32(v)
	}
	return vector, nil
}

// OpenAIGenerator uses the chat completions API with a system message.
type OpenAIGenerator struct {
	client openai.Client
	model  string
	system string
}

func NewOpenAIGenerator(cfg config.LLMConfig) *OpenAIGenerator {
	system := cfg.System
	if strings.TrimSpace(system) == "" {
		system = DefaultSystemPrompt
	}
	opts := clientOptions(cfg.URL, cfg.APIKey)
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAIGenerator{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		system: system,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(g.system),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices returned")
	}
	return completion.Choices[0].Message.Content, nil
}
