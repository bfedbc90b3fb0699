package model

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts and truncates text in model tokens.
type Tokenizer interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// TokenCounter uses the cl100k_base BPE. Local models use other vocabularies,
// so counts are an approximation good enough for context budgeting.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

func NewTokenCounter() (*TokenCounter, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}
	return &TokenCounter{encoding: encoding}, nil
}

func (tc *TokenCounter) Count(text string) int {
	return len(tc.encoding.Encode(text, nil, nil))
}

func (tc *TokenCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	tokens := tc.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return tc.encoding.Decode(tokens[:maxTokens])
}

// WordTokenizer treats whitespace-separated words as tokens. It is the
// fallback when the BPE ranks cannot be loaded.
type WordTokenizer struct{}

func (WordTokenizer) Count(text string) int { return len(strings.Fields(text)) }

func (WordTokenizer) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) <= maxTokens {
		return text
	}
	return strings.Join(words[:maxTokens], " ")
}

// NewTokenizer returns a TokenCounter, or WordTokenizer with the load error
// when the encoding is unavailable (it is fetched on first use).
func NewTokenizer() (Tokenizer, error) {
	tc, err := NewTokenCounter()
	if err != nil {
		return WordTokenizer{}, err
	}
	return tc, nil
}
