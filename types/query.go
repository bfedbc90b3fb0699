package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Validater interface {
	Validate() map[string]string
}

type QueryParams struct {
	Prompt string        `json:"prompt" validate:"required,max=4000"`
	TopK   int           `json:"top_k" validate:"omitempty,min=1,max=50"`
	Mode   SynthesisMode `json:"mode" validate:"omitempty,oneof=compact tree_summarize"`
}

type MessageParams struct {
	Content string `json:"content" validate:"required,max=4000"`
}

// SettingsParams is a partial update of the engine defaults. Nil fields are left as is.
type SettingsParams struct {
	TopK          *int    `json:"top_k,omitempty" validate:"omitempty,min=1,max=50"`
	SynthesisMode *string `json:"synthesis_mode,omitempty" validate:"omitempty,oneof=compact tree_summarize"`
	MaxSources    *int    `json:"max_sources,omitempty" validate:"omitempty,min=1,max=20"`
	ShowSources   *bool   `json:"show_sources,omitempty"`
}

func (p *SettingsParams) Empty() bool {
	return p.TopK == nil && p.SynthesisMode == nil && p.MaxSources == nil && p.ShowSources == nil
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func (params *QueryParams) Validate() map[string]string   { return validateStruct(params) }
func (params *MessageParams) Validate() map[string]string { return validateStruct(params) }
func (params *SettingsParams) Validate() map[string]string {
	return validateStruct(params)
}

func validateStruct(s any) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return map[string]string{"request": err.Error()}
	}
	out := make(map[string]string, len(errs))
	for _, e := range errs {
		out[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return out
}

type SearchResponse struct {
	Answer    string        `json:"answer"`
	Formatted string        `json:"formatted"`
	Mode      SynthesisMode `json:"mode"`
	Sources   []Source      `json:"sources"`
	Timestamp time.Time     `json:"timestamp"`
}

type Source struct {
	DocID     string   `json:"doc_id"`
	FileName  string   `json:"file_name,omitempty"`
	PageLabel string   `json:"page_label,omitempty"`
	Score     *float64 `json:"score,omitempty"`
	ChunkText string   `json:"chunk_text"`
	Index     int      `json:"index"`
}

// NewSources converts a retrieval result into its JSON form, keeping rank order.
func NewSources(chunks []Chunk) []Source {
	sources := make([]Source, len(chunks))
	for i, ch := range chunks {
		src := Source{
			DocID:     ch.DocID.String(),
			FileName:  ch.Metadata.FileName(),
			PageLabel: ch.Metadata.PageLabel(),
			ChunkText: ch.Content,
			Index:     ch.Index,
		}
		if ch.Score.Valid {
			score := ch.Score.Float64
			src.Score = &score
		}
		sources[i] = src
	}
	return sources
}
