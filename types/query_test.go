package types

import (
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		params QueryParams
		field  string
	}{
		{name: "ok", params: QueryParams{Prompt: "Kto może ubiegać się o pomoc?"}},
		{name: "missing prompt", params: QueryParams{}, field: "Prompt"},
		{name: "top_k too large", params: QueryParams{Prompt: "q", TopK: 51}, field: "TopK"},
		{name: "unknown mode", params: QueryParams{Prompt: "q", Mode: "refine"}, field: "Mode"},
		{name: "tree mode", params: QueryParams{Prompt: "q", Mode: ModeTreeSummarize}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(&tt.params)
			if tt.field == "" {
				assert.Empty(t, errs)
				return
			}
			require.Contains(t, errs, tt.field)
		})
	}
}

func TestSettingsParams(t *testing.T) {
	var p SettingsParams
	assert.True(t, p.Empty())
	assert.Empty(t, Validate(&p))

	mode := "refine"
	p.SynthesisMode = &mode
	assert.False(t, p.Empty())
	assert.Contains(t, Validate(&p), "SynthesisMode")

	zero := 0
	p = SettingsParams{MaxSources: &zero}
	assert.Contains(t, Validate(&p), "MaxSources")
}

func TestNewSourcesKeepsOrderAndOptionalScore(t *testing.T) {
	doc := uuid.New()
	chunks := []Chunk{
		{DocID: doc, Index: 3, Content: "b", Metadata: Metadata{MetaFileName: "ustawa.pdf", MetaPageLabel: "12"},
			Score: sql.NullFloat64{Float64: 0.9, Valid: true}},
		{DocID: doc, Index: 1, Content: "a"},
	}

	sources := NewSources(chunks)
	require.Len(t, sources, 2)
	assert.Equal(t, 3, sources[0].Index)
	assert.Equal(t, "ustawa.pdf", sources[0].FileName)
	require.NotNil(t, sources[0].Score)
	assert.InDelta(t, 0.9, *sources[0].Score, 1e-9)
	assert.Nil(t, sources[1].Score)
	assert.Empty(t, sources[1].PageLabel)
}

func TestMetadataClone(t *testing.T) {
	m := Metadata{MetaFileName: "a.pdf"}
	c := m.Clone()
	c[MetaFileName] = "b.pdf"
	assert.Equal(t, "a.pdf", m.FileName())
	assert.Equal(t, "b.pdf", c.FileName())
	assert.True(t, ModeCompact.Valid())
	assert.False(t, SynthesisMode("").Valid())
}
