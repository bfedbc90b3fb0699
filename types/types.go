package types

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Metadata keys shared by documents and chunks.
const (
	MetaFileName  = "file_name"
	MetaPageLabel = "page_label"
)

// Metadata is the source metadata copied from a Document onto every Chunk.
type Metadata map[string]string

func (m Metadata) FileName() string  { return m[MetaFileName] }
func (m Metadata) PageLabel() string { return m[MetaPageLabel] }

// Clone returns an independent copy so chunks never share the document's map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type Document struct {
	ID          uuid.UUID // content-addressed: collection + file + page
	Text        string
	Metadata    Metadata
	ContentHash string // sha256 of Text
	Source      string // pdf, text, markdown
	SourcePath  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chunk is a passage of one Document. Once embedded and stored it is an
// indexed record of its collection.
type Chunk struct {
	ID        uuid.UUID
	DocID     uuid.UUID
	Index     int
	Content   string
	Metadata  Metadata
	Embedding []float32
	Score     sql.NullFloat64 // similarity, set only on retrieval results
}

type Collection struct {
	Name      string
	Dimension int
	CreatedAt time.Time
}

type SynthesisMode string

const (
	ModeCompact       SynthesisMode = "compact"
	ModeTreeSummarize SynthesisMode = "tree_summarize"
)

func (m SynthesisMode) Valid() bool {
	return m == ModeCompact || m == ModeTreeSummarize
}

// Answer is the synthesized text plus the retrieval result it was built from.
// Sources is never nil.
type Answer struct {
	Question string
	Text     string
	Sources  []Chunk
	Mode     SynthesisMode
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DoclingResponse is the relevant part of a docling-serve /v1/convert/file reply.
type DoclingResponse struct {
	Document struct {
		MdContent string `json:"md_content"`
	} `json:"document"`
}
