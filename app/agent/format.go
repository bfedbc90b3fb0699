package agent

import (
	"fmt"
	"strings"

	"ustawy/types"
)

const (
	DefaultMaxSources = 3
	excerptRunes      = 200
	unknownDocument   = "nieznany dokument"
)

// Format renders the answer text followed, when there are sources, by a
// numbered list of at most maxSources of them in rank order.
func Format(answer *types.Answer, maxSources int) string {
	if answer == nil {
		return ""
	}
	if maxSources <= 0 {
		maxSources = DefaultMaxSources
	}

	var b strings.Builder
	b.WriteString(answer.Text)
	if len(answer.Sources) == 0 {
		return b.String()
	}

	b.WriteString("\n\n---\nŹródła:\n")
	for i, src := range answer.Sources {
		if i == maxSources {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, sourceLine(src))
		fmt.Fprintf(&b, "   „%s”\n", excerpt(src.Content))
	}
	return strings.TrimRight(b.String(), "\n")
}

func sourceLine(c types.Chunk) string {
	parts := make([]string, 0, 3)

	name := c.Metadata.FileName()
	if name == "" {
		name = unknownDocument
	}
	parts = append(parts, name)

	if page := c.Metadata.PageLabel(); page != "" {
		parts = append(parts, "Strona: "+page)
	}
	if c.Score.Valid {
		parts = append(parts, fmt.Sprintf("podobieństwo: %.3f", c.Score.Float64))
	}
	return strings.Join(parts, ", ")
}

func excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) > excerptRunes {
		runes = runes[:excerptRunes]
	}
	return string(runes) + "..."
}
