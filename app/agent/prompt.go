package agent

import (
	"fmt"
	"strings"

	"ustawy/types"
)

const emptyContext = "(brak pasujących fragmentów)"

func qaPrompt(context, question string) string {
	if strings.TrimSpace(context) == "" {
		context = emptyContext
	}
	return fmt.Sprintf(`Kontekst:
---------------------
%s
---------------------
Na podstawie powyższego kontekstu, a nie wcześniejszej wiedzy, odpowiedz na pytanie.
Jeśli kontekst nie zawiera odpowiedzi, napisz, że nie znaleziono informacji na ten temat.
Pytanie: %s
Odpowiedź:`, context, question)
}

func summaryPrompt(context, question string) string {
	return fmt.Sprintf(`Poniżej znajdują się fragmenty przepisów.
---------------------
%s
---------------------
Streść informacje z tych fragmentów, które pomagają odpowiedzieć na pytanie.
Pytanie: %s
Streszczenie:`, context, question)
}

// passageText renders a retrieved chunk with its origin so the model can
// tell passages of different documents apart.
func passageText(c types.Chunk) string {
	var b strings.Builder
	b.WriteString("[")
	name := c.Metadata.FileName()
	if name == "" {
		name = unknownDocument
	}
	b.WriteString(name)
	if page := c.Metadata.PageLabel(); page != "" {
		b.WriteString(", strona ")
		b.WriteString(page)
	}
	b.WriteString("]\n")
	b.WriteString(strings.TrimSpace(c.Content))
	return b.String()
}

func joinPassages(texts []string) string {
	return strings.Join(texts, "\n\n")
}
