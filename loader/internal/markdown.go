package internal

import (
	"regexp"
	"strings"
)

type mdTokenType int

const (
	tokenText mdTokenType = iota
	tokenImage
	tokenTable
)

type mdToken struct {
	Type    mdTokenType
	Content string
	Table   []TableRow
}

type TableRow struct {
	Key   string
	Value string
}

var (
	imgRegex = regexp.MustCompile(
		`!\[[^\]]*\]\(data:image\/[a-zA-Z]+;base64,([^)]+)\)`,
	)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// CleanMarkdown turns docling markdown into plain passage text: embedded
// images are dropped and two-column tables become "key: value." lines.
func CleanMarkdown(md string) string {
	tokens := mergeAdjacentText(tokenizeMD(md))

	var b strings.Builder
	for _, t := range tokens {
		switch t.Type {
		case tokenText:
			b.WriteString(t.Content)
			b.WriteString("\n\n")
		case tokenTable:
			for _, row := range t.Table {
				b.WriteString(row.Key)
				if row.Value != "" {
					b.WriteString(": ")
					b.WriteString(row.Value)
				}
				if !strings.HasSuffix(row.Value, ".") {
					b.WriteString(".")
				}
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(b.String(), "\n\n"))
}

func tokenizeMD(md string) []mdToken {
	lines := strings.Split(md, "\n")
	var tokens []mdToken

	var buf strings.Builder

	flushText := func() {
		if strings.TrimSpace(buf.String()) != "" {
			tokens = append(tokens, mdToken{
				Type:    tokenText,
				Content: strings.TrimSpace(buf.String()),
			})
		}
		buf.Reset()
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if isSeparatorRow(line) {
			// header rows above the separator were buffered as text
			flushTableHead(&buf, lines, i)
			flushText()
			rows, next := parseLooseMarkdownTable(lines, i)
			tokens = append(tokens, mdToken{Type: tokenTable, Table: rows})
			i = next - 1
			continue
		}

		if imgRegex.MatchString(line) {
			flushText()
			tokens = append(tokens, mdToken{Type: tokenImage})
			rest := strings.TrimSpace(imgRegex.ReplaceAllString(line, ""))
			if rest != "" {
				buf.WriteString(rest)
				buf.WriteString("\n")
			}
			continue
		}

		buf.WriteString(line)
		buf.WriteString("\n")
	}

	flushText()
	return tokens
}

// flushTableHead removes the table rows directly above lines[sep] from buf.
func flushTableHead(buf *strings.Builder, lines []string, sep int) {
	n := 0
	for j := sep - 1; j >= 0 && isTableRow(lines[j]); j-- {
		n++
	}
	if n == 0 {
		return
	}
	kept := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(kept) < n {
		n = len(kept)
	}
	kept = kept[:len(kept)-n]
	buf.Reset()
	if len(kept) > 0 {
		buf.WriteString(strings.Join(kept, "\n"))
		buf.WriteString("\n")
	}
}

func isTableRow(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "|") && strings.Count(line, "|") >= 2
}

func isSeparatorRow(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "|") && strings.Contains(line, "---")
}

func splitRow(line string) []string {
	parts := strings.Split(line, "|")
	var cells []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}

func rowOf(cells []string) (TableRow, bool) {
	switch len(cells) {
	case 0:
		return TableRow{}, false
	case 1:
		return TableRow{Key: cells[0]}, true
	default:
		return TableRow{Key: cells[0], Value: strings.Join(cells[1:], " ")}, true
	}
}

func mergeAdjacentText(tokens []mdToken) []mdToken {
	var result []mdToken
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			result = append(result, mdToken{
				Type:    tokenText,
				Content: strings.TrimSpace(buf.String()),
			})
			buf.Reset()
		}
	}

	for _, t := range tokens {
		if t.Type == tokenText {
			buf.WriteString(t.Content)
			buf.WriteString("\n")
			continue
		}

		flush()
		if t.Type == tokenTable && len(result) > 0 && result[len(result)-1].Type == tokenTable {
			result[len(result)-1].Table = append(result[len(result)-1].Table, t.Table...)
			continue
		}
		result = append(result, t)
	}

	flush()
	return result
}

// parseLooseMarkdownTable collects the rows around the separator at sepIndex
// and returns them with the index of the first line after the table.
func parseLooseMarkdownTable(lines []string, sepIndex int) ([]TableRow, int) {
	var rows []TableRow

	start := sepIndex - 1
	for start >= 0 && isTableRow(lines[start]) {
		start--
	}
	start++

	for j := start; j < sepIndex; j++ {
		if row, ok := rowOf(splitRow(lines[j])); ok {
			rows = append(rows, row)
		}
	}

	i := sepIndex + 1
	for i < len(lines) && isTableRow(lines[i]) {
		if row, ok := rowOf(splitRow(lines[i])); ok {
			rows = append(rows, row)
		}
		i++
	}

	return rows, i
}
