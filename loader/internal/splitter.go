package internal

import (
	"regexp"
	"strings"

	"ustawy/model"
)

var sentenceRe = regexp.MustCompile(`(?s)[^.!?;\n]+(?:[.!?;]+|\n+|$)`)

// SentenceSplitter packs whole sentences into chunks of at most chunkSize
// tokens. Consecutive chunks share up to overlap tokens of trailing sentences.
type SentenceSplitter struct {
	chunkSize int
	overlap   int
	tok       model.Tokenizer
}

func NewSentenceSplitter(chunkSize, overlap int, tok model.Tokenizer) *SentenceSplitter {
	if chunkSize <= 0 {
		chunkSize = 512
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	if tok == nil {
		tok = model.WordTokenizer{}
	}
	return &SentenceSplitter{chunkSize: chunkSize, overlap: overlap, tok: tok}
}

func (s *SentenceSplitter) Split(text string) []string {
	var chunks []string
	var cur []string
	curTokens := 0

	for _, unit := range s.units(text) {
		n := s.tok.Count(unit)
		if len(cur) > 0 && curTokens+n > s.chunkSize {
			chunks = append(chunks, strings.Join(cur, " "))
			cur, curTokens = s.tail(cur)
			if curTokens+n > s.chunkSize {
				cur, curTokens = nil, 0
			}
		}
		cur = append(cur, unit)
		curTokens += n
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, " "))
	}
	return chunks
}

// tail keeps the last sentences of a chunk that fit in the overlap, always
// dropping at least the first one so the splitter makes progress.
func (s *SentenceSplitter) tail(cur []string) ([]string, int) {
	var out []string
	tokens := 0
	for j := len(cur) - 1; j > 0; j-- {
		n := s.tok.Count(cur[j])
		if tokens+n > s.overlap {
			break
		}
		out = append([]string{cur[j]}, out...)
		tokens += n
	}
	return out, tokens
}

// units splits text into sentences, breaking any sentence longer than
// chunkSize into word windows.
func (s *SentenceSplitter) units(text string) []string {
	var units []string
	for _, raw := range sentenceRe.FindAllString(text, -1) {
		sentence := strings.Join(strings.Fields(raw), " ")
		if sentence == "" {
			continue
		}
		if s.tok.Count(sentence) <= s.chunkSize {
			units = append(units, sentence)
			continue
		}
		units = append(units, s.window(sentence)...)
	}
	return units
}

func (s *SentenceSplitter) window(sentence string) []string {
	var out []string
	var buf []string
	tokens := 0
	for _, w := range strings.Fields(sentence) {
		n := s.tok.Count(w)
		if len(buf) > 0 && tokens+n > s.chunkSize {
			out = append(out, strings.Join(buf, " "))
			buf, tokens = nil, 0
		}
		buf = append(buf, w)
		tokens += n
	}
	if len(buf) > 0 {
		out = append(out, strings.Join(buf, " "))
	}
	return out
}
