package agent

import (
	"context"
	"fmt"
	"strings"

	"ustawy/types"
)

const (
	minBudget = 64
	maxDepth  = 8
)

// budget is how many tokens of context fit next to the question in prompt.
func (e *Engine) budget(prompt func(string, string) string, question string) int {
	b := e.contextTokens - e.tok.Count(prompt("", question))
	if b < minBudget {
		b = minBudget
	}
	return b
}

// compact puts every passage into a single prompt, truncating the tail when
// it exceeds the budget, and calls the model once.
func (e *Engine) compact(ctx context.Context, question string, texts []string) (string, error) {
	joined := joinPassages(texts)
	budget := e.budget(qaPrompt, question)
	if n := e.tok.Count(joined); n > budget {
		e.logger.Info("context truncated", "stage", "synthesize", "tokens", n, "budget", budget)
		joined = e.tok.Truncate(joined, budget)
	}
	return e.generate(ctx, qaPrompt(joined, question))
}

// treeSummarize packs passages into groups that fit the budget, summarizes
// each group with respect to the question and repeats on the summaries
// until everything fits one prompt, which is then answered.
func (e *Engine) treeSummarize(ctx context.Context, question string, texts []string) (string, error) {
	for depth := 0; ; depth++ {
		joined := joinPassages(texts)
		if e.tok.Count(joined) <= e.budget(qaPrompt, question) {
			return e.generate(ctx, qaPrompt(joined, question))
		}
		if depth == maxDepth {
			e.logger.Warn("summary tree too deep, truncating", "stage", "synthesize", "depth", depth)
			return e.compact(ctx, question, texts)
		}

		groups := e.pack(texts, e.budget(summaryPrompt, question))
		e.logger.Info("summarizing", "stage", "synthesize", "depth", depth, "passages", len(texts), "groups", len(groups))

		summaries := make([]string, 0, len(groups))
		for i, group := range groups {
			summary, err := e.generate(ctx, summaryPrompt(joinPassages(group), question))
			if err != nil {
				return "", fmt.Errorf("summarize group %d at depth %d: %w", i, depth, err)
			}
			summaries = append(summaries, summary)
		}
		texts = summaries
	}
}

// pack groups consecutive texts so each group fits budget tokens. A text
// larger than the budget on its own is truncated into its own group.
func (e *Engine) pack(texts []string, budget int) [][]string {
	var groups [][]string
	var cur []string
	used := 0
	for _, t := range texts {
		n := e.tok.Count(t)
		if n > budget {
			t = e.tok.Truncate(t, budget)
			n = budget
		}
		if len(cur) > 0 && used+n > budget {
			groups = append(groups, cur)
			cur, used = nil, 0
		}
		cur = append(cur, t)
		used += n
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

func (e *Engine) generate(ctx context.Context, prompt string) (string, error) {
	e.logger.Debug("prompt built", "stage", "generate", "tokens", e.tok.Count(prompt))
	out, err := e.llm.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", types.ErrEmptyResponse
	}
	return out, nil
}
