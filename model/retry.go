package model

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ustawy/types"
)

var _ Generator = (*RetryGenerator)(nil)

// RetryGenerator retries a Generator when the call fails or the answer is
// blank, sleeping attempt*Backoff between attempts.
type RetryGenerator struct {
	next        Generator
	maxAttempts int
	Backoff     time.Duration
}

func WithRetry(g Generator, maxAttempts int) *RetryGenerator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryGenerator{
		next:        g,
		maxAttempts: maxAttempts,
		Backoff:     300 * time.Millisecond,
	}
}

func (r *RetryGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		out, err := r.next.Generate(ctx, prompt)
		if err == nil && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(out), nil
		}
		if err == nil {
			err = types.ErrEmptyResponse
		}
		lastErr = err
		slog.Warn("generation attempt failed", "stage", "generate", "attempt", attempt, "error", err)

		if attempt < r.maxAttempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * r.Backoff):
			}
		}
	}

	return "", fmt.Errorf("generation failed after %d attempts: %w", r.maxAttempts, lastErr)
}
