// Package rerank turns a plain text-generation backend into a passage
// scorer. Backends without a native rerank endpoint share this prompt
// and parser.
package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
)

// maxPassageChars truncates each passage before prompting so a large
// candidate set still fits the context window.
const maxPassageChars = 1200

// GenerateFunc is the completion call the scorer drives.
type GenerateFunc func(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error)

// Scores asks the model to rate every passage against the query and
// returns one score in [0,1] per passage, in input order.
func Scores(ctx context.Context, gen GenerateFunc, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	raw, err := gen(ctx, buildPrompt(query, passages), driven.GenerateOptions{
		MaxTokens:   16 * len(passages),
		Temperature: 0,
		JSONOnly:    true,
	})
	if err != nil {
		return nil, err
	}

	scores, err := parseScores(raw, len(passages))
	if err != nil {
		return nil, err
	}
	return scores, nil
}

func buildPrompt(query string, passages []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rate how relevant each passage is to the query on a scale from 0.0 (unrelated) to 1.0 (directly answers it).\n\nQuery: %s\n\n", query)
	for i, p := range passages {
		if len(p) > maxPassageChars {
			p = p[:maxPassageChars]
		}
		fmt.Fprintf(&b, "Passage %d:\n%s\n\n", i+1, p)
	}
	fmt.Fprintf(&b, "Respond with a JSON array of exactly %d numbers, one per passage, in order. Output only the array.", len(passages))
	return b.String()
}

// parseScores extracts the JSON array from a completion that may be
// wrapped in code fences or prose.
func parseScores(raw string, want int) ([]float64, error) {
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start < 0 || end <= start {
		return nil, domain.NewError(domain.KindAdapterFailure, "rerank response contains no JSON array")
	}

	var scores []float64
	if err := json.Unmarshal([]byte(raw[start:end+1]), &scores); err != nil {
		return nil, domain.WrapError(domain.KindAdapterFailure, "decoding rerank scores", err)
	}
	if len(scores) != want {
		return nil, domain.NewError(domain.KindAdapterFailure,
			fmt.Sprintf("rerank returned %d scores for %d passages", len(scores), want))
	}

	for i, s := range scores {
		if s < 0 {
			scores[i] = 0
		} else if s > 1 {
			scores[i] = 1
		}
	}
	return scores, nil
}
