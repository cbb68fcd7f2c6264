// Package rerank re-scores the fused candidate pool with a cross-encoder,
// folds in per-user feedback boosts, and optionally diversifies the head of
// the list with maximal marginal relevance.
package rerank

import (
	"context"
	"fmt"
	"strings"

	"olympus/internal/llm"
	"olympus/internal/logging"
)

// CrossEncoder scores query/document pairs. Scores are raw logits on an
// arbitrary scale; the reranker sigmoid-normalizes them.
type CrossEncoder interface {
	ScorePairs(ctx context.Context, query string, passages []string) ([]float64, error)
}

// =============================================================================
// LLM CROSS-ENCODER
// =============================================================================

// LLMCrossEncoder uses the local text model as a pointwise relevance judge.
// Each passage is rated 0-10 in a single JSON call; ratings are recentered
// to a logit-like scale around 5 so the sigmoid spreads them.
type LLMCrossEncoder struct {
	client    llm.Client
	model     string
	maxLength int
}

// NewLLMCrossEncoder wires the judge to a model.
func NewLLMCrossEncoder(client llm.Client, model string, maxLength int) *LLMCrossEncoder {
	if maxLength <= 0 {
		maxLength = 512
	}
	return &LLMCrossEncoder{client: client, model: model, maxLength: maxLength}
}

type relevanceRatings struct {
	Ratings []float64 `json:"ratings"`
}

func (e *LLMCrossEncoder) ScorePairs(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for i, p := range passages {
		if len(p) > e.maxLength {
			p = p[:e.maxLength]
		}
		fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, p)
	}

	prompt := fmt.Sprintf(`Rate how relevant each passage is to the query on a 0-10 scale.
Query: %s

Passages:
%s
Respond with JSON only: {"ratings": [r1, r2, ...]} with exactly %d numbers in passage order.`,
		query, sb.String(), len(passages))

	var out relevanceRatings
	err := e.client.CompleteJSON(ctx, llm.Request{
		Model:  e.model,
		Prompt: prompt,
		Validate: func(s string) bool {
			return strings.Contains(s, "ratings")
		},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("relevance judge failed: %w", err)
	}
	if len(out.Ratings) != len(passages) {
		return nil, fmt.Errorf("judge returned %d ratings for %d passages", len(out.Ratings), len(passages))
	}

	// Center at 5 so a neutral rating sits at sigmoid 0.5.
	scores := make([]float64, len(out.Ratings))
	for i, r := range out.Ratings {
		if r < 0 {
			r = 0
		}
		if r > 10 {
			r = 10
		}
		scores[i] = r - 5.0
	}
	return scores, nil
}

// =============================================================================
// LEXICAL FALLBACK
// =============================================================================

// LexicalEncoder is the degraded-mode judge: term-overlap between query and
// passage, scaled to roughly the same range the LLM judge produces. Used
// when no model is reachable so rerank still orders deterministically.
type LexicalEncoder struct{}

func (LexicalEncoder) ScorePairs(_ context.Context, query string, passages []string) ([]float64, error) {
	terms := strings.Fields(strings.ToLower(query))
	scores := make([]float64, len(passages))
	for i, p := range passages {
		lower := strings.ToLower(p)
		matched := 0
		for _, t := range terms {
			if len(t) >= 2 && strings.Contains(lower, t) {
				matched++
			}
		}
		if len(terms) > 0 {
			// Map overlap fraction onto [-5, 5].
			scores[i] = 10.0*float64(matched)/float64(len(terms)) - 5.0
		}
	}
	logging.Rerank("lexical fallback scored %d passages", len(passages))
	return scores, nil
}
