package agents

import (
	"context"
	"fmt"
	"strings"

	"olympus/internal/llm"
	"olympus/internal/types"
)

// =============================================================================
// SUMMARIZER
// =============================================================================

// SummaryType selects the summarization style.
type SummaryType string

const (
	SummaryComprehensive SummaryType = "comprehensive"
	SummaryBrief         SummaryType = "brief"
	SummaryBullets       SummaryType = "bullet_points"
)

// Summarizer produces multi-document summaries. Beyond five documents it
// switches to two-tier summarization: halves are summarized independently,
// then the partials are combined.
type Summarizer struct {
	client llm.Client
	model  string
}

// NewSummarizer wires the summarizer.
func NewSummarizer(client llm.Client, model string) *Summarizer {
	return &Summarizer{client: client, model: model}
}

// Summarize returns a summary of the documents. Falls back to stitching the
// stored per-document summaries when the model is unavailable.
func (s *Summarizer) Summarize(ctx context.Context, docs []types.SearchResult, style SummaryType) string {
	if len(docs) == 0 {
		return "No documents to summarize."
	}
	if style == "" {
		style = SummaryComprehensive
	}

	if len(docs) > 5 {
		return s.hierarchical(ctx, docs, style)
	}
	return s.summarizeBatch(ctx, docs, style)
}

// hierarchical summarizes each half, then combines the two partial
// summaries into one.
func (s *Summarizer) hierarchical(ctx context.Context, docs []types.SearchResult, style SummaryType) string {
	mid := len(docs) / 2
	first := s.summarizeBatch(ctx, docs[:mid], style)
	second := s.summarizeBatch(ctx, docs[mid:], style)

	if s.client == nil {
		return first + "\n\n" + second
	}

	prompt := `Combine these two partial summaries into one ` + string(style) + ` summary:

Part 1:
` + first + `

Part 2:
` + second

	resp, err := s.client.Complete(ctx, llm.Request{
		Model:    s.model,
		Prompt:   prompt,
		Fallback: first + "\n\n" + second,
	})
	if err != nil {
		return first + "\n\n" + second
	}
	return resp.Text
}

func (s *Summarizer) summarizeBatch(ctx context.Context, docs []types.SearchResult, style SummaryType) string {
	var sb strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&sb, "## %s\n%s\n\n", d.Filename, truncateText(d.DetailedSummary, 2000))
	}

	fallback := stitchSummaries(docs)
	if s.client == nil {
		return fallback
	}

	var instruction string
	switch style {
	case SummaryBrief:
		instruction = "Write a brief 2-3 sentence summary covering all documents."
	case SummaryBullets:
		instruction = "Write a bullet-point summary, one or two bullets per document."
	default:
		instruction = "Write a comprehensive summary covering the key content of every document."
	}

	resp, err := s.client.Complete(ctx, llm.Request{
		Model:    s.model,
		Prompt:   instruction + "\n\n" + sb.String(),
		Fallback: fallback,
	})
	if err != nil {
		return fallback
	}
	return resp.Text
}

func stitchSummaries(docs []types.SearchResult) string {
	var sb strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&sb, "%s: %s\n", d.Filename, truncateText(d.DetailedSummary, 300))
	}
	return strings.TrimSpace(sb.String())
}
