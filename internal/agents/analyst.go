package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"olympus/internal/llm"
	"olympus/internal/types"
)

// numberRe matches monetary amounts, percentages, and bare figures.
var numberRe = regexp.MustCompile(`\$?\d[\d,]*(?:\.\d+)?%?`)

// =============================================================================
// ANALYST
// =============================================================================

// ComparisonResult is the analyst's document comparison.
type ComparisonResult struct {
	Similarities  []string `json:"similarities"`
	Differences   []string `json:"differences"`
	UniqueAspects []string `json:"unique_aspects"`
	Summary       string   `json:"summary"`
}

// Analyst compares, aggregates, and extracts insights across documents.
type Analyst struct {
	client llm.Client
	model  string
}

// NewAnalyst wires the analyst.
func NewAnalyst(client llm.Client, model string) *Analyst {
	return &Analyst{client: client, model: model}
}

// CompareDocuments requires at least two documents. On LLM failure a
// keyword-overlap comparison is returned instead of an error.
func (a *Analyst) CompareDocuments(ctx context.Context, docs []types.SearchResult) (*ComparisonResult, *AgentError) {
	if len(docs) < 2 {
		return nil, &AgentError{Agent: "analyst", Message: "comparison requires at least 2 documents"}
	}
	if len(docs) > 5 {
		docs = docs[:5]
	}

	var sb strings.Builder
	for i, d := range docs {
		fmt.Fprintf(&sb, "Document %d (%s):\n%s\n\n", i+1, d.Filename, truncateText(d.DetailedSummary, 1500))
	}

	if a.client != nil {
		prompt := `Compare these documents.

` + sb.String() + `
Respond with JSON only:
{"similarities": ["..."], "differences": ["..."], "unique_aspects": ["..."], "summary": "..."}`

		var out ComparisonResult
		err := a.client.CompleteJSON(ctx, llm.Request{Model: a.model, Prompt: prompt}, &out)
		if err == nil && out.Summary != "" {
			return &out, nil
		}
	}
	return keywordComparison(docs), nil
}

// GenerateInsights returns short bullet insights about the documents in the
// context of the query.
func (a *Analyst) GenerateInsights(ctx context.Context, docs []types.SearchResult, query string) []string {
	if len(docs) == 0 {
		return nil
	}
	if len(docs) > 5 {
		docs = docs[:5]
	}

	fallback := []string{
		fmt.Sprintf("%d documents matched the query", len(docs)),
		"Top match: " + docs[0].Filename,
	}
	if a.client == nil {
		return fallback
	}

	var sb strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&sb, "- %s: %s\n", d.Filename, truncateText(d.DetailedSummary, 400))
	}
	prompt := `Given the query "` + query + `" and these documents:

` + sb.String() + `
Write 3-5 short insight bullets. Respond with JSON only: {"insights": ["..."]}`

	var out struct {
		Insights []string `json:"insights"`
	}
	err := a.client.CompleteJSON(ctx, llm.Request{
		Model:    a.model,
		Prompt:   prompt,
		Fallback: `{"insights": []}`,
	}, &out)
	if err != nil || len(out.Insights) == 0 {
		return fallback
	}
	return out.Insights
}

// AggregateData collects numeric figures mentioned across the documents'
// summaries into one list for trend questions.
func (a *Analyst) AggregateData(docs []types.SearchResult) map[string][]string {
	agg := make(map[string][]string)
	for _, d := range docs {
		figures := numberRe.FindAllString(d.DetailedSummary, 10)
		if len(figures) > 0 {
			agg[d.Filename] = figures
		}
	}
	return agg
}

// keywordComparison is the LLM-free fallback: shared keywords are
// similarities, each document's exclusive keywords are unique aspects.
func keywordComparison(docs []types.SearchResult) *ComparisonResult {
	counts := make(map[string]int)
	perDoc := make([]map[string]bool, len(docs))
	for i, d := range docs {
		perDoc[i] = make(map[string]bool)
		for _, k := range strings.Split(strings.ToLower(d.Keywords), ",") {
			k = strings.TrimSpace(k)
			if k == "" || perDoc[i][k] {
				continue
			}
			perDoc[i][k] = true
			counts[k]++
		}
	}

	result := &ComparisonResult{
		Summary: fmt.Sprintf("Keyword-based comparison of %d documents.", len(docs)),
	}
	for k, n := range counts {
		if n == len(docs) {
			result.Similarities = append(result.Similarities, "all mention "+k)
		}
	}
	for i, set := range perDoc {
		var exclusive []string
		for k := range set {
			if counts[k] == 1 {
				exclusive = append(exclusive, k)
			}
		}
		if len(exclusive) > 0 {
			if len(exclusive) > 3 {
				exclusive = exclusive[:3]
			}
			result.UniqueAspects = append(result.UniqueAspects,
				docs[i].Filename+": "+strings.Join(exclusive, ", "))
		}
	}
	if len(result.Similarities) == 0 {
		result.Differences = append(result.Differences, "no shared keywords across the documents")
	}
	return result
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
