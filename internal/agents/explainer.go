package agents

import (
	"fmt"
	"sort"
	"strings"

	"olympus/internal/types"
)

// =============================================================================
// EXPLAINER
// =============================================================================

// Explainer attaches human-readable relevance explanations to top results.
// It is deliberately LLM-free: explanations are derived from term matches so
// they stay truthful to the actual scoring inputs.
type Explainer struct{}

// ExplainTop writes a one-sentence explanation into the top n results,
// citing the query terms that matched.
func (Explainer) ExplainTop(query string, results []types.SearchResult, n int) {
	if n <= 0 {
		n = 3
	}
	if n > len(results) {
		n = len(results)
	}
	terms := queryTerms(query)

	for i := 0; i < n; i++ {
		r := &results[i]
		matched := matchingTerms(terms, r)
		switch {
		case len(matched) > 0:
			r.Explanation = fmt.Sprintf("Matches your query on %s.", strings.Join(matched, ", "))
		case r.Reranked:
			r.Explanation = "Semantically related to your query based on its summary."
		default:
			r.Explanation = "Retrieved as broadly related to your query."
		}
	}
}

// HighlightMatches returns up to three short excerpts from the document
// summary around query-term hits.
func (Explainer) HighlightMatches(query string, doc types.SearchResult) []string {
	terms := queryTerms(query)
	lower := strings.ToLower(doc.DetailedSummary)

	var excerpts []string
	for _, t := range terms {
		idx := strings.Index(lower, t)
		if idx < 0 {
			continue
		}
		start := idx - 40
		if start < 0 {
			start = 0
		}
		end := idx + len(t) + 40
		if end > len(doc.DetailedSummary) {
			end = len(doc.DetailedSummary)
		}
		excerpt := strings.TrimSpace(doc.DetailedSummary[start:end])
		excerpts = append(excerpts, "..."+excerpt+"...")
		if len(excerpts) == 3 {
			break
		}
	}
	return excerpts
}

// ScoreComponents decomposes a result score into estimated semantic and
// keyword shares based on term overlap.
func (Explainer) ScoreComponents(query string, doc types.SearchResult) map[string]float64 {
	terms := queryTerms(query)
	matched := matchingTerms(terms, &doc)

	keywordShare := 0.0
	if len(terms) > 0 {
		keywordShare = float64(len(matched)) / float64(len(terms))
	}
	return map[string]float64{
		"total":    doc.Score,
		"keyword":  doc.Score * keywordShare,
		"semantic": doc.Score * (1 - keywordShare),
	}
}

func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	var out []string
	for _, f := range fields {
		f = strings.Trim(f, "?.!,\"'")
		if len(f) >= 3 && !commonQueryWords[f] {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

func matchingTerms(terms []string, r *types.SearchResult) []string {
	haystack := strings.ToLower(r.Filename + " " + r.Keywords + " " + r.DetailedSummary)
	var matched []string
	for _, t := range terms {
		if strings.Contains(haystack, t) {
			matched = append(matched, t)
		}
	}
	return matched
}

var commonQueryWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "show": true,
	"find": true, "about": true, "all": true, "any": true, "please": true,
	"give": true, "list": true, "get": true, "what": true, "which": true,
	"documents": true, "files": true,
}
