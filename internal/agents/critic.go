package agents

import (
	"context"
	"fmt"
	"strings"

	"olympus/internal/llm"
	"olympus/internal/types"
)

// =============================================================================
// CRITIC
// =============================================================================

// Evaluation is the critic's judgment of a result set.
type Evaluation struct {
	QualityScore      float64  `json:"quality_score"`
	Relevance         float64  `json:"relevance"`
	Completeness      float64  `json:"completeness"`
	Strengths         []string `json:"strengths"`
	Weaknesses        []string `json:"weaknesses"`
	Recommendations   []string `json:"recommendations"`
	ShouldReformulate bool     `json:"should_reformulate"`
}

// HallucinationReport compares an answer against its sources.
type HallucinationReport struct {
	HasHallucination  bool     `json:"has_hallucination"`
	Confidence        float64  `json:"confidence"`
	UnsupportedClaims []string `json:"unsupported_claims"`
}

// Critic evaluates retrieval quality and checks answers against sources.
type Critic struct {
	client llm.Client
	model  string
}

// NewCritic wires the critic.
func NewCritic(client llm.Client, model string) *Critic {
	return &Critic{client: client, model: model}
}

// EvaluateResults judges how well the results answer the query. The
// heuristic evaluation always runs and serves as the fallback; the LLM
// refines it when available.
func (c *Critic) EvaluateResults(ctx context.Context, query string, results []types.SearchResult) Evaluation {
	eval := heuristicEvaluation(query, results)
	if c.client == nil || len(results) == 0 {
		return eval
	}

	var sb strings.Builder
	limit := len(results)
	if limit > 5 {
		limit = 5
	}
	for i := 0; i < limit; i++ {
		fmt.Fprintf(&sb, "- %s (score %.2f): %s\n", results[i].Filename, results[i].Score,
			truncateText(results[i].DetailedSummary, 300))
	}

	prompt := `Evaluate how well these search results answer the query "` + query + `":

` + sb.String() + `
Respond with JSON only:
{"quality_score": 0.0-1.0, "relevance": 0.0-1.0, "completeness": 0.0-1.0,
 "strengths": ["..."], "weaknesses": ["..."], "recommendations": ["..."],
 "should_reformulate": bool}`

	var out Evaluation
	err := c.client.CompleteJSON(ctx, llm.Request{Model: c.model, Prompt: prompt}, &out)
	if err != nil || out.QualityScore <= 0 {
		return eval
	}
	if out.QualityScore > 1 {
		out.QualityScore = 1
	}
	return out
}

// DetectHallucination checks an answer's claims against the source
// summaries. Sentences sharing no content words with any source are flagged.
func (c *Critic) DetectHallucination(ctx context.Context, answer string, sources []types.SearchResult) HallucinationReport {
	if c.client != nil && len(sources) > 0 {
		var sb strings.Builder
		for _, s := range sources {
			fmt.Fprintf(&sb, "- %s: %s\n", s.Filename, truncateText(s.DetailedSummary, 400))
		}
		prompt := `Check whether this answer makes claims not supported by the sources.

Answer:
` + answer + `

Sources:
` + sb.String() + `
Respond with JSON only: {"has_hallucination": bool, "confidence": 0.0-1.0, "unsupported_claims": ["..."]}`

		var out HallucinationReport
		err := c.client.CompleteJSON(ctx, llm.Request{Model: c.model, Prompt: prompt}, &out)
		if err == nil && out.Confidence > 0 {
			return out
		}
	}
	return lexicalHallucinationCheck(answer, sources)
}

// heuristicEvaluation scores on result count, average score, and query-term
// coverage. It is the documented fallback when no model is reachable.
func heuristicEvaluation(query string, results []types.SearchResult) Evaluation {
	var eval Evaluation

	if len(results) == 0 {
		eval.Weaknesses = append(eval.Weaknesses, "no results returned")
		eval.Recommendations = append(eval.Recommendations, "broaden the query terms")
		eval.ShouldReformulate = true
		return eval
	}

	sizeScore := float64(len(results)) / 5.0
	if sizeScore > 1 {
		sizeScore = 1
	}

	var avgScore float64
	for _, r := range results {
		avgScore += r.Score
	}
	avgScore /= float64(len(results))
	if avgScore > 1 {
		avgScore = 1
	}

	terms := queryTerms(query)
	coverage := 0.0
	if len(terms) > 0 {
		top := results[0]
		matched := matchingTerms(terms, &top)
		coverage = float64(len(matched)) / float64(len(terms))
	}

	eval.QualityScore = 0.4*sizeScore + 0.3*avgScore + 0.3*coverage
	eval.Relevance = coverage
	eval.Completeness = sizeScore

	if coverage > 0.5 {
		eval.Strengths = append(eval.Strengths, "top result covers most query terms")
	} else {
		eval.Weaknesses = append(eval.Weaknesses, "top result matches few query terms")
	}
	eval.ShouldReformulate = eval.QualityScore < 0.5
	if eval.ShouldReformulate {
		eval.Recommendations = append(eval.Recommendations, "reformulate with broader or different terms")
	}
	return eval
}

func lexicalHallucinationCheck(answer string, sources []types.SearchResult) HallucinationReport {
	var sourceText strings.Builder
	for _, s := range sources {
		sourceText.WriteString(strings.ToLower(s.DetailedSummary))
		sourceText.WriteString(" ")
	}
	corpus := sourceText.String()

	var unsupported []string
	for _, sentence := range strings.Split(answer, ".") {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) < 20 {
			continue
		}
		words := queryTerms(sentence)
		if len(words) == 0 {
			continue
		}
		hits := 0
		for _, w := range words {
			if strings.Contains(corpus, w) {
				hits++
			}
		}
		if float64(hits)/float64(len(words)) < 0.2 {
			unsupported = append(unsupported, sentence)
		}
	}

	return HallucinationReport{
		HasHallucination:  len(unsupported) > 0,
		Confidence:        0.4, // lexical check is a weak signal
		UnsupportedClaims: unsupported,
	}
}
