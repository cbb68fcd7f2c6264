package agents

import (
	"context"
	"strings"
	"time"

	"olympus/internal/config"
	"olympus/internal/llm"
	"olympus/internal/logging"
	"olympus/internal/types"
)

// =============================================================================
// SISYPHUS: CORRECTIVE RETRIEVAL
// =============================================================================

// SearchFunc runs one retrieval pass. Sisyphus is search-implementation
// agnostic; the orchestrator supplies the hybrid engine behind this.
type SearchFunc func(ctx context.Context, query string, filters types.Filters, userID string) ([]types.SearchResult, error)

// StepFunc receives progress updates; may be nil.
type StepFunc func(agent, action string, details map[string]interface{})

// RetrievalAttempt records one loop iteration.
type RetrievalAttempt struct {
	Iteration    int                  `json:"iteration"`
	Query        string               `json:"query"`
	ResultCount  int                  `json:"result_count"`
	QualityScore float64              `json:"quality_score"`
	Issues       []string             `json:"issues,omitempty"`
	Reformulated bool                 `json:"reformulated"`
	Results      []types.SearchResult `json:"-"`
}

// CorrectedResults is the loop's final output.
type CorrectedResults struct {
	FinalResults    []types.SearchResult `json:"final_results"`
	FinalQuery      string               `json:"final_query"`
	OriginalQuery   string               `json:"original_query"`
	TotalIterations int                  `json:"total_iterations"`
	Attempts        []RetrievalAttempt   `json:"attempts"`
	FinalQuality    float64              `json:"final_quality"`
	WasReformulated bool                 `json:"was_reformulated"`
	ImprovementPct  float64              `json:"improvement_pct"`
}

// Sisyphus retries retrieval with reformulated queries until quality clears
// the threshold or iterations run out. The best attempt always wins, even
// when the last reformulation made things worse.
type Sisyphus struct {
	client llm.Client
	model  string
	critic *Critic
	cfg    config.CorrectiveConfig
}

// NewSisyphus wires the corrective controller. critic may be nil, in which
// case the heuristic evaluation is used throughout.
func NewSisyphus(client llm.Client, model string, critic *Critic, cfg config.CorrectiveConfig) *Sisyphus {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 3
	}
	if cfg.QualityThreshold <= 0 {
		cfg.QualityThreshold = 0.6
	}
	return &Sisyphus{client: client, model: model, critic: critic, cfg: cfg}
}

// Retrieve runs the corrective loop.
func (s *Sisyphus) Retrieve(ctx context.Context, query string, filters types.Filters, userID string, search SearchFunc, step StepFunc) CorrectedResults {
	emit := func(action string, details map[string]interface{}) {
		if step != nil {
			step("sisyphus", action, details)
		}
	}

	out := CorrectedResults{
		OriginalQuery: query,
		FinalQuery:    query,
	}
	currentQuery := query
	var bestResults []types.SearchResult
	bestQuality := 0.0
	firstQuality := 0.0

	for i := 1; i <= s.cfg.MaxIterations; i++ {
		emit("iteration_start", map[string]interface{}{"iteration": i, "query": currentQuery})

		start := time.Now()
		results, err := search(ctx, currentQuery, filters, userID)
		if err != nil {
			logging.Agents("sisyphus iteration %d search failed: %v", i, err)
			results = nil
		}

		quality, issues := s.evaluate(ctx, currentQuery, results)
		emit("quality_evaluated", map[string]interface{}{
			"iteration": i, "quality": quality, "results": len(results),
			"elapsed_ms": time.Since(start).Milliseconds(),
		})

		out.Attempts = append(out.Attempts, RetrievalAttempt{
			Iteration:    i,
			Query:        currentQuery,
			ResultCount:  len(results),
			QualityScore: quality,
			Issues:       issues,
			Reformulated: i > 1,
			Results:      results,
		})
		out.TotalIterations = i

		if i == 1 {
			firstQuality = quality
		}
		if quality > bestQuality || bestResults == nil {
			bestQuality = quality
			bestResults = results
			out.FinalQuery = currentQuery
		}

		if quality >= s.cfg.QualityThreshold {
			break
		}
		if i == s.cfg.MaxIterations {
			break
		}

		reformulated := s.reformulate(ctx, query, currentQuery, issues, results)
		if reformulated == "" || reformulated == currentQuery {
			reformulated = ruleReformulate(currentQuery)
		}
		emit("reformulated", map[string]interface{}{"from": currentQuery, "to": reformulated})
		currentQuery = reformulated
		out.WasReformulated = true
	}

	out.FinalResults = bestResults
	out.FinalQuality = bestQuality
	if firstQuality > 0.01 {
		pct := (bestQuality - firstQuality) / firstQuality * 100
		if pct > 0 {
			out.ImprovementPct = pct
		}
	} else if bestQuality > firstQuality {
		out.ImprovementPct = (bestQuality - firstQuality) / 0.01 * 100
	}
	return out
}

func (s *Sisyphus) evaluate(ctx context.Context, query string, results []types.SearchResult) (float64, []string) {
	if s.critic != nil {
		eval := s.critic.EvaluateResults(ctx, query, results)
		return eval.QualityScore, eval.Weaknesses
	}
	eval := heuristicEvaluation(query, results)
	return eval.QualityScore, eval.Weaknesses
}

// reformulate asks the model for a single replacement query line.
func (s *Sisyphus) reformulate(ctx context.Context, original, current string, issues []string, results []types.SearchResult) string {
	if s.client == nil {
		return ""
	}

	var hints []string
	for i, r := range results {
		if i == 3 {
			break
		}
		for _, k := range strings.Split(r.Keywords, ",") {
			k = strings.TrimSpace(k)
			if k != "" {
				hints = append(hints, k)
			}
			if len(hints) >= 6 {
				break
			}
		}
	}

	prompt := `The search query "` + current + `" (originally "` + original + `") returned poor results.
Issues: ` + strings.Join(issues, "; ") + `
Related keywords in the corpus: ` + strings.Join(hints, ", ") + `
Write ONE improved search query. Respond with JSON only: {"query": "..."}`

	var out struct {
		Query string `json:"query"`
	}
	err := s.client.CompleteJSON(ctx, llm.Request{
		Model:    s.model,
		Prompt:   prompt,
		Fallback: `{"query": ""}`,
	}, &out)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.Split(out.Query, "\n")[0])
}

// ruleReformulate broadens the query without a model: keep the first three
// content words, or swap in a looser synonym.
func ruleReformulate(query string) string {
	synonyms := map[string]string{
		"invoice":  "bill",
		"contract": "agreement",
		"report":   "summary",
		"photo":    "image",
	}

	words := strings.Fields(query)
	for i, w := range words {
		if syn, ok := synonyms[strings.ToLower(w)]; ok {
			swapped := append([]string(nil), words...)
			swapped[i] = syn
			return strings.Join(swapped, " ")
		}
	}
	if len(words) > 3 {
		return strings.Join(words[:3], " ")
	}
	return query
}
