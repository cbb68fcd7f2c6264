package agents

import (
	"context"
	"strings"

	"olympus/internal/llm"
	"olympus/internal/types"
)

// =============================================================================
// ADAPTIVE RETRIEVER
// =============================================================================

// Strategy names a retrieval parameterization.
type Strategy string

const (
	StrategyPrecise     Strategy = "precise"
	StrategySemantic    Strategy = "semantic"
	StrategyExploratory Strategy = "exploratory"
	StrategyTemporal    Strategy = "temporal"
	StrategyHybrid      Strategy = "hybrid"
)

// StrategyParams are the retrieval knobs one strategy sets.
type StrategyParams struct {
	Strategy     Strategy `json:"strategy"`
	Probability  float64  `json:"probability"`
	BM25Weight   float64  `json:"bm25_weight"`
	VectorWeight float64  `json:"vector_weight"`
	GraphWeight  float64  `json:"graph_weight"`
	TimeWeight   float64  `json:"time_weight"`
	MinScore     float64  `json:"min_score"`
	GraphHops    int      `json:"graph_hops"`
	PreferRecent bool     `json:"prefer_recent"`
}

// SearchStrategy converts the parameter set into the retrieval override the
// search layer consumes.
func (p StrategyParams) SearchStrategy() types.SearchStrategy {
	return types.SearchStrategy{
		Name:         string(p.Strategy),
		VectorWeight: p.VectorWeight,
		BM25Weight:   p.BM25Weight,
		MinScore:     p.MinScore,
		GraphHops:    p.GraphHops,
		PreferRecent: p.PreferRecent,
	}
}

var strategyTable = map[Strategy]StrategyParams{
	StrategyPrecise: {
		Strategy: StrategyPrecise, BM25Weight: 0.6, VectorWeight: 0.3,
		GraphWeight: 0.1, MinScore: 0.5, GraphHops: 1,
	},
	StrategySemantic: {
		Strategy: StrategySemantic, BM25Weight: 0.2, VectorWeight: 0.7,
		GraphWeight: 0.1, MinScore: 0.3, GraphHops: 1,
	},
	StrategyExploratory: {
		Strategy: StrategyExploratory, BM25Weight: 0.25, VectorWeight: 0.45,
		GraphWeight: 0.3, MinScore: 0.2, GraphHops: 2,
	},
	StrategyTemporal: {
		Strategy: StrategyTemporal, BM25Weight: 0.3, VectorWeight: 0.4,
		TimeWeight: 0.3, MinScore: 0.3, GraphHops: 1, PreferRecent: true,
	},
	StrategyHybrid: {
		Strategy: StrategyHybrid, BM25Weight: 0.3, VectorWeight: 0.5,
		GraphWeight: 0.2, MinScore: 0.3, GraphHops: 1,
	},
}

var strategyIndicators = map[Strategy][]string{
	StrategyPrecise:     {"exact", "specific", "named", "called", "titled", "\"", "number", "id"},
	StrategySemantic:    {"about", "like", "similar", "related", "regarding", "concerning", "meaning"},
	StrategyExploratory: {"everything", "all", "anything", "explore", "overview", "connected", "browse"},
	StrategyTemporal:    {"recent", "latest", "last", "today", "yesterday", "week", "month", "year", "new", "old"},
}

// AdaptiveRetriever picks a retrieval strategy per query.
type AdaptiveRetriever struct {
	client llm.Client
	model  string
}

// NewAdaptiveRetriever wires the strategy selector. client may be nil; the
// rule path is self-sufficient.
func NewAdaptiveRetriever(client llm.Client, model string) *AdaptiveRetriever {
	return &AdaptiveRetriever{client: client, model: model}
}

// SelectStrategy scores indicator hits per strategy and returns the winner's
// parameter set with a normalized probability. Short queries with no clear
// winner lean semantic.
func (a *AdaptiveRetriever) SelectStrategy(ctx context.Context, query string) StrategyParams {
	lower := strings.ToLower(query)

	scores := make(map[Strategy]float64)
	total := 0.0
	for strategy, indicators := range strategyIndicators {
		for _, ind := range indicators {
			if strings.Contains(lower, ind) {
				scores[strategy]++
				total++
			}
		}
	}

	best := StrategyHybrid
	bestScore := 0.0
	for strategy, score := range scores {
		if score > bestScore {
			best = strategy
			bestScore = score
		}
	}

	probability := 0.5
	if total > 0 {
		probability = bestScore / total
	}

	// Ambiguous short queries are better served by embedding recall.
	if probability < 0.5 && len(strings.Fields(query)) <= 4 {
		best = StrategySemantic
		probability = 0.5
	}

	if probability < 0.4 && a.client != nil {
		if llmChoice := a.selectLLM(ctx, query); llmChoice != "" {
			best = llmChoice
		}
	}

	params := strategyTable[best]
	params.Probability = probability
	return params
}

func (a *AdaptiveRetriever) selectLLM(ctx context.Context, query string) Strategy {
	prompt := `Pick the best retrieval strategy for this query: "` + query + `"
Strategies: precise (exact lookups), semantic (meaning-based), exploratory (broad discovery), temporal (time-oriented), hybrid (balanced).
Respond with JSON only: {"strategy": "..."}`

	var out struct {
		Strategy string `json:"strategy"`
	}
	err := a.client.CompleteJSON(ctx, llm.Request{
		Model:    a.model,
		Prompt:   prompt,
		Fallback: `{"strategy": ""}`,
	}, &out)
	if err != nil {
		return ""
	}
	s := Strategy(strings.ToLower(strings.TrimSpace(out.Strategy)))
	if _, ok := strategyTable[s]; ok {
		return s
	}
	return ""
}
