package rerank

import (
	"context"
	"math"
	"time"

	"olympus/internal/config"
	"olympus/internal/logging"
	"olympus/internal/types"
)

// FeedbackSource supplies per-document boost values in [-1,1] for a user's
// query. The store implements this.
type FeedbackSource interface {
	GetBoosts(ctx context.Context, userID, query string, docIDs []string, decayWindow time.Duration) (map[string]float64, error)
}

// Reranker is the second-stage scorer over the fused candidate pool.
type Reranker struct {
	encoder     CrossEncoder
	feedback    FeedbackSource
	cfg         config.RerankConfig
	decayWindow time.Duration
}

// New wires the reranker. feedback may be nil to disable boosts.
func New(encoder CrossEncoder, feedback FeedbackSource, cfg config.RerankConfig, decayWindow time.Duration) *Reranker {
	return &Reranker{encoder: encoder, feedback: feedback, cfg: cfg, decayWindow: decayWindow}
}

// Rerank re-scores candidates against the query and returns the top topN.
// The pipeline is: cross-encoder raw scores, sigmoid to (0,1), feedback
// boost clamped to [0,1], descending sort, optional MMR diversification.
// Embeddings are stripped from the output; nothing past this stage needs
// them and they dominate payload size.
//
// On encoder failure the incoming fused order is kept and returned
// unreranked rather than failing the search.
func (r *Reranker) Rerank(ctx context.Context, userID, query string, candidates []types.SearchResult, topN int) []types.SearchResult {
	if len(candidates) == 0 {
		return nil
	}
	if topN <= 0 || topN > len(candidates) {
		topN = len(candidates)
	}
	timer := logging.StartTimer(logging.CategoryRerank, "Rerank")
	defer timer.Stop()

	if !r.cfg.Enabled {
		return strip(candidates[:topN])
	}

	passages := make([]string, len(candidates))
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = c.DetailedSummary + "\nKeywords: " + c.Keywords
		ids[i] = c.ID
	}

	raw, err := r.encoder.ScorePairs(ctx, query, passages)
	if err != nil || len(raw) != len(candidates) {
		logging.Rerank("cross-encoder unavailable, keeping fused order: %v", err)
		return strip(candidates[:topN])
	}

	boosts := map[string]float64{}
	if r.feedback != nil && userID != "" {
		if b, err := r.feedback.GetBoosts(ctx, userID, query, ids, r.decayWindow); err == nil {
			boosts = b
		} else {
			logging.Rerank("feedback boosts unavailable: %v", err)
		}
	}

	reranked := make([]types.SearchResult, len(candidates))
	for i, c := range candidates {
		score := sigmoid(raw[i])
		score = clamp01(score + r.cfg.FeedbackWeight*boosts[c.ID])
		c.RawScore = raw[i]
		c.Score = score
		c.Reranked = true
		reranked[i] = c
	}

	sortByScore(reranked)

	if r.cfg.DiversityWeight > 0 {
		reranked = selectMMR(reranked, topN, r.cfg.DiversityWeight)
	} else if len(reranked) > topN {
		reranked = reranked[:topN]
	}
	return strip(reranked)
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// sortByScore is a stable insertion sort; pools are small (tens of entries)
// and equal scores must keep their incoming order.
func sortByScore(results []types.SearchResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

func strip(results []types.SearchResult) []types.SearchResult {
	out := make([]types.SearchResult, len(results))
	copy(out, results)
	for i := range out {
		out[i].Embedding = nil
	}
	return out
}
