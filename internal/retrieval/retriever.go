// Package retrieval composes the hybrid search engine and the reranker into
// the single retrieval surface the orchestrator consumes: recall wide, rerank
// narrow, return the reranked slice.
package retrieval

import (
	"context"

	"olympus/internal/config"
	"olympus/internal/logging"
	"olympus/internal/rerank"
	"olympus/internal/search"
	"olympus/internal/store"
	"olympus/internal/types"
)

// Retriever runs recall through the search engine and precision through the
// reranker.
type Retriever struct {
	engine   *search.Engine
	reranker *rerank.Reranker
	cfg      config.SearchConfig
}

// New wires the two stages.
func New(engine *search.Engine, reranker *rerank.Reranker, cfg config.SearchConfig) *Retriever {
	return &Retriever{engine: engine, reranker: reranker, cfg: cfg}
}

// Search recalls RecallTopK candidates and reranks down to RerankTopK.
// A nil reranker returns the fused candidates directly.
func (r *Retriever) Search(ctx context.Context, query string, filters types.Filters, userID string) ([]types.SearchResult, error) {
	candidates, err := r.engine.SearchTopK(ctx, query, filters, r.cfg.RecallTopK)
	if err != nil {
		return nil, err
	}
	return r.finish(ctx, userID, query, candidates, 0), nil
}

// SearchWithStrategy is Search with a per-query strategy steering the fusion
// weights and a calibrated score floor.
func (r *Retriever) SearchWithStrategy(ctx context.Context, query string, filters types.Filters, userID string, strat types.SearchStrategy) ([]types.SearchResult, error) {
	candidates, err := r.engine.SearchStrategy(ctx, query, filters, r.cfg.RecallTopK, strat)
	if err != nil {
		return nil, err
	}
	return r.finish(ctx, userID, query, candidates, strat.MinScore), nil
}

// finish reranks the candidate pool and applies the strategy's score floor.
// The floor only makes sense against calibrated cross-encoder scores, so it
// is skipped when rerank did not run; RRF fusion scores live near zero and
// would all fall under any useful threshold.
func (r *Retriever) finish(ctx context.Context, userID, query string, candidates []types.SearchResult, minScore float64) []types.SearchResult {
	if len(candidates) == 0 {
		return nil
	}

	if r.reranker == nil {
		if len(candidates) > r.cfg.RerankTopK {
			candidates = candidates[:r.cfg.RerankTopK]
		}
		return candidates
	}

	reranked := r.reranker.Rerank(ctx, userID, query, candidates, r.cfg.RerankTopK)
	if minScore > 0 {
		kept := reranked[:0]
		for _, res := range reranked {
			if !res.Reranked || res.Score >= minScore {
				kept = append(kept, res)
			}
		}
		reranked = kept
	}
	logging.Search("retrieved %d candidates, returned %d after rerank", len(candidates), len(reranked))
	return reranked
}

// GetDocument fetches one record by id.
func (r *Retriever) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	return r.engine.GetDocument(ctx, id)
}

// =============================================================================
// TURN MEMORY
// =============================================================================

// TurnMemory persists completed turns into the store's session history.
type TurnMemory struct {
	store *store.LocalStore
}

// NewTurnMemory wraps the store as the orchestrator's memory sink.
func NewTurnMemory(s *store.LocalStore) *TurnMemory {
	return &TurnMemory{store: s}
}

// RecordTurn appends one completed turn.
func (m *TurnMemory) RecordTurn(ctx context.Context, sessionID, query, intent, answer string, resultIDs []string, confidence float64) error {
	return m.store.RecordTurn(ctx, store.SessionTurn{
		SessionID:  sessionID,
		Query:      query,
		Intent:     intent,
		Answer:     answer,
		ResultIDs:  resultIDs,
		Confidence: confidence,
	})
}
