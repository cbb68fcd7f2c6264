// Package search is the retrieval adapter: it embeds queries, runs the
// vector and keyword legs against the local store, and fuses them with
// reciprocal rank fusion. Degradation is silent by policy: a failed leg
// drops out rather than failing the search.
package search

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"olympus/internal/config"
	"olympus/internal/logging"
	"olympus/internal/types"
)

// Store is the slice of the local store the engine needs.
type Store interface {
	VectorSearch(ctx context.Context, query []float32, topK int, f types.Filters) ([]types.SearchResult, error)
	KeywordSearch(ctx context.Context, query string, topK int, f types.Filters) ([]types.SearchResult, error)
	GetDocument(ctx context.Context, id string) (*types.Document, error)
}

// Embedder turns query text into a unit vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine runs hybrid retrieval.
type Engine struct {
	store    Store
	embedder Embedder
	cfg      config.SearchConfig
}

// NewEngine wires the retrieval engine.
func NewEngine(store Store, embedder Embedder, cfg config.SearchConfig) *Engine {
	return &Engine{store: store, embedder: embedder, cfg: cfg}
}

// Search runs the hybrid pipeline and returns the fused candidate pool,
// best first, up to cfg.RecallTopK. Fallback order when a leg fails:
// both legs, then vector only, then keyword only, then empty.
func (e *Engine) Search(ctx context.Context, query string, filters types.Filters) ([]types.SearchResult, error) {
	return e.SearchTopK(ctx, query, filters, e.cfg.RecallTopK)
}

// SearchTopK is Search with an explicit pool size.
func (e *Engine) SearchTopK(ctx context.Context, query string, filters types.Filters, topK int) ([]types.SearchResult, error) {
	return e.search(ctx, query, filters, topK, e.cfg.Hybrid.VectorWeight, e.cfg.Hybrid.BM25Weight)
}

// SearchStrategy is SearchTopK with the strategy's fusion weights in place
// of the configured ones. A strategy with both weights zero falls back to
// the configuration.
func (e *Engine) SearchStrategy(ctx context.Context, query string, filters types.Filters, topK int, strat types.SearchStrategy) ([]types.SearchResult, error) {
	vecW, bm25W := strat.VectorWeight, strat.BM25Weight
	if vecW == 0 && bm25W == 0 {
		vecW, bm25W = e.cfg.Hybrid.VectorWeight, e.cfg.Hybrid.BM25Weight
	}
	return e.search(ctx, query, filters, topK, vecW, bm25W)
}

func (e *Engine) search(ctx context.Context, query string, filters types.Filters, topK int, vectorWeight, bm25Weight float64) ([]types.SearchResult, error) {
	timer := logging.StartTimer(logging.CategorySearch, "SearchTopK")
	defer timer.Stop()

	if topK <= 0 {
		topK = e.cfg.RecallTopK
	}

	if !e.cfg.Hybrid.Enabled {
		results, err := e.vectorLeg(ctx, query, filters, topK)
		if err != nil {
			logging.Search("vector leg failed, falling back to keyword: %v", err)
			return e.store.KeywordSearch(ctx, query, topK, filters)
		}
		return results, nil
	}

	var vectorResults, keywordResults []types.SearchResult
	var vectorErr, keywordErr error

	// Both legs run concurrently; errors are collected, not propagated, so
	// one healthy leg still produces results.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vectorResults, vectorErr = e.vectorLeg(gctx, query, filters, topK)
		return nil
	})
	g.Go(func() error {
		keywordResults, keywordErr = e.store.KeywordSearch(gctx, query, topK, filters)
		return nil
	})
	g.Wait()

	switch {
	case vectorErr == nil && keywordErr == nil:
		fused := FuseRRF([]RankedList{
			{Weight: vectorWeight, Results: vectorResults},
			{Weight: bm25Weight, Results: keywordResults},
		}, e.cfg.Hybrid.RRFK)
		if len(fused) > topK {
			fused = fused[:topK]
		}
		logging.SearchDebug("hybrid fused %d vector + %d keyword into %d",
			len(vectorResults), len(keywordResults), len(fused))
		return fused, nil

	case vectorErr == nil:
		logging.Search("keyword leg failed, vector only: %v", keywordErr)
		return vectorResults, nil

	case keywordErr == nil:
		logging.Search("vector leg failed, keyword only: %v", vectorErr)
		return keywordResults, nil

	default:
		return nil, fmt.Errorf("both retrieval legs failed: vector: %v, keyword: %v", vectorErr, keywordErr)
	}
}

func (e *Engine) vectorLeg(ctx context.Context, query string, filters types.Filters, topK int) ([]types.SearchResult, error) {
	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}
	return e.store.VectorSearch(ctx, embedding, topK, filters)
}

// GetDocument exposes direct record lookup for agents that already hold an
// id (attachments, graph expansion).
func (e *Engine) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	return e.store.GetDocument(ctx, id)
}
