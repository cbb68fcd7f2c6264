package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olympus/internal/config"
	"olympus/internal/rerank"
	"olympus/internal/search"
	"olympus/internal/types"
)

type fakeStore struct {
	vectorResults  []types.SearchResult
	keywordResults []types.SearchResult
}

func (f *fakeStore) VectorSearch(_ context.Context, _ []float32, _ int, _ types.Filters) ([]types.SearchResult, error) {
	return f.vectorResults, nil
}

func (f *fakeStore) KeywordSearch(_ context.Context, _ string, _ int, _ types.Filters) ([]types.SearchResult, error) {
	return f.keywordResults, nil
}

func (f *fakeStore) GetDocument(_ context.Context, id string) (*types.Document, error) {
	return &types.Document{ID: id}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

// scriptedEncoder returns a fixed logit per document id. Passages carry the
// summary, which the candidate helper sets to the id.
type scriptedEncoder struct {
	logits map[string]float64
	err    error
}

func (e *scriptedEncoder) ScorePairs(_ context.Context, _ string, passages []string) ([]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([]float64, len(passages))
	for i, p := range passages {
		for id, logit := range e.logits {
			if len(p) >= len(id) && p[:len(id)] == id {
				out[i] = logit
			}
		}
	}
	return out, nil
}

func candidate(id string, score float64) types.SearchResult {
	return types.SearchResult{
		Document: types.Document{ID: id, Filename: id + ".txt", DetailedSummary: id, Keywords: "k"},
		Score:    score,
	}
}

func retrievalConfig() config.SearchConfig {
	cfg := config.DefaultSearchConfig()
	cfg.RecallTopK = 10
	cfg.RerankTopK = 5
	return cfg
}

func newRetriever(st *fakeStore, encoder rerank.CrossEncoder) *Retriever {
	cfg := retrievalConfig()
	engine := search.NewEngine(st, fakeEmbedder{}, cfg)
	var reranker *rerank.Reranker
	if encoder != nil {
		reranker = rerank.New(encoder, nil, cfg.Rerank, 0)
	}
	return New(engine, reranker, cfg)
}

func TestSearchWithStrategyAppliesScoreFloor(t *testing.T) {
	st := &fakeStore{vectorResults: []types.SearchResult{
		candidate("strong", 0.9), candidate("weak", 0.8),
	}}
	// sigmoid(2.0) = 0.88, sigmoid(-1.0) = 0.27; a 0.5 floor keeps only the
	// strong document.
	r := newRetriever(st, &scriptedEncoder{logits: map[string]float64{"strong": 2.0, "weak": -1.0}})

	strat := types.SearchStrategy{Name: "precise", VectorWeight: 0.6, BM25Weight: 0.3, MinScore: 0.5}
	out, err := r.SearchWithStrategy(context.Background(), "exact thing", types.Filters{}, "u1", strat)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "strong", out[0].ID)

	// Plain Search has no floor and keeps both.
	out, err = r.Search(context.Background(), "exact thing", types.Filters{}, "u1")
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestSearchWithStrategyFloorSkipsUnrerankedResults(t *testing.T) {
	// When the cross-encoder is down the scores are uncalibrated fusion
	// scores; the floor must not wipe them out.
	st := &fakeStore{vectorResults: []types.SearchResult{
		candidate("a", 0.9), candidate("b", 0.8),
	}}
	r := newRetriever(st, &scriptedEncoder{err: errors.New("model offline")})

	strat := types.SearchStrategy{Name: "precise", VectorWeight: 0.6, BM25Weight: 0.3, MinScore: 0.5}
	out, err := r.SearchWithStrategy(context.Background(), "q", types.Filters{}, "u1", strat)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.False(t, out[0].Reranked)
}

func TestSearchWithStrategyNilRerankerTruncates(t *testing.T) {
	var results []types.SearchResult
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		results = append(results, candidate(id, 0.5))
	}
	r := newRetriever(&fakeStore{vectorResults: results}, nil)

	out, err := r.SearchWithStrategy(context.Background(), "q", types.Filters{}, "u1", types.SearchStrategy{Name: "hybrid"})
	require.NoError(t, err)
	assert.Len(t, out, 5)
}
