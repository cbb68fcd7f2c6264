package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olympus/internal/config"
	"olympus/internal/types"
)

type fakeStore struct {
	vectorResults  []types.SearchResult
	vectorErr      error
	keywordResults []types.SearchResult
	keywordErr     error
}

func (f *fakeStore) VectorSearch(_ context.Context, _ []float32, _ int, _ types.Filters) ([]types.SearchResult, error) {
	return f.vectorResults, f.vectorErr
}

func (f *fakeStore) KeywordSearch(_ context.Context, _ string, _ int, _ types.Filters) ([]types.SearchResult, error) {
	return f.keywordResults, f.keywordErr
}

func (f *fakeStore) GetDocument(_ context.Context, id string) (*types.Document, error) {
	return &types.Document{ID: id}, nil
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func hybridConfig() config.SearchConfig {
	cfg := config.DefaultSearchConfig()
	cfg.RecallTopK = 10
	return cfg
}

func TestSearchFusesBothLegs(t *testing.T) {
	st := &fakeStore{
		vectorResults:  []types.SearchResult{result("a", 0.9), result("b", 0.7)},
		keywordResults: []types.SearchResult{result("b", 5.0), result("c", 2.0)},
	}
	engine := NewEngine(st, &fakeEmbedder{}, hybridConfig())

	results, err := engine.Search(context.Background(), "quarterly report", types.Filters{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "b", results[0].ID, "document in both legs should rank first")
}

func TestSearchSurvivesVectorLegFailure(t *testing.T) {
	st := &fakeStore{
		vectorErr:      errors.New("vec table gone"),
		keywordResults: []types.SearchResult{result("k", 3.0)},
	}
	engine := NewEngine(st, &fakeEmbedder{}, hybridConfig())

	results, err := engine.Search(context.Background(), "report", types.Filters{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "k", results[0].ID)
}

func TestSearchSurvivesEmbeddingFailure(t *testing.T) {
	st := &fakeStore{
		keywordResults: []types.SearchResult{result("k", 3.0)},
	}
	engine := NewEngine(st, &fakeEmbedder{err: errors.New("model offline")}, hybridConfig())

	results, err := engine.Search(context.Background(), "report", types.Filters{})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearchFailsWhenBothLegsFail(t *testing.T) {
	st := &fakeStore{
		vectorErr:  errors.New("vec down"),
		keywordErr: errors.New("fts down"),
	}
	engine := NewEngine(st, &fakeEmbedder{}, hybridConfig())

	_, err := engine.Search(context.Background(), "report", types.Filters{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both retrieval legs failed")
}

func TestSearchTruncatesToTopK(t *testing.T) {
	var vector, keyword []types.SearchResult
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		vector = append(vector, result("v"+id, 0.5))
		keyword = append(keyword, result("k"+id, 0.5))
	}
	st := &fakeStore{vectorResults: vector, keywordResults: keyword}
	engine := NewEngine(st, &fakeEmbedder{}, hybridConfig())

	results, err := engine.SearchTopK(context.Background(), "report", types.Filters{}, 4)
	require.NoError(t, err)
	assert.Len(t, results, 4)
}

func TestSearchStrategyOverridesFusionWeights(t *testing.T) {
	st := &fakeStore{
		vectorResults:  []types.SearchResult{result("vec", 0.9)},
		keywordResults: []types.SearchResult{result("kw", 4.0)},
	}
	engine := NewEngine(st, &fakeEmbedder{}, hybridConfig())

	precise := types.SearchStrategy{Name: "precise", VectorWeight: 0.3, BM25Weight: 0.6}
	results, err := engine.SearchStrategy(context.Background(), "invoice 4711", types.Filters{}, 10, precise)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "kw", results[0].ID, "bm25-heavy strategy should promote the keyword hit")

	semantic := types.SearchStrategy{Name: "semantic", VectorWeight: 0.7, BM25Weight: 0.2}
	results, err = engine.SearchStrategy(context.Background(), "documents about onboarding", types.Filters{}, 10, semantic)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "vec", results[0].ID)
}

func TestSearchStrategyZeroWeightsFallBackToConfig(t *testing.T) {
	// Configured weights are vector-heavy; a strategy that sets neither
	// weight must not zero out the fusion.
	st := &fakeStore{
		vectorResults:  []types.SearchResult{result("vec", 0.9)},
		keywordResults: []types.SearchResult{result("kw", 4.0)},
	}
	engine := NewEngine(st, &fakeEmbedder{}, hybridConfig())

	results, err := engine.SearchStrategy(context.Background(), "report", types.Filters{}, 10, types.SearchStrategy{Name: "hybrid"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "vec", results[0].ID)
}

func TestSearchHybridDisabledUsesVectorOnly(t *testing.T) {
	cfg := hybridConfig()
	cfg.Hybrid.Enabled = false
	st := &fakeStore{
		vectorResults:  []types.SearchResult{result("v", 0.9)},
		keywordResults: []types.SearchResult{result("k", 3.0)},
	}
	engine := NewEngine(st, &fakeEmbedder{}, cfg)

	results, err := engine.Search(context.Background(), "report", types.Filters{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "v", results[0].ID)
}
