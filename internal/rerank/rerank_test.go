package rerank

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olympus/internal/config"
	"olympus/internal/types"
)

type scriptedEncoder struct {
	scores   []float64
	err      error
	calls    int
	passages []string
}

func (e *scriptedEncoder) ScorePairs(_ context.Context, _ string, passages []string) ([]float64, error) {
	e.calls++
	e.passages = passages
	if e.err != nil {
		return nil, e.err
	}
	if len(e.scores) != len(passages) {
		return nil, errors.New("scripted encoder length mismatch")
	}
	return e.scores, nil
}

type staticFeedback struct {
	boosts map[string]float64
	err    error
}

func (f *staticFeedback) GetBoosts(_ context.Context, _, _ string, _ []string, _ time.Duration) (map[string]float64, error) {
	return f.boosts, f.err
}

func candidate(id, keywords string, score float64) types.SearchResult {
	return types.SearchResult{
		Document: types.Document{
			ID:              id,
			Filename:        id + ".txt",
			DetailedSummary: "summary of " + id,
			Keywords:        keywords,
			Embedding:       []float32{0.1, 0.2},
		},
		Score: score,
	}
}

func rerankConfig() config.RerankConfig {
	return config.RerankConfig{Enabled: true, FeedbackWeight: 0.2}
}

func TestRerankOrdersBySigmoidScore(t *testing.T) {
	encoder := &scriptedEncoder{scores: []float64{-2.0, 3.0, 0.5}}
	r := New(encoder, nil, rerankConfig(), 0)

	in := []types.SearchResult{
		candidate("low", "", 0.9),
		candidate("high", "", 0.8),
		candidate("mid", "", 0.7),
	}
	out := r.Rerank(context.Background(), "u1", "query", in, 3)

	require.Len(t, out, 3)
	assert.Equal(t, "high", out[0].ID)
	assert.Equal(t, "mid", out[1].ID)
	assert.Equal(t, "low", out[2].ID)

	for _, res := range out {
		assert.True(t, res.Reranked)
		assert.GreaterOrEqual(t, res.Score, 0.0)
		assert.LessOrEqual(t, res.Score, 1.0)
		assert.Nil(t, res.Embedding, "embeddings must be stripped")
	}
	assert.Equal(t, 3.0, out[0].RawScore)
}

func TestRerankFeedbackBoostIsBoundedByWeight(t *testing.T) {
	// Identical raw scores; a full +1 boost moves one document ahead by at
	// most FeedbackWeight.
	encoder := &scriptedEncoder{scores: []float64{0, 0}}
	feedback := &staticFeedback{boosts: map[string]float64{"boosted": 1.0}}
	r := New(encoder, feedback, rerankConfig(), 30*24*time.Hour)

	in := []types.SearchResult{
		candidate("plain", "", 0.9),
		candidate("boosted", "", 0.8),
	}
	out := r.Rerank(context.Background(), "u1", "query", in, 2)

	require.Len(t, out, 2)
	assert.Equal(t, "boosted", out[0].ID)
	assert.InDelta(t, 0.2, out[0].Score-out[1].Score, 1e-9)
}

func TestRerankScoreClampedAfterBoost(t *testing.T) {
	// Large positive raw plus a full boost must not exceed 1.
	encoder := &scriptedEncoder{scores: []float64{10}}
	feedback := &staticFeedback{boosts: map[string]float64{"a": 1.0}}
	r := New(encoder, feedback, rerankConfig(), time.Hour)

	out := r.Rerank(context.Background(), "u1", "q", []types.SearchResult{candidate("a", "", 0.5)}, 1)
	require.Len(t, out, 1)
	assert.LessOrEqual(t, out[0].Score, 1.0)
}

func TestRerankKeepsFusedOrderOnEncoderFailure(t *testing.T) {
	encoder := &scriptedEncoder{err: errors.New("model offline")}
	r := New(encoder, nil, rerankConfig(), 0)

	in := []types.SearchResult{
		candidate("a", "", 0.9),
		candidate("b", "", 0.8),
		candidate("c", "", 0.7),
	}
	out := r.Rerank(context.Background(), "u1", "q", in, 2)

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
	assert.False(t, out[0].Reranked)
	assert.Nil(t, out[0].Embedding)
}

func TestRerankDisabledTruncatesAndStrips(t *testing.T) {
	cfg := rerankConfig()
	cfg.Enabled = false
	encoder := &scriptedEncoder{scores: []float64{1, 2}}
	r := New(encoder, nil, cfg, 0)

	in := []types.SearchResult{candidate("a", "", 0.9), candidate("b", "", 0.8)}
	out := r.Rerank(context.Background(), "u1", "q", in, 1)

	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
	assert.Nil(t, out[0].Embedding)
	assert.Equal(t, 0, encoder.calls)
}

func TestRerankIsIdempotentWithoutDiversity(t *testing.T) {
	encoder := &scriptedEncoder{scores: []float64{1.5, -0.5, 0.2}}
	r := New(encoder, nil, rerankConfig(), 0)

	in := []types.SearchResult{
		candidate("a", "", 0.9), candidate("b", "", 0.8), candidate("c", "", 0.7),
	}
	first := r.Rerank(context.Background(), "u1", "q", in, 3)

	// Re-scoring the already-sorted output with the permuted score script
	// yields the same order and scores.
	encoder.scores = []float64{1.5, 0.2, -0.5}
	second := r.Rerank(context.Background(), "u1", "q", first, 3)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.InDelta(t, first[i].Score, second[i].Score, 1e-12)
	}
}

func TestRerankMMRPrefersDiverseResults(t *testing.T) {
	cfg := rerankConfig()
	cfg.DiversityWeight = 0.5
	// Two near-duplicates score highest; the diverse document should displace
	// the second duplicate.
	encoder := &scriptedEncoder{scores: []float64{2.0, 1.9, 1.0}}
	r := New(encoder, nil, cfg, 0)

	in := []types.SearchResult{
		candidate("dup1", "invoice,acme,q3", 0.9),
		candidate("dup2", "invoice,acme,q3", 0.8),
		candidate("other", "contract,zenith", 0.7),
	}
	out := r.Rerank(context.Background(), "u1", "q", in, 2)

	require.Len(t, out, 2)
	assert.Equal(t, "dup1", out[0].ID)
	assert.Equal(t, "other", out[1].ID)
}

func TestRerankPassagesCarrySummaryAndKeywords(t *testing.T) {
	encoder := &scriptedEncoder{scores: []float64{1.0}}
	r := New(encoder, nil, rerankConfig(), 0)

	r.Rerank(context.Background(), "u1", "q", []types.SearchResult{
		candidate("a", "invoice,acme", 0.9),
	}, 1)

	require.Len(t, encoder.passages, 1)
	assert.Equal(t, "summary of a\nKeywords: invoice,acme", encoder.passages[0])
}

func TestRerankMMRRelevanceOutweighsPenalty(t *testing.T) {
	cfg := rerankConfig()
	cfg.DiversityWeight = 0.3
	// The second near-duplicate scores far above the diverse document;
	// score - 0.3*similarity still favors it.
	encoder := &scriptedEncoder{scores: []float64{3.0, 2.9, 0.5}}
	r := New(encoder, nil, cfg, 0)

	in := []types.SearchResult{
		candidate("dup1", "invoice,acme,q3", 0.9),
		candidate("dup2", "invoice,acme,q3", 0.8),
		candidate("other", "contract,zenith", 0.7),
	}
	out := r.Rerank(context.Background(), "u1", "q", in, 2)

	require.Len(t, out, 2)
	assert.Equal(t, "dup1", out[0].ID)
	assert.Equal(t, "dup2", out[1].ID)
}

func TestRerankEmptyInput(t *testing.T) {
	r := New(&scriptedEncoder{}, nil, rerankConfig(), 0)
	assert.Nil(t, r.Rerank(context.Background(), "u1", "q", nil, 5))
}

func TestJaccard(t *testing.T) {
	a := keywordSet("invoice, acme, q3")
	b := keywordSet("invoice, acme, q4")
	assert.InDelta(t, 0.5, jaccard(a, b), 1e-12)
	assert.Zero(t, jaccard(a, keywordSet("")))
	assert.Zero(t, jaccard(keywordSet(""), keywordSet("")))
}
