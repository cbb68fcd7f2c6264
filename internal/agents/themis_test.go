package agents

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olympus/internal/types"
)

func TestScoreAnswerStaysInBounds(t *testing.T) {
	themis := NewThemis(nil, "")

	cases := []struct {
		name             string
		answer           string
		sources          []types.SearchResult
		retrievalQuality float64
	}{
		{"everything maxed", strings.Repeat("according to the report, clearly stated. ", 10),
			goodResults(5), 1.0},
		{"nothing", "", nil, -1},
		{"uncertain answer", "it might possibly be unclear, perhaps", goodResults(1), 0.2},
	}

	for _, tc := range cases {
		report := themis.ScoreAnswer(context.Background(), tc.answer, "query", tc.sources, tc.retrievalQuality)
		assert.GreaterOrEqual(t, report.Confidence, 0.0, tc.name)
		assert.LessOrEqual(t, report.Confidence, 1.0, tc.name)
		assert.NotEmpty(t, report.FactorBreakdown, tc.name)
	}
}

func TestScoreAnswerClampsMaxedFactors(t *testing.T) {
	themis := NewThemis(nil, "")
	answer := "According to the invoice, the total is confirmed and clearly stated in the document. " +
		"The report shows that payment was received."

	report := themis.ScoreAnswer(context.Background(), answer, "invoice total", goodResults(5), 1.0)

	// base 0.5 + sources 0.2 + top 0.18 + length 0.15 + retrieval 0.2 +
	// language 0.2 sums past 1 and must clamp.
	assert.Equal(t, 1.0, report.Confidence)
}

func TestScoreAnswerLanguageFactor(t *testing.T) {
	themis := NewThemis(nil, "")
	sources := goodResults(3)

	certain := themis.ScoreAnswer(context.Background(),
		"The contract clearly states that the term is two years, confirmed in section 3.",
		"q", sources, 0.8)
	uncertain := themis.ScoreAnswer(context.Background(),
		"The term might be two years, but it is unclear and possibly different in practice.",
		"q", sources, 0.8)

	assert.Equal(t, 0.2, certain.FactorBreakdown["language"])
	assert.Equal(t, 0.05, uncertain.FactorBreakdown["language"])
	assert.Greater(t, certain.Confidence, uncertain.Confidence)
}

func TestScoreAnswerRetrievalFactor(t *testing.T) {
	themis := NewThemis(nil, "")

	withQuality := themis.ScoreAnswer(context.Background(), "answer text long enough to pass the short check", "q", nil, 0.9)
	withoutQuality := themis.ScoreAnswer(context.Background(), "answer text long enough to pass the short check", "q", nil, -1)

	assert.InDelta(t, 0.18, withQuality.FactorBreakdown["retrieval"], 1e-9)
	assert.Equal(t, 0.1, withoutQuality.FactorBreakdown["retrieval"])
}

func TestClassifyEvidence(t *testing.T) {
	strong := []types.SearchResult{
		searchResult("a", 0.9), searchResult("b", 0.7), searchResult("c", 0.5),
	}
	assert.Equal(t, EvidenceStrong, classifyEvidence(strong))
	assert.Equal(t, EvidenceModerate, classifyEvidence(strong[:2]))
	assert.Equal(t, EvidenceWeak, classifyEvidence(strong[:1]))
	assert.Equal(t, EvidenceNone, classifyEvidence(nil))

	// Low-scoring sources do not count as support.
	weak := []types.SearchResult{
		searchResult("a", 0.3), searchResult("b", 0.2), searchResult("c", 0.1),
	}
	assert.Equal(t, EvidenceNone, classifyEvidence(weak))
}

func TestScoreAnswerEvidenceInReport(t *testing.T) {
	themis := NewThemis(nil, "")
	report := themis.ScoreAnswer(context.Background(), "some answer", "q", goodResults(4), 0.5)
	require.Equal(t, EvidenceStrong, report.Evidence)
}
