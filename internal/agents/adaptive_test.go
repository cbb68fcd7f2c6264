package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"olympus/internal/types"
)

func TestSelectStrategyByIndicators(t *testing.T) {
	a := NewAdaptiveRetriever(nil, "")

	cases := []struct {
		query string
		want  Strategy
	}{
		{"show me the recent invoices from last month", StrategyTemporal},
		{"find the document titled \"Q3 Budget\" with the exact number", StrategyPrecise},
		{"documents about machine learning and related topics regarding training", StrategySemantic},
		{"show me everything connected to the acme project overview", StrategyExploratory},
		{"quarterly financial performance summary for the board", StrategyHybrid},
	}
	for _, tc := range cases {
		params := a.SelectStrategy(context.Background(), tc.query)
		assert.Equal(t, tc.want, params.Strategy, "query: %s", tc.query)
	}
}

func TestSelectStrategyShortAmbiguousQueryLeansSemantic(t *testing.T) {
	a := NewAdaptiveRetriever(nil, "")

	// One indicator from three different strategies: no clear winner, and at
	// four words the embedding leg is the safer recall path.
	params := a.SelectStrategy(context.Background(), "recent stuff about anything")
	assert.Equal(t, StrategySemantic, params.Strategy)
	assert.Equal(t, 0.5, params.Probability)
}

func TestSelectStrategyParamsComeFromTable(t *testing.T) {
	a := NewAdaptiveRetriever(nil, "")

	params := a.SelectStrategy(context.Background(), "show me the latest reports from this week please")
	assert.Equal(t, StrategyTemporal, params.Strategy)
	assert.True(t, params.PreferRecent)
	assert.Equal(t, 0.3, params.BM25Weight)
	assert.Equal(t, 0.4, params.VectorWeight)
	assert.Greater(t, params.Probability, 0.0)
}

func TestStrategyParamsSearchStrategyConversion(t *testing.T) {
	params := strategyTable[StrategyPrecise]
	strat := params.SearchStrategy()

	assert.Equal(t, types.SearchStrategy{
		Name:         "precise",
		VectorWeight: 0.3,
		BM25Weight:   0.6,
		MinScore:     0.5,
		GraphHops:    1,
	}, strat)
}
