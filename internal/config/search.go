package config

// HybridConfig controls the two retrieval legs and their RRF fusion weights.
type HybridConfig struct {
	Enabled      bool    `yaml:"enabled"`
	VectorWeight float64 `yaml:"vector_weight"`
	BM25Weight   float64 `yaml:"bm25_weight"`
	// RRFK is the rank-smoothing constant in the reciprocal rank formula.
	RRFK int `yaml:"rrf_k"`
}

// RerankConfig configures the cross-encoder rerank stage.
type RerankConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Model     string `yaml:"model"`
	MaxLength int    `yaml:"max_length"`
	// FeedbackWeight scales the per-user feedback boost added to the
	// sigmoid-normalized score. The boost itself is in [-1,1].
	FeedbackWeight float64 `yaml:"feedback_weight"`
	// DiversityWeight > 0 enables MMR selection.
	DiversityWeight float64 `yaml:"diversity_weight"`
}

// CorrectiveConfig bounds the corrective retrieval loop.
type CorrectiveConfig struct {
	MaxIterations    int     `yaml:"max_iterations"`
	QualityThreshold float64 `yaml:"quality_threshold"`
}

// SearchConfig configures the retrieval pipeline end to end.
type SearchConfig struct {
	Hybrid     HybridConfig     `yaml:"hybrid"`
	Rerank     RerankConfig     `yaml:"rerank"`
	Corrective CorrectiveConfig `yaml:"corrective"`

	// RecallTopK is the candidate pool size before rerank; RerankTopK is
	// the final result count.
	RecallTopK int `yaml:"recall_top_k"`
	RerankTopK int `yaml:"rerank_top_k"`

	QueryExpansionEnabled bool `yaml:"query_expansion_enabled"`

	// Graph expansion bounds for the knowledge-graph leg.
	GraphMaxHops      int `yaml:"graph_max_hops"`
	GraphMaxExpansion int `yaml:"graph_max_expansion"`
}

// DefaultSearchConfig returns the retrieval defaults.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Hybrid: HybridConfig{
			Enabled:      true,
			VectorWeight: 0.7,
			BM25Weight:   0.3,
			RRFK:         60,
		},
		Rerank: RerankConfig{
			Enabled:        true,
			Model:          "cross-encoder/ms-marco-MiniLM-L-6-v2",
			MaxLength:      512,
			FeedbackWeight: 0.2,
		},
		Corrective: CorrectiveConfig{
			MaxIterations:    3,
			QualityThreshold: 0.6,
		},
		RecallTopK:            30,
		RerankTopK:            10,
		QueryExpansionEnabled: true,
		GraphMaxHops:          2,
		GraphMaxExpansion:     10,
	}
}
