package agents

import (
	"context"
	"strings"

	"olympus/internal/llm"
	"olympus/internal/types"
)

// =============================================================================
// THEMIS: CONFIDENCE SCORER
// =============================================================================

// EvidenceStrength grades the supporting sources of an answer.
type EvidenceStrength string

const (
	EvidenceStrong   EvidenceStrength = "strong"
	EvidenceModerate EvidenceStrength = "moderate"
	EvidenceWeak     EvidenceStrength = "weak"
	EvidenceNone     EvidenceStrength = "none"
)

// ConfidenceReport is Themis's assessment of an answer.
type ConfidenceReport struct {
	Confidence      float64            `json:"confidence"`
	Evidence        EvidenceStrength   `json:"evidence_strength"`
	Alternatives    []string           `json:"alternative_interpretations,omitempty"`
	FollowUps       []string           `json:"suggested_followups,omitempty"`
	FactorBreakdown map[string]float64 `json:"factor_breakdown"`
}

// Themis composes answer confidence from fixed factors: source count, top
// source quality, answer length sanity, retrieval quality, and linguistic
// certainty balance, on a 0.5 base clamped to [0,1].
type Themis struct {
	client llm.Client
	model  string
}

// NewThemis wires the scorer. client may be nil; alternatives and follow-up
// suggestions are then skipped.
func NewThemis(client llm.Client, model string) *Themis {
	return &Themis{client: client, model: model}
}

var (
	certaintyPhrases   = []string{"clearly", "definitely", "confirmed", "states that", "according to", "shows that"}
	uncertaintyPhrases = []string{"might", "maybe", "possibly", "unclear", "not sure", "appears to", "perhaps", "likely"}
)

// ScoreAnswer computes the confidence report. retrievalQuality < 0 means
// "not provided" and contributes the reduced default factor.
func (t *Themis) ScoreAnswer(ctx context.Context, answer, query string, sources []types.SearchResult, retrievalQuality float64) ConfidenceReport {
	factors := map[string]float64{"base": 0.5}

	sourceFrac := float64(len(sources)) / 5.0
	if sourceFrac > 1 {
		sourceFrac = 1
	}
	factors["sources"] = 0.2 * sourceFrac

	if len(sources) > 0 {
		top := sources[0].Score
		if top > 1 {
			top = 1
		}
		factors["top_source"] = 0.2 * top
	}

	if n := len(answer); n < 50 || n > 2000 {
		factors["length"] = 0.1
	} else {
		factors["length"] = 0.15
	}

	if retrievalQuality >= 0 {
		q := retrievalQuality
		if q > 1 {
			q = 1
		}
		factors["retrieval"] = 0.2 * q
	} else {
		factors["retrieval"] = 0.1
	}

	lower := strings.ToLower(answer)
	certain := countPhrases(lower, certaintyPhrases)
	uncertain := countPhrases(lower, uncertaintyPhrases)
	switch {
	case certain > uncertain:
		factors["language"] = 0.2
	case certain == uncertain:
		factors["language"] = 0.15
	default:
		factors["language"] = 0.05
	}

	confidence := 0.0
	for _, f := range factors {
		confidence += f
	}
	// The base plus maxed factors exceeds 1 by construction; clamp.
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}

	report := ConfidenceReport{
		Confidence:      confidence,
		Evidence:        classifyEvidence(sources),
		FactorBreakdown: factors,
	}

	if confidence < 0.6 && t.client != nil {
		report.Alternatives = t.alternatives(ctx, query, answer)
	}
	return report
}

// classifyEvidence counts supporting sources (score >= 0.5).
func classifyEvidence(sources []types.SearchResult) EvidenceStrength {
	supporting := 0
	for _, s := range sources {
		if s.Score >= 0.5 {
			supporting++
		}
	}
	switch {
	case supporting >= 3:
		return EvidenceStrong
	case supporting == 2:
		return EvidenceModerate
	case supporting == 1:
		return EvidenceWeak
	default:
		return EvidenceNone
	}
}

// SuggestFollowUps asks the model for follow-up questions the user might
// want next.
func (t *Themis) SuggestFollowUps(ctx context.Context, query, answer string) []string {
	if t.client == nil {
		return nil
	}
	prompt := `A user asked: "` + query + `" and got this answer:
` + truncateText(answer, 800) + `

Suggest up to 3 short follow-up questions. Respond with JSON only: {"questions": ["..."]}`

	var out struct {
		Questions []string `json:"questions"`
	}
	err := t.client.CompleteJSON(ctx, llm.Request{
		Model:    t.model,
		Prompt:   prompt,
		Fallback: `{"questions": []}`,
	}, &out)
	if err != nil {
		return nil
	}
	return capSlice(out.Questions, 3)
}

func (t *Themis) alternatives(ctx context.Context, query, answer string) []string {
	prompt := `The answer to "` + query + `" has low confidence. List up to 2 alternative
interpretations of what the user might have meant. Respond with JSON only: {"interpretations": ["..."]}`

	var out struct {
		Interpretations []string `json:"interpretations"`
	}
	err := t.client.CompleteJSON(ctx, llm.Request{
		Model:    t.model,
		Prompt:   prompt,
		Fallback: `{"interpretations": []}`,
	}, &out)
	if err != nil {
		return nil
	}
	return capSlice(out.Interpretations, 2)
}

func countPhrases(haystack string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		n += strings.Count(haystack, p)
	}
	return n
}
