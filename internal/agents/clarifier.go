package agents

import (
	"context"
	"strconv"
	"strings"

	"olympus/internal/llm"
)

// =============================================================================
// CLARIFIER
// =============================================================================

// AmbiguityReport is the clarifier's assessment of one query.
type AmbiguityReport struct {
	IsAmbiguous     bool     `json:"is_ambiguous"`
	AmbiguityScore  float64  `json:"ambiguity_score"`
	Issues          []string `json:"issues"`
	Interpretations []string `json:"possible_interpretations"`
}

// Clarifier detects ambiguous queries and produces clarifying questions.
type Clarifier struct {
	client llm.Client
	model  string
}

// NewClarifier wires the clarifier.
func NewClarifier(client llm.Client, model string) *Clarifier {
	return &Clarifier{client: client, model: model}
}

// DetectAmbiguity scores how ambiguous a query is. Heuristics run first;
// the LLM refines only when the heuristics flag the query.
func (c *Clarifier) DetectAmbiguity(ctx context.Context, query string) AmbiguityReport {
	report := heuristicAmbiguity(query)
	if !report.IsAmbiguous || c.client == nil {
		return report
	}

	prompt := `This query about a document collection may be ambiguous: "` + query + `"
List possible interpretations. Respond with JSON only:
{"is_ambiguous": bool, "ambiguity_score": 0.0-1.0, "issues": ["..."], "possible_interpretations": ["..."]}`

	var out AmbiguityReport
	err := c.client.CompleteJSON(ctx, llm.Request{
		Model:    c.model,
		Prompt:   prompt,
		Fallback: `{"is_ambiguous": true, "ambiguity_score": 0.5, "issues": [], "possible_interpretations": []}`,
	}, &out)
	if err != nil {
		return report
	}
	// Keep heuristic issues the model did not repeat.
	out.Issues = append(out.Issues, report.Issues...)
	return out
}

// GenerateQuestions returns at most max clarifying questions for the query.
func (c *Clarifier) GenerateQuestions(ctx context.Context, query string, report AmbiguityReport, max int) []string {
	if max <= 0 {
		max = 3
	}

	fallback := []string{
		"What kind of documents are you looking for?",
		"Is there a specific time period or file type you have in mind?",
	}

	if c.client == nil {
		return capSlice(fallback, max)
	}

	prompt := `A user asked an ambiguous question about their document collection: "` + query + `"
Known issues: ` + strings.Join(report.Issues, "; ") + `
Write up to ` + strconv.Itoa(max) + ` short clarifying questions. Respond with JSON only: {"questions": ["..."]}`

	var out struct {
		Questions []string `json:"questions"`
	}
	err := c.client.CompleteJSON(ctx, llm.Request{
		Model:    c.model,
		Prompt:   prompt,
		Fallback: `{"questions": []}`,
	}, &out)
	if err != nil || len(out.Questions) == 0 {
		return capSlice(fallback, max)
	}
	return capSlice(out.Questions, max)
}

func heuristicAmbiguity(query string) AmbiguityReport {
	var report AmbiguityReport
	words := strings.Fields(query)

	if len(words) <= 2 {
		report.Issues = append(report.Issues, "query is very short")
		report.AmbiguityScore += 0.4
	}
	lower := strings.ToLower(query)
	for _, vague := range []string{"stuff", "things", "something", "anything", "whatever"} {
		if strings.Contains(lower, vague) {
			report.Issues = append(report.Issues, "vague wording: "+vague)
			report.AmbiguityScore += 0.3
			break
		}
	}
	if report.AmbiguityScore > 1 {
		report.AmbiguityScore = 1
	}
	report.IsAmbiguous = report.AmbiguityScore >= 0.4
	return report
}

func capSlice(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
