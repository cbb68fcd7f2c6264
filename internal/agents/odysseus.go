package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"olympus/internal/llm"
	"olympus/internal/types"
)

// =============================================================================
// ODYSSEUS: REASONING PLANNER
// =============================================================================

// Complexity grades a query for decomposition.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// SubQuery is one step of a decomposed plan.
type SubQuery struct {
	ID           int    `json:"id"`
	Query        string `json:"query"`
	Purpose      string `json:"purpose"`
	Dependencies []int  `json:"dependencies"`
	Priority     int    `json:"priority"`
	Type         string `json:"type"`
}

// ReasoningTrace is the record of a multi-step answer.
type ReasoningTrace struct {
	Complexity Complexity `json:"complexity"`
	SubQueries []SubQuery `json:"sub_queries"`
	Steps      []string   `json:"steps"`
	Answer     string     `json:"answer"`
}

// Odysseus decomposes complex queries into sub-queries, retrieves for each,
// and synthesizes a combined answer.
type Odysseus struct {
	client llm.Client
	model  string
}

// NewOdysseus wires the planner.
func NewOdysseus(client llm.Client, model string) *Odysseus {
	return &Odysseus{client: client, model: model}
}

var complexityMarkers = []string{"compare", "versus", " vs ", "between", "combine", "across"}

// DetectComplexity grades the query from structural signals: multi-part
// markers, question-mark count, and conjunction count.
func (o *Odysseus) DetectComplexity(query string) Complexity {
	lower := " " + strings.ToLower(query) + " "

	markers := 0
	for _, m := range complexityMarkers {
		if strings.Contains(lower, m) {
			markers++
		}
	}
	questions := strings.Count(query, "?")
	ands := strings.Count(lower, " and ")

	score := markers*2 + ands
	if questions > 1 {
		score += 2
	}

	switch {
	case score >= 4:
		return ComplexityComplex
	case score >= 2:
		return ComplexityModerate
	default:
		return ComplexitySimple
	}
}

// Plan runs the full reasoning pipeline: decompose, order by dependencies,
// retrieve per sub-query, synthesize. Simple queries return a nil trace so
// the orchestrator keeps the direct path.
func (o *Odysseus) Plan(ctx context.Context, query string, retrieve SearchFunc, userID string) *ReasoningTrace {
	complexity := o.DetectComplexity(query)
	if complexity == ComplexitySimple || o.client == nil {
		return nil
	}

	trace := &ReasoningTrace{Complexity: complexity}

	subs := o.decompose(ctx, query)
	if len(subs) == 0 {
		return nil
	}
	trace.SubQueries = orderByDependencies(subs)

	var contexts []string
	for _, sub := range trace.SubQueries {
		trace.Steps = append(trace.Steps, fmt.Sprintf("retrieve: %s (%s)", sub.Query, sub.Purpose))
		results, err := retrieve(ctx, sub.Query, types.Filters{}, userID)
		if err != nil || len(results) == 0 {
			trace.Steps = append(trace.Steps, "no results for sub-query "+fmt.Sprint(sub.ID))
			continue
		}
		limit := len(results)
		if limit > 3 {
			limit = 3
		}
		for i := 0; i < limit; i++ {
			contexts = append(contexts, fmt.Sprintf("[%s] %s", results[i].Filename,
				truncateText(results[i].DetailedSummary, 500)))
		}
	}

	trace.Answer = o.synthesize(ctx, query, trace.SubQueries, contexts)
	trace.Steps = append(trace.Steps, "synthesized final answer")
	return trace
}

func (o *Odysseus) decompose(ctx context.Context, query string) []SubQuery {
	prompt := `Decompose this complex question into at most 4 sub-queries:
"` + query + `"

Respond with JSON only:
{"sub_queries": [{"id": 1, "query": "...", "purpose": "...", "dependencies": [], "priority": 1, "type": "search"}]}`

	var out struct {
		SubQueries []SubQuery `json:"sub_queries"`
	}
	err := o.client.CompleteJSON(ctx, llm.Request{
		Model:    o.model,
		Prompt:   prompt,
		Fallback: `{"sub_queries": []}`,
	}, &out)
	if err != nil {
		return nil
	}
	if len(out.SubQueries) > 4 {
		out.SubQueries = out.SubQueries[:4]
	}
	return out.SubQueries
}

func (o *Odysseus) synthesize(ctx context.Context, query string, subs []SubQuery, contexts []string) string {
	if len(contexts) == 0 {
		return "I could not find enough information in your documents to answer all parts of this question."
	}

	var plan strings.Builder
	for _, s := range subs {
		fmt.Fprintf(&plan, "- %s\n", s.Query)
	}

	prompt := `Answer this question using only the provided document excerpts. Cite filenames.

Question: ` + query + `

Sub-questions investigated:
` + plan.String() + `

Document excerpts:
` + strings.Join(contexts, "\n\n")

	resp, err := o.client.Complete(ctx, llm.Request{
		Model:    o.model,
		Prompt:   prompt,
		Fallback: "I found related documents but could not compose a combined answer: " + strings.Join(contexts[:1], ""),
	})
	if err != nil {
		return "I found related documents but could not compose a combined answer."
	}
	return resp.Text
}

// orderByDependencies sorts by priority, then repeatedly moves any sub-query
// after its dependencies. Plans are at most 4 entries, so the quadratic pass
// is irrelevant.
func orderByDependencies(subs []SubQuery) []SubQuery {
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].Priority < subs[j].Priority })

	position := make(map[int]int, len(subs))
	for i, s := range subs {
		position[s.ID] = i
	}
	for pass := 0; pass < len(subs); pass++ {
		moved := false
		for i, s := range subs {
			for _, dep := range s.Dependencies {
				if depPos, ok := position[dep]; ok && depPos > i {
					subs[i], subs[depPos] = subs[depPos], subs[i]
					position[subs[i].ID] = i
					position[subs[depPos].ID] = depPos
					moved = true
				}
			}
		}
		if !moved {
			break
		}
	}
	return subs
}
