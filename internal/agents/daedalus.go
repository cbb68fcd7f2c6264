package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"olympus/internal/llm"
	"olympus/internal/logging"
	"olympus/internal/types"
)

// =============================================================================
// DAEDALUS: DOCUMENT PIPELINE
// =============================================================================

// DocAnalysis is the per-document classification stage output.
type DocAnalysis struct {
	DocumentType    string   `json:"document_type"`
	Language        string   `json:"language"`
	Topics          []string `json:"topics"`
	Persons         []string `json:"persons"`
	Organizations   []string `json:"organizations"`
	Dates           []string `json:"dates"`
	Locations       []string `json:"locations"`
	KeyThemes       []string `json:"key_themes"`
	TechnicalDomain string   `json:"technical_domain"`
	ComplexityScore float64  `json:"complexity_score"`
	ContextSummary  string   `json:"context_summary"`
}

// DocInsights is the extraction stage output.
type DocInsights struct {
	ExecutiveSummary string   `json:"executive_summary"`
	DetailedSummary  string   `json:"detailed_summary"`
	KeyPoints        []string `json:"key_points"`
	KeyFacts         []string `json:"key_facts"`
	ImportantQuotes  []string `json:"important_quotes"`
	ActionItems      []string `json:"action_items"`
	DatesDeadlines   []string `json:"dates_deadlines"`
	NumericalData    []string `json:"numerical_data"`
}

// DocAnswer is the pipeline's terminal output.
type DocAnswer struct {
	Answer     string
	Confidence float64
}

type processedDoc struct {
	analysis DocAnalysis
	insights DocInsights
}

// Daedalus answers questions about attached documents: analyze each, pull
// insights, then compose a cited answer. Processed documents are cached by
// id for the pipeline's lifetime.
type Daedalus struct {
	client llm.Client
	model  string

	mu    sync.Mutex
	cache map[string]*processedDoc
}

// NewDaedalus wires the document pipeline.
func NewDaedalus(client llm.Client, model string) *Daedalus {
	return &Daedalus{
		client: client,
		model:  model,
		cache:  make(map[string]*processedDoc),
	}
}

// Process runs all stages over the attached documents and answers the query.
func (d *Daedalus) Process(ctx context.Context, query string, docs []types.Document, history []types.Message, emit StepFunc) DocAnswer {
	step := func(action string, details map[string]interface{}) {
		if emit != nil {
			emit("daedalus", action, details)
		}
	}

	var contexts []string
	for _, doc := range docs {
		step("processing", map[string]interface{}{"filename": doc.Filename})

		processed := d.processOne(ctx, doc)
		block := fmt.Sprintf("Document: %s (%s)\nSummary: %s",
			doc.Filename, processed.analysis.DocumentType, processed.insights.DetailedSummary)
		if len(processed.insights.KeyPoints) > 0 {
			block += "\nKey points:\n- " + strings.Join(processed.insights.KeyPoints, "\n- ")
		}
		contexts = append(contexts, block)
	}

	step("answering", map[string]interface{}{"documents": len(docs)})
	answer := d.answer(ctx, query, contexts, history)

	confidence := 0.5
	if len(answer) > 50 {
		confidence = 0.8
	}
	return DocAnswer{Answer: answer, Confidence: confidence}
}

func (d *Daedalus) processOne(ctx context.Context, doc types.Document) *processedDoc {
	d.mu.Lock()
	if cached, ok := d.cache[doc.ID]; ok {
		d.mu.Unlock()
		return cached
	}
	d.mu.Unlock()

	content := doc.FullContent
	if strings.TrimSpace(content) == "" {
		content = doc.DetailedSummary
	}

	processed := &processedDoc{
		analysis: d.analyze(ctx, doc.Filename, content),
		insights: d.extractInsights(ctx, doc.Filename, content),
	}
	if processed.insights.DetailedSummary == "" {
		processed.insights.DetailedSummary = doc.DetailedSummary
	}

	d.mu.Lock()
	d.cache[doc.ID] = processed
	d.mu.Unlock()
	return processed
}

func (d *Daedalus) analyze(ctx context.Context, filename, content string) DocAnalysis {
	fallback := DocAnalysis{DocumentType: "document", Language: "unknown"}
	if d.client == nil {
		return fallback
	}

	prompt := `Analyze this document and classify it.

Filename: ` + filename + `
Content:
` + truncateText(content, 4000) + `

Respond with JSON only:
{"document_type": "...", "language": "...", "topics": ["..."], "persons": ["..."],
 "organizations": ["..."], "dates": ["..."], "locations": ["..."], "key_themes": ["..."],
 "technical_domain": "...", "complexity_score": 0.0-1.0, "context_summary": "..."}`

	var out DocAnalysis
	err := d.client.CompleteJSON(ctx, llm.Request{
		Model:    d.model,
		Prompt:   prompt,
		Fallback: `{"document_type": "document", "language": "unknown"}`,
	}, &out)
	if err != nil {
		logging.Agents("daedalus analyze failed for %s: %v", filename, err)
		return fallback
	}
	return out
}

func (d *Daedalus) extractInsights(ctx context.Context, filename, content string) DocInsights {
	if d.client != nil {
		prompt := `Extract structured insights from this document.

Filename: ` + filename + `
Content:
` + truncateText(content, 6000) + `

Respond with JSON only:
{"executive_summary": "...", "detailed_summary": "...", "key_points": ["..."],
 "key_facts": ["..."], "important_quotes": ["..."], "action_items": ["..."],
 "dates_deadlines": ["..."], "numerical_data": ["..."]}`

		var out DocInsights
		err := d.client.CompleteJSON(ctx, llm.Request{Model: d.model, Prompt: prompt}, &out)
		if err == nil && out.DetailedSummary != "" {
			return out
		}
		logging.Agents("daedalus insights failed for %s, using regex fallback: %v", filename, err)
	}
	return regexInsights(content)
}

func (d *Daedalus) answer(ctx context.Context, query string, contexts []string, history []types.Message) string {
	fallback := "I processed your documents but could not compose an answer. Please try rephrasing the question."
	if d.client == nil || len(contexts) == 0 {
		return fallback
	}

	prompt := historyPrefix(history, 6) +
		`Answer the question using only these documents. Cite documents by filename.

` + strings.Join(contexts, "\n\n---\n\n") + `

Question: ` + query

	resp, err := d.client.Complete(ctx, llm.Request{
		Model:    d.model,
		Prompt:   prompt,
		Fallback: fallback,
	})
	if err != nil {
		return fallback
	}
	return resp.Text
}

// =============================================================================
// REGEX FALLBACK
// =============================================================================

var (
	listLineRe = regexp.MustCompile(`(?m)^\s*(?:\d+[.)]|[-*•])\s+(.+)$`)
	dateInTextRe = regexp.MustCompile(`\b(?:\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}-\d{2}-\d{2})\b`)
)

// regexInsights is the model-free extraction: leading sentences become the
// summary, numbered or bulleted lines become key points, date and number
// matches fill the remaining fields.
func regexInsights(content string) DocInsights {
	var insights DocInsights

	sentences := strings.SplitAfter(content, ". ")
	limit := len(sentences)
	if limit > 3 {
		limit = 3
	}
	insights.DetailedSummary = strings.TrimSpace(strings.Join(sentences[:limit], ""))
	if len(insights.DetailedSummary) > 600 {
		insights.DetailedSummary = insights.DetailedSummary[:600]
	}
	insights.ExecutiveSummary = insights.DetailedSummary

	for _, m := range listLineRe.FindAllStringSubmatch(content, 10) {
		insights.KeyPoints = append(insights.KeyPoints, strings.TrimSpace(m[1]))
	}
	insights.DatesDeadlines = dateInTextRe.FindAllString(content, 10)
	insights.NumericalData = numberRe.FindAllString(content, 10)
	return insights
}
