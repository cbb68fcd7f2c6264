package agents

import (
	"context"
	"regexp"
	"strings"

	"olympus/internal/llm"
	"olympus/internal/logging"
	"olympus/internal/session"
	"olympus/internal/types"
)

// Classification is Athena's output for one query.
type Classification struct {
	Intent        Intent        `json:"intent"`
	Confidence    float64       `json:"confidence"`
	Filters       types.Filters `json:"filters"`
	Entities      []string      `json:"entities"`
	Clarifying    []string      `json:"clarification_questions,omitempty"`
	IsFollowup    bool          `json:"is_followup"`
	ResolvedQuery string        `json:"resolved_query"`
}

// Athena classifies queries in two stages: follow-up resolution against the
// session window, then rule-based intent classification. Low-confidence rule
// results are re-classified with one LLM call.
type Athena struct {
	client llm.Client
	model  string
}

// NewAthena wires the classifier to the text model. One model per agent;
// the classifier never switches models at runtime.
func NewAthena(client llm.Client, model string) *Athena {
	return &Athena{client: client, model: model}
}

// ruleConfidenceCap bounds every rule-path confidence. Only the LLM path can
// exceed it, and that path is itself clamped to [0,1].
const ruleConfidenceCap = 0.95

// llmReclassifyBelow triggers the LLM second opinion.
const llmReclassifyBelow = 0.8

// clarifyBelow marks the query as needing clarification.
const clarifyBelow = 0.4

// Classify runs the full pipeline. sessCtx may be nil for sessionless
// queries; then follow-up resolution is skipped entirely.
func (a *Athena) Classify(ctx context.Context, query string, sessCtx *session.Context) Classification {
	timer := logging.StartTimer(logging.CategoryAgents, "Athena.Classify")
	defer timer.Stop()

	resolved, isFollowup := resolveFollowup(query, sessCtx)

	c := a.classifyRules(resolved)
	c.IsFollowup = isFollowup
	c.ResolvedQuery = resolved
	c.Entities = extractEntities(resolved)
	c.Filters = c.Filters.Merge(extractFilters(resolved))

	if c.Confidence < llmReclassifyBelow && a.client != nil {
		a.reclassifyLLM(ctx, &c)
	}

	if c.Confidence < clarifyBelow && len(c.Clarifying) == 0 {
		c.Clarifying = []string{
			"Could you describe what kind of documents you are looking for?",
			"Are you searching for a specific file type or time period?",
		}
	}
	if len(c.Clarifying) > 0 {
		c.Intent = IntentClarificationNeeded
	}

	logging.AgentsDebug("classified %q as %s (%.2f, followup=%v)", query, c.Intent, c.Confidence, isFollowup)
	return c
}

// =============================================================================
// STAGE 1: FOLLOW-UP RESOLUTION
// =============================================================================

var (
	anaphoricPatterns = []string{
		"show more", "more like", "similar", "like that", "like those",
	}
	restrictionPatterns = []string{
		"but only", "only the", "just the", "filter by",
	}
	whatAboutRe = regexp.MustCompile(`(?i)^what about\s+(.+)$`)
	pronouns    = map[string]bool{"that": true, "it": true, "those": true, "this": true, "them": true}
)

// resolveFollowup rewrites anaphoric queries using the last session query.
// With no session context the query always passes through unchanged.
func resolveFollowup(query string, sessCtx *session.Context) (string, bool) {
	if sessCtx == nil || len(sessCtx.RecentQueries) == 0 {
		return query, false
	}
	last := sessCtx.RecentQueries[len(sessCtx.RecentQueries)-1]
	lower := strings.ToLower(strings.TrimSpace(query))

	for _, p := range anaphoricPatterns {
		if strings.Contains(lower, p) {
			return last, true
		}
	}

	for _, p := range restrictionPatterns {
		if strings.Contains(lower, p) {
			// Keep the prior subject, append the new constraint.
			return last + " " + query, true
		}
	}

	if m := whatAboutRe.FindStringSubmatch(query); m != nil {
		return last + " " + m[1], true
	}

	words := strings.Fields(lower)
	if len(words) <= 4 {
		for _, w := range words {
			if pronouns[strings.Trim(w, "?.!,")] {
				return last, true
			}
		}
	}
	return query, false
}

// =============================================================================
// STAGE 2: RULE CLASSIFICATION
// =============================================================================

var (
	imageWords      = []string{"image", "images", "photo", "photos", "picture", "pictures", "screenshot", "screenshots"}
	searchVerbs     = []string{"show", "find", "search", "get", "list", "give", "display", "retrieve"}
	comparisonWords = []string{"compare", "comparison", "versus", "vs", "difference", "differences", "differ"}
	summaryWords    = []string{"summarize", "summarise", "summary", "overview", "tldr", "recap", "brief me"}
	docWords        = []string{"document", "documents", "file", "files", "pdf", "pdfs", "doc", "docs",
		"report", "reports", "invoice", "invoices", "contract", "contracts", "resume", "resumes",
		"receipt", "receipts", "presentation", "spreadsheet", "spreadsheets", "note", "notes"}
	questionWords   = []string{"what", "who", "when", "where", "why", "how", "which", "is", "are", "does", "do", "can"}
	possessiveRe    = regexp.MustCompile(`(?i)\b(my|our|the)\s+`)
	systemMetaWords = []string{"how many documents", "index size", "system status", "what can you do", "help me use"}
)

// classifyRules applies the fixed-priority rule chain. Rule confidences
// never exceed ruleConfidenceCap.
func (a *Athena) classifyRules(query string) Classification {
	lower := strings.ToLower(query)

	for _, p := range systemMetaWords {
		if strings.Contains(lower, p) {
			return Classification{Intent: IntentSystemMeta, Confidence: 0.9}
		}
	}

	// 1. Image keyword + search verb.
	if containsAny(lower, imageWords) && containsAny(lower, searchVerbs) {
		return Classification{
			Intent:     IntentDocumentSearch,
			Confidence: 0.9,
			Filters:    types.Filters{ContentTypes: []string{"image"}},
		}
	}

	// 2. Comparison.
	if containsAny(lower, comparisonWords) {
		return Classification{Intent: IntentComparison, Confidence: 0.9}
	}

	// 3. Summarization.
	if containsAny(lower, summaryWords) {
		return Classification{Intent: IntentSummarization, Confidence: 0.85}
	}

	// 4. Possessive or action verb with a document keyword.
	if containsAny(lower, docWords) && (possessiveRe.MatchString(query) || containsAny(lower, searchVerbs)) {
		return Classification{Intent: IntentDocumentSearch, Confidence: 0.85}
	}

	// 5. Question word: general knowledge unless a document keyword anchors
	// it to the corpus.
	if first := firstWord(lower); containsWord(questionWords, first) {
		if containsAny(lower, docWords) {
			return Classification{Intent: IntentDocumentSearch, Confidence: 0.75}
		}
		return Classification{Intent: IntentGeneralKnowledge, Confidence: 0.8}
	}

	// 6. Default.
	return Classification{Intent: IntentDocumentSearch, Confidence: 0.6}
}

type llmClassification struct {
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Entities   []string `json:"entities"`
}

// reclassifyLLM asks the text model for a second opinion and merges: the LLM
// intent wins, entity sets are intersected, confidence is clamped to [0,1].
func (a *Athena) reclassifyLLM(ctx context.Context, c *Classification) {
	prompt := `Classify the intent of this query about a personal document collection.
Intents: document_search, general_knowledge, system_meta, comparison, summarization, analysis, clarification_needed.

Query: ` + c.ResolvedQuery + `

Respond with JSON only: {"intent": "...", "confidence": 0.0-1.0, "entities": ["..."]}`

	var out llmClassification
	err := a.client.CompleteJSON(ctx, llm.Request{
		Model:    a.model,
		Prompt:   prompt,
		Fallback: `{"intent": "", "confidence": 0}`,
	}, &out)
	if err != nil || out.Intent == "" {
		return
	}

	switch Intent(out.Intent) {
	case IntentDocumentSearch, IntentGeneralKnowledge, IntentSystemMeta,
		IntentComparison, IntentSummarization, IntentAnalysis, IntentClarificationNeeded:
		c.Intent = Intent(out.Intent)
	default:
		return
	}

	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	if out.Confidence > c.Confidence {
		c.Confidence = out.Confidence
	}

	if len(out.Entities) > 0 && len(c.Entities) > 0 {
		c.Entities = intersectFold(c.Entities, out.Entities)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func containsWord(words []string, w string) bool {
	for _, candidate := range words {
		if candidate == w {
			return true
		}
	}
	return false
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], "?.!,")
}

// intersectFold intersects case-insensitively, keeping a's order and casing.
func intersectFold(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, s := range b {
		set[strings.ToLower(s)] = true
	}
	var out []string
	for _, s := range a {
		if set[strings.ToLower(s)] {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return a
	}
	return out
}
