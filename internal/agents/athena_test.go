package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olympus/internal/session"
)

func classify(t *testing.T, query string, sessCtx *session.Context) Classification {
	t.Helper()
	a := NewAthena(nil, "")
	return a.Classify(context.Background(), query, sessCtx)
}

// =============================================================================
// FOLLOW-UP RESOLUTION
// =============================================================================

func TestFollowupPassthroughWithoutSession(t *testing.T) {
	for _, q := range []string{"show more like that", "what about contracts", "those"} {
		resolved, isFollowup := resolveFollowup(q, nil)
		assert.Equal(t, q, resolved, "query %q must pass through with nil session", q)
		assert.False(t, isFollowup)

		resolved, isFollowup = resolveFollowup(q, &session.Context{})
		assert.Equal(t, q, resolved, "query %q must pass through with empty session", q)
		assert.False(t, isFollowup)
	}
}

func TestFollowupAnaphoricReusesLastQuery(t *testing.T) {
	sess := &session.Context{RecentQueries: []string{"acme invoices from 2023"}}
	resolved, isFollowup := resolveFollowup("show more like that", sess)
	assert.True(t, isFollowup)
	assert.Equal(t, "acme invoices from 2023", resolved)
}

func TestFollowupRestrictionAppendsConstraint(t *testing.T) {
	sess := &session.Context{RecentQueries: []string{"acme invoices"}}
	resolved, isFollowup := resolveFollowup("but only the unpaid ones", sess)
	assert.True(t, isFollowup)
	assert.Equal(t, "acme invoices but only the unpaid ones", resolved)
}

func TestFollowupWhatAboutSwapsSubject(t *testing.T) {
	sess := &session.Context{RecentQueries: []string{"summarize my invoices"}}
	resolved, isFollowup := resolveFollowup("what about contracts", sess)
	assert.True(t, isFollowup)
	assert.Equal(t, "summarize my invoices contracts", resolved)
}

func TestFollowupShortPronounQuery(t *testing.T) {
	sess := &session.Context{RecentQueries: []string{"quarterly report 2024"}}
	resolved, isFollowup := resolveFollowup("open it", sess)
	assert.True(t, isFollowup)
	assert.Equal(t, "quarterly report 2024", resolved)

	// Long queries with a pronoun are not follow-ups.
	resolved, isFollowup = resolveFollowup("find every contract that mentions it in the appendix", sess)
	assert.False(t, isFollowup)
	assert.Equal(t, "find every contract that mentions it in the appendix", resolved)
}

func TestFollowupUsesLatestQuery(t *testing.T) {
	sess := &session.Context{RecentQueries: []string{"old query", "tax documents 2022"}}
	resolved, _ := resolveFollowup("show more like those", sess)
	assert.Equal(t, "tax documents 2022", resolved)
}

// =============================================================================
// RULE CLASSIFICATION
// =============================================================================

func TestClassifyRulePriorities(t *testing.T) {
	cases := []struct {
		query      string
		intent     Intent
		confidence float64
	}{
		{"show me photos from the trip", IntentDocumentSearch, 0.9},
		{"compare the two invoices", IntentComparison, 0.9},
		{"summarize my contracts", IntentSummarization, 0.85},
		{"find my tax documents", IntentDocumentSearch, 0.85},
		{"which invoices are unpaid", IntentDocumentSearch, 0.75},
		{"what is the capital of France", IntentGeneralKnowledge, 0.8},
		{"acme zenith merger", IntentDocumentSearch, 0.6},
		{"how many documents do you have", IntentSystemMeta, 0.9},
	}

	a := NewAthena(nil, "")
	for _, tc := range cases {
		c := a.classifyRules(tc.query)
		assert.Equal(t, tc.intent, c.Intent, "query %q", tc.query)
		assert.InDelta(t, tc.confidence, c.Confidence, 1e-9, "query %q", tc.query)
	}
}

func TestClassifyImageRuleSetsContentTypeFilter(t *testing.T) {
	c := classify(t, "show me screenshots of the dashboard", nil)
	require.Contains(t, c.Filters.ContentTypes, "image")
}

func TestClassifyConfidenceNeverExceedsRuleCap(t *testing.T) {
	queries := []string{
		"show me photos", "compare invoices", "summarize everything",
		"find my files", "what is kubernetes", "random words here",
	}
	a := NewAthena(nil, "")
	for _, q := range queries {
		c := a.classifyRules(q)
		assert.LessOrEqual(t, c.Confidence, ruleConfidenceCap, "query %q", q)
	}
}

func TestClassifyMergesExtractedFilters(t *testing.T) {
	c := classify(t, "find pdf invoices from 2023", nil)
	assert.Equal(t, IntentDocumentSearch, c.Intent)
	assert.Contains(t, c.Filters.FileTypes, ".pdf")
	assert.Contains(t, c.Filters.DocumentTypes, "invoice")
	require.NotNil(t, c.Filters.Time)
	assert.Equal(t, 2023, c.Filters.Time.From.Year())
}

func TestClassifyResolvedQueryCarriedThrough(t *testing.T) {
	sess := &session.Context{RecentQueries: []string{"acme invoices"}}
	c := classify(t, "show more like that", sess)
	assert.True(t, c.IsFollowup)
	assert.Equal(t, "acme invoices", c.ResolvedQuery)
}

// =============================================================================
// ENTITY EXTRACTION
// =============================================================================

func TestExtractEntitiesQuotedAndProper(t *testing.T) {
	entities := extractEntities(`find the "Project Phoenix" report by John Smith`)
	assert.Contains(t, entities, "Project Phoenix")
	assert.Contains(t, entities, "John Smith")
}

func TestExtractEntitiesPossessive(t *testing.T) {
	entities := extractEntities("show me Acme's invoices")
	assert.Contains(t, entities, "Acme")
}

func TestExtractEntitiesSkipsSentenceInitialCapital(t *testing.T) {
	entities := extractEntities("Find contracts with Zenith")
	assert.NotContains(t, entities, "Find")
	assert.Contains(t, entities, "Zenith")
}

func TestExtractEntitiesDedupesCaseInsensitively(t *testing.T) {
	entities := extractEntities(`"acme" report about Acme`)
	count := 0
	for _, e := range entities {
		if e == "acme" || e == "Acme" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestExtractEntitiesDateLiterals(t *testing.T) {
	entities := extractEntities("invoices from 2023-06-15")
	assert.Contains(t, entities, "2023-06-15")
}

func TestIntersectFold(t *testing.T) {
	out := intersectFold([]string{"Acme", "Zenith", "Phoenix"}, []string{"acme", "PHOENIX"})
	assert.Equal(t, []string{"Acme", "Phoenix"}, out)

	// Empty intersection keeps the rule-extracted set.
	out = intersectFold([]string{"Acme"}, []string{"Zenith"})
	assert.Equal(t, []string{"Acme"}, out)
}
