package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olympus/internal/types"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := Open(t.TempDir(), 4)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testDoc(id, filename string, embedding []float32) *types.Document {
	return &types.Document{
		ID:              id,
		Filename:        filename,
		FilePath:        "/docs/" + filename,
		FileType:        ".txt",
		ContentType:     types.ContentText,
		DocumentType:    "report",
		DetailedSummary: "a summary mentioning acme and quarterly revenue",
		FullContent:     "full content body",
		Keywords:        "acme,revenue,quarterly",
		EntitiesFlat:    []string{"Acme"},
		EntitiesStructured: map[string][]string{
			"companies": {"Acme"},
		},
		Topics:       []string{"finance"},
		Embedding:    embedding,
		EmbeddingOK:  embedding != nil,
		WordCount:    42,
		CreatedAt:    time.Now().UTC(),
		LastModified: time.Now().UTC(),
	}
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func TestIndexAndGetDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDoc("d1", "report.txt", []float32{1, 0, 0, 0})
	require.NoError(t, s.IndexDocument(ctx, doc))

	exists, err := s.DocumentExists(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "report.txt", got.Filename)
	assert.Equal(t, "report", got.DocumentType)
	assert.Equal(t, []string{"Acme"}, got.EntitiesStructured["companies"])
	assert.Equal(t, []float32{1, 0, 0, 0}, got.Embedding)
	assert.True(t, got.EmbeddingOK)
}

func TestGetDocumentMissing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetDocument(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIndexDocumentReplacesByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.IndexDocument(ctx, testDoc("d1", "old.txt", nil)))
	require.NoError(t, s.IndexDocument(ctx, testDoc("d1", "new.txt", nil)))

	count, err := s.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "new.txt", got.Filename)
}

func TestDeleteDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.IndexDocument(ctx, testDoc("d1", "a.txt", nil)))
	require.NoError(t, s.DeleteDocument(ctx, "d1"))

	exists, err := s.DocumentExists(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestListDocumentsStripsPayload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.IndexDocument(ctx, testDoc("d1", "a.txt", []float32{1, 0, 0, 0})))

	docs, err := s.ListDocuments(ctx, 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Nil(t, docs[0].Embedding)
	assert.Empty(t, docs[0].FullContent)
}

// =============================================================================
// SEARCH
// =============================================================================

func TestVectorSearchOrdersByCosine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.IndexDocument(ctx, testDoc("close", "close.txt", []float32{1, 0, 0, 0})))
	require.NoError(t, s.IndexDocument(ctx, testDoc("far", "far.txt", []float32{0, 1, 0, 0})))

	results, err := s.VectorSearch(ctx, []float32{1, 0, 0, 0}, 10, types.Filters{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "close", results[0].ID)
}

func TestVectorSearchExcludesFailedEmbeddings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	broken := testDoc("broken", "broken.txt", make([]float32, 4))
	broken.EmbeddingOK = false
	require.NoError(t, s.IndexDocument(ctx, broken))

	results, err := s.VectorSearch(ctx, []float32{1, 0, 0, 0}, 10, types.Filters{})
	require.NoError(t, err)
	assert.Empty(t, results)

	// Still reachable through the keyword leg.
	kw, err := s.KeywordSearch(ctx, "acme", 10, types.Filters{})
	require.NoError(t, err)
	require.Len(t, kw, 1)
	assert.Equal(t, "broken", kw[0].ID)
}

func TestKeywordSearchMatchesAndFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	report := testDoc("r1", "acme_report.txt", nil)
	invoice := testDoc("i1", "acme_invoice.txt", nil)
	invoice.DocumentType = "invoice"
	require.NoError(t, s.IndexDocument(ctx, report))
	require.NoError(t, s.IndexDocument(ctx, invoice))

	all, err := s.KeywordSearch(ctx, "acme", 10, types.Filters{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyInvoices, err := s.KeywordSearch(ctx, "acme", 10, types.Filters{DocumentTypes: []string{"invoice"}})
	require.NoError(t, err)
	require.Len(t, onlyInvoices, 1)
	assert.Equal(t, "i1", onlyInvoices[0].ID)
}

func TestKeywordSearchNoMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.IndexDocument(ctx, testDoc("d1", "a.txt", nil)))

	results, err := s.KeywordSearch(ctx, "zebra xylophone", 10, types.Filters{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTokenizeQuery(t *testing.T) {
	terms := tokenizeQuery("Show me the Acme invoices from 2023!")
	assert.Equal(t, []string{"acme", "invoices", "2023"}, terms)
}

// =============================================================================
// FEEDBACK
// =============================================================================

func TestUpsertFeedbackValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.UpsertFeedback(ctx, "u1", "q", "d1", 0))
	assert.Error(t, s.UpsertFeedback(ctx, "u1", "q", "d1", 2))
	assert.Error(t, s.UpsertFeedback(ctx, "", "q", "d1", 1))
	assert.NoError(t, s.UpsertFeedback(ctx, "u1", "q", "d1", 1))
}

func TestGetBoostsBoundedAndSigned(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	window := 30 * 24 * time.Hour

	require.NoError(t, s.UpsertFeedback(ctx, "u1", "acme invoices", "up", 1))
	require.NoError(t, s.UpsertFeedback(ctx, "u1", "acme invoices", "down", -1))

	boosts, err := s.GetBoosts(ctx, "u1", "acme invoices", []string{"up", "down"}, window)
	require.NoError(t, err)

	assert.Greater(t, boosts["up"], 0.0)
	assert.Less(t, boosts["down"], 0.0)
	for _, b := range boosts {
		assert.LessOrEqual(t, b, 1.0)
		assert.GreaterOrEqual(t, b, -1.0)
	}
}

func TestGetBoostsExactQueryOutweighsOtherQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	window := 30 * 24 * time.Hour

	require.NoError(t, s.UpsertFeedback(ctx, "u1", "acme invoices", "exact", 1))
	require.NoError(t, s.UpsertFeedback(ctx, "u1", "zenith contracts", "other", 1))

	boosts, err := s.GetBoosts(ctx, "u1", "ACME   invoices", []string{"exact", "other"}, window)
	require.NoError(t, err)
	assert.Greater(t, boosts["exact"], boosts["other"],
		"exact query match must contribute the extra half vote")
}

func TestUpsertFeedbackOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	window := 30 * 24 * time.Hour

	require.NoError(t, s.UpsertFeedback(ctx, "u1", "q", "d1", 1))
	require.NoError(t, s.UpsertFeedback(ctx, "u1", "q", "d1", -1))

	boosts, err := s.GetBoosts(ctx, "u1", "q", []string{"d1"}, window)
	require.NoError(t, err)
	assert.Less(t, boosts["d1"], 0.0, "the newest vote wins outright")
}

func TestGetBoostsScopedToUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertFeedback(ctx, "u1", "q", "d1", 1))
	boosts, err := s.GetBoosts(ctx, "u2", "q", []string{"d1"}, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, boosts)
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "acme invoices", NormalizeQuery("  ACME   Invoices "))
	assert.Equal(t, "", NormalizeQuery("   "))
}

func TestCleanupOldFeedback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertFeedback(ctx, "u1", "q", "d1", 1))
	removed, err := s.CleanupOldFeedback(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = s.CleanupOldFeedback(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func TestConversationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "u1", "Tax questions")
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)

	require.NoError(t, s.AppendMessage(ctx, &types.Message{
		ConversationID: conv.ID, Role: "user", Content: "where are my 2022 returns",
	}))
	require.NoError(t, s.AppendMessage(ctx, &types.Message{
		ConversationID: conv.ID, Role: "assistant", Content: "Found 2 documents.",
		Results: []types.SearchResult{{Document: types.Document{ID: "d1"}}},
	}))

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount)

	msgs, err := s.GetMessages(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	require.Len(t, msgs[1].Results, 1)
	assert.Equal(t, "d1", msgs[1].Results[0].ID)

	require.NoError(t, s.RenameConversation(ctx, conv.ID, "Taxes 2022"))
	require.NoError(t, s.PinConversation(ctx, conv.ID, true))

	list, err := s.ListConversations(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Taxes 2022", list[0].Title)
	assert.True(t, list[0].IsPinned)

	require.NoError(t, s.DeleteConversation(ctx, conv.ID))
	gone, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	// Messages are removed with the conversation.
	msgs, err = s.GetMessages(ctx, conv.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestPinnedConversationsListFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older, err := s.CreateConversation(ctx, "u1", "older")
	require.NoError(t, err)
	_, err = s.CreateConversation(ctx, "u1", "newer")
	require.NoError(t, err)

	require.NoError(t, s.PinConversation(ctx, older.ID, true))

	list, err := s.ListConversations(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "older", list[0].Title)
}

func TestAttachments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "u1", "with docs")
	require.NoError(t, err)

	require.NoError(t, s.AttachDocument(ctx, conv.ID, "d1"))
	require.NoError(t, s.AttachDocument(ctx, conv.ID, "d1")) // idempotent
	require.NoError(t, s.AttachDocument(ctx, conv.ID, "d2"))

	ids, err := s.GetAttachments(ctx, conv.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"d1", "d2"}, ids)

	require.NoError(t, s.DetachDocument(ctx, conv.ID, "d1"))
	ids, err = s.GetAttachments(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"d2"}, ids)
}

// =============================================================================
// KNOWLEDGE GRAPH
// =============================================================================

func TestUpsertEntityMergesDocumentIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.UpsertEntity(ctx, "Acme", "companies", []string{"d1"})
	require.NoError(t, err)
	id2, err := s.UpsertEntity(ctx, "Acme", "companies", []string{"d2"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	entity, err := s.GetEntityByName(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.ElementsMatch(t, []string{"d1", "d2"}, entity.DocumentIDs)
}

func TestRelationshipWeightAccumulates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.UpsertEntity(ctx, "Jane Doe", "persons", []string{"d1"})
	require.NoError(t, err)
	b, err := s.UpsertEntity(ctx, "Acme", "companies", []string{"d1"})
	require.NoError(t, err)

	rel := types.Relationship{SourceID: a, TargetID: b, Type: "worked_at", Weight: 1}
	require.NoError(t, s.AddRelationship(ctx, rel))
	require.NoError(t, s.AddRelationship(ctx, rel))

	neighbors, err := s.Neighbors(ctx, a, 10)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, 2.0, neighbors[0].Weight)
}

func TestExpandEntitiesAndDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.UpsertEntity(ctx, "Jane Doe", "persons", []string{"d1"})
	require.NoError(t, err)
	b, err := s.UpsertEntity(ctx, "Acme", "companies", []string{"d2"})
	require.NoError(t, err)
	c, err := s.UpsertEntity(ctx, "Zenith", "companies", []string{"d3"})
	require.NoError(t, err)

	require.NoError(t, s.AddRelationship(ctx, types.Relationship{SourceID: a, TargetID: b, Type: "worked_at", Weight: 1}))
	require.NoError(t, s.AddRelationship(ctx, types.Relationship{SourceID: b, TargetID: c, Type: "acquired", Weight: 1}))

	expanded, err := s.ExpandEntities(ctx, []string{a}, 2, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{b, c}, expanded)

	// One hop only reaches the direct neighbor.
	oneHop, err := s.ExpandEntities(ctx, []string{a}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{b}, oneHop)

	docs, err := s.DocumentsForEntities(ctx, []string{a, b, c})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"d1", "d2", "d3"}, docs)
}

// =============================================================================
// SESSION HISTORY
// =============================================================================

func TestSessionHistoryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, s.RecordTurn(ctx, SessionTurn{
		SessionID: "s1", Query: "first", Intent: "document_search",
		ResultIDs: []string{"d1"}, Confidence: 0.8, CreatedAt: now.Add(-time.Minute),
	}))
	require.NoError(t, s.RecordTurn(ctx, SessionTurn{
		SessionID: "s1", Query: "second", Intent: "comparison", Confidence: 0.9, CreatedAt: now,
	}))

	turns, err := s.RecentTurns(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "second", turns[0].Query, "newest first")
	assert.Equal(t, []string{"d1"}, turns[1].ResultIDs)
}
