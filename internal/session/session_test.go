package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndGet(t *testing.T) {
	m := NewManager(time.Minute, 5)
	m.Record("s1", Turn{Query: "acme invoices", Intent: "document_search", DocumentTypes: []string{"invoice"}})
	m.Record("s1", Turn{Query: "what about contracts", Intent: "document_search", DocumentTypes: []string{"contract"}, ResultIDs: []string{"d1", "d2"}})

	ctx := m.Get("s1")
	require.NotNil(t, ctx)
	assert.Equal(t, []string{"acme invoices", "what about contracts"}, ctx.RecentQueries)
	assert.Equal(t, "document_search", ctx.LastIntent)
	assert.Equal(t, []string{"d1", "d2"}, ctx.LastResultIDs)
	assert.Equal(t, 2, ctx.TurnCount)
}

func TestRollingWindowEvictsOldest(t *testing.T) {
	m := NewManager(time.Minute, 3)
	for i := 1; i <= 5; i++ {
		m.Record("s1", Turn{Query: fmt.Sprintf("query %d", i)})
	}

	ctx := m.Get("s1")
	require.NotNil(t, ctx)
	assert.Equal(t, []string{"query 3", "query 4", "query 5"}, ctx.RecentQueries)
	assert.Equal(t, 3, ctx.TurnCount)
}

func TestGetUnknownSession(t *testing.T) {
	m := NewManager(time.Minute, 5)
	assert.Nil(t, m.Get("nope"))
}

func TestExpiredSessionRemovedOnAccess(t *testing.T) {
	m := NewManager(50*time.Millisecond, 5)
	m.Record("s1", Turn{Query: "q", At: time.Now().Add(-time.Second)})

	assert.Nil(t, m.Get("s1"))
	assert.Equal(t, 0, m.Len())
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	m := NewManager(time.Minute, 5)
	m.Record("old", Turn{Query: "q", At: time.Now().Add(-2 * time.Minute)})
	m.Record("fresh", Turn{Query: "q"})

	removed := m.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, m.Len())
	assert.NotNil(t, m.Get("fresh"))
}

func TestDeriveTopicIsDominantDocumentType(t *testing.T) {
	m := NewManager(time.Minute, 5)
	m.Record("s1", Turn{Query: "a", DocumentTypes: []string{"invoice", "report"}})
	m.Record("s1", Turn{Query: "b", DocumentTypes: []string{"invoice"}})

	ctx := m.Get("s1")
	require.NotNil(t, ctx)
	assert.Equal(t, "invoice", ctx.Topic)
	assert.Equal(t, []string{"invoice", "report"}, ctx.DocumentTypes)
}

func TestDeriveTiedTypesAreAlphabetical(t *testing.T) {
	m := NewManager(time.Minute, 5)
	m.Record("s1", Turn{Query: "a", DocumentTypes: []string{"report", "contract"}})

	ctx := m.Get("s1")
	require.NotNil(t, ctx)
	assert.Equal(t, []string{"contract", "report"}, ctx.DocumentTypes)
}

func TestRecordIgnoresEmptySessionID(t *testing.T) {
	m := NewManager(time.Minute, 5)
	m.Record("", Turn{Query: "q"})
	assert.Equal(t, 0, m.Len())
}
