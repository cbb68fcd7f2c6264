// Package types holds the shared data model for the search service: the
// per-file document record, search results, extracted filters, and the
// conversation entities. Keeping these here avoids import cycles between
// the store, the retrieval adapter, and the agents.
package types

import (
	"crypto/md5"
	"encoding/hex"
	"path/filepath"
	"time"
)

// =============================================================================
// DOCUMENT RECORD
// =============================================================================

// ContentType is the coarse modality of a source file.
type ContentType string

const (
	ContentText        ContentType = "text"
	ContentImage       ContentType = "image"
	ContentSpreadsheet ContentType = "spreadsheet"
)

// Document is the single indexed record per source file. The embedding is
// always computed from DetailedSummary, never from FullContent, so a record
// with an empty summary is invalid.
type Document struct {
	ID          string      `json:"id"`
	Filename    string      `json:"filename"`
	FilePath    string      `json:"file_path"`
	FileType    string      `json:"file_type"`
	ContentType ContentType `json:"content_type"`
	// DocumentType is the semantic class: invoice, report, contract, resume,
	// screenshot, image, pdf_document, word_document, text_document, document.
	DocumentType string `json:"document_type"`
	IsImage      bool   `json:"is_image"`

	DetailedSummary string `json:"detailed_summary"`
	FullContent     string `json:"full_content"`
	Keywords        string `json:"keywords"` // comma-joined

	EntitiesFlat       []string            `json:"entities_flat"`
	EntitiesStructured map[string][]string `json:"entities_structured"`
	Topics             []string            `json:"topics"`

	Embedding []float32 `json:"vector_embedding,omitempty"`
	// EmbeddingOK is false when embedding generation failed and a zero
	// vector was stored. Such rows are excluded from vector search but still
	// reachable through the keyword leg.
	EmbeddingOK bool `json:"embedding_ok"`

	WordCount     int   `json:"word_count"`
	PageCount     int   `json:"page_count"`
	FileSizeBytes int64 `json:"file_size_bytes"`

	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
}

// EntityCategories is the fixed category set for structured entities.
var EntityCategories = []string{
	"persons", "skills", "companies", "education", "locations",
	"dates", "projects", "technologies", "other",
}

// DocumentID derives the stable record id from the absolute file path.
func DocumentID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := md5.Sum([]byte(abs))
	return hex.EncodeToString(sum[:])
}

// =============================================================================
// SEARCH RESULTS AND FILTERS
// =============================================================================

// SearchResult is a retrieved document with its ranking scores. RawScore is
// the pre-normalization cross-encoder output and is only set after rerank.
type SearchResult struct {
	Document
	Score    float64 `json:"score"`
	RawScore float64 `json:"raw_score,omitempty"`
	Reranked bool    `json:"reranked,omitempty"`
	// Explanation is attached by the explainer agent for top results.
	Explanation string `json:"explanation,omitempty"`
}

// TimeRange is a half-open created/modified window extracted from the query.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Filters are the structured constraints extracted from a query.
// Empty slices mean "no constraint on that axis".
type Filters struct {
	FileTypes     []string   `json:"file_types,omitempty"`     // extensions, with dot
	DocumentTypes []string   `json:"document_types,omitempty"` // invoice, report, ...
	ContentTypes  []string   `json:"content_types,omitempty"`  // text, image, spreadsheet
	Entities      []string   `json:"entities,omitempty"`       // matched against entities_flat
	Time          *TimeRange `json:"time,omitempty"`
}

// Empty reports whether no constraint is set.
func (f Filters) Empty() bool {
	return len(f.FileTypes) == 0 && len(f.DocumentTypes) == 0 &&
		len(f.ContentTypes) == 0 && len(f.Entities) == 0 && f.Time == nil
}

// Merge returns the union of two filter sets; the receiver wins on Time.
func (f Filters) Merge(other Filters) Filters {
	out := f
	out.FileTypes = appendUnique(out.FileTypes, other.FileTypes)
	out.DocumentTypes = appendUnique(out.DocumentTypes, other.DocumentTypes)
	out.ContentTypes = appendUnique(out.ContentTypes, other.ContentTypes)
	out.Entities = appendUnique(out.Entities, other.Entities)
	if out.Time == nil {
		out.Time = other.Time
	}
	return out
}

func appendUnique(dst, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range src {
		if !seen[s] {
			seen[s] = true
			dst = append(dst, s)
		}
	}
	return dst
}

// SearchStrategy carries per-query retrieval overrides chosen by the
// adaptive strategy selector. Zero weights mean "use the configured ones";
// MinScore applies only to calibrated (reranked) scores.
type SearchStrategy struct {
	Name         string  `json:"name"`
	VectorWeight float64 `json:"vector_weight"`
	BM25Weight   float64 `json:"bm25_weight"`
	MinScore     float64 `json:"min_score"`
	GraphHops    int     `json:"graph_hops"`
	PreferRecent bool    `json:"prefer_recent"`
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// Conversation is a persistent chat thread.
type Conversation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	IsPinned     bool      `json:"is_pinned"`
}

// Message is one turn in a conversation. Results and ThinkingSteps are
// JSON-encoded in storage.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           string         `json:"role"` // user | assistant
	Content        string         `json:"content"`
	Query          string         `json:"query,omitempty"`
	Results        []SearchResult `json:"results,omitempty"`
	ThinkingSteps  []string       `json:"thinking_steps,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Attachment links an indexed document to a conversation.
type Attachment struct {
	ConversationID string    `json:"conversation_id"`
	DocumentID     string    `json:"document_id"`
	AttachedAt     time.Time `json:"attached_at"`
}

// =============================================================================
// KNOWLEDGE GRAPH
// =============================================================================

// Entity is a node in the knowledge graph.
type Entity struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	EntityType  string            `json:"entity_type"`
	Properties  map[string]string `json:"properties,omitempty"`
	DocumentIDs []string          `json:"document_ids"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Relationship is a weighted directed edge between two entities. Repeated
// adds accumulate weight instead of duplicating the edge.
type Relationship struct {
	SourceID   string  `json:"source_id"`
	TargetID   string  `json:"target_id"`
	Type       string  `json:"type"`
	Weight     float64 `json:"weight"`
	DocumentID string  `json:"document_id,omitempty"`
}
