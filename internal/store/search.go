package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"olympus/internal/logging"
	"olympus/internal/types"
)

// =============================================================================
// VECTOR SEARCH
// =============================================================================

// VectorSearch returns the topK documents nearest to the query embedding,
// cosine-scored, filters applied. Rows whose embedding generation failed are
// never returned by this leg.
func (s *LocalStore) VectorSearch(ctx context.Context, query []float32, topK int, f types.Filters) ([]types.SearchResult, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	if topK <= 0 {
		topK = 10
	}
	if s.VecEnabled() {
		return s.vectorSearchANN(ctx, query, topK, f)
	}
	return s.vectorSearchScan(ctx, query, topK, f)
}

// vectorSearchANN uses the vec0 KNN index. Filters cannot ride along inside
// a MATCH query, so the index is over-fetched and filters are applied on the
// joined document rows.
func (s *LocalStore) vectorSearchANN(ctx context.Context, query []float32, topK int, f types.Filters) ([]types.SearchResult, error) {
	fetch := topK
	if !f.Empty() {
		fetch = topK * 4
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, distance FROM vec_documents WHERE embedding MATCH ? AND k = ? ORDER BY distance`,
		encodeVector(query), fetch)
	if err != nil {
		return nil, fmt.Errorf("ann query failed: %w", err)
	}

	ids := make([]string, 0, fetch)
	scores := make(map[string]float64, fetch)
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
		// Cosine distance to similarity.
		scores[id] = 1.0 - distance
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	docs, err := s.fetchFiltered(ctx, ids, f)
	if err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(docs))
	for _, doc := range docs {
		results = append(results, types.SearchResult{Document: doc, Score: scores[doc.ID]})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// vectorSearchScan is the brute-force fallback: decode every stored
// embedding and rank by dot product. Embeddings are unit-normalized at
// generation time, so the dot product is the cosine.
func (s *LocalStore) vectorSearchScan(ctx context.Context, query []float32, topK int, f types.Filters) ([]types.SearchResult, error) {
	where, args := buildFilterClause(f)
	rows, err := s.db.QueryContext(ctx, selectDocuments+` WHERE embedding_ok = 1`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("scan query failed: %w", err)
	}
	defer rows.Close()

	var results []types.SearchResult
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		if len(doc.Embedding) != len(query) {
			continue
		}
		var dot float64
		for i, q := range query {
			dot += float64(q) * float64(doc.Embedding[i])
		}
		results = append(results, types.SearchResult{Document: *doc, Score: dot})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	logging.StoreDebug("vector scan ranked %d candidates", len(results))
	return results, nil
}

// =============================================================================
// KEYWORD SEARCH
// =============================================================================

// KeywordSearch returns the topK documents ranked by lexical relevance:
// BM25 through FTS5 when available, a weighted field scorer otherwise.
func (s *LocalStore) KeywordSearch(ctx context.Context, query string, topK int, f types.Filters) ([]types.SearchResult, error) {
	terms := tokenizeQuery(query)
	if len(terms) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 10
	}
	if s.FTSEnabled() {
		return s.keywordSearchFTS(ctx, terms, topK, f)
	}
	return s.keywordSearchScan(ctx, terms, topK, f)
}

func (s *LocalStore) keywordSearchFTS(ctx context.Context, terms []string, topK int, f types.Filters) ([]types.SearchResult, error) {
	// OR of quoted terms; quoting neutralizes FTS query syntax in user input.
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, ``) + `"`
	}
	match := strings.Join(quoted, " OR ")

	fetch := topK
	if !f.Empty() {
		fetch = topK * 4
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, bm25(documents_fts, 5.0, 3.0, 2.0, 1.0) AS score
		 FROM documents_fts WHERE documents_fts MATCH ? ORDER BY score LIMIT ?`,
		match, fetch)
	if err != nil {
		return nil, fmt.Errorf("fts query failed: %w", err)
	}

	ids := make([]string, 0, fetch)
	scores := make(map[string]float64, fetch)
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
		// FTS5 bm25() is lower-is-better; negate so callers always sort desc.
		scores[id] = -score
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	docs, err := s.fetchFiltered(ctx, ids, f)
	if err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(docs))
	for _, doc := range docs {
		results = append(results, types.SearchResult{Document: doc, Score: scores[doc.ID]})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// keywordSearchScan scores candidates in Go with per-field weights. Filename
// hits weigh most, then curated keywords, then the summary, then raw content.
// Matching several distinct terms earns a multiplicative boost.
func (s *LocalStore) keywordSearchScan(ctx context.Context, terms []string, topK int, f types.Filters) ([]types.SearchResult, error) {
	where, args := buildFilterClause(f)
	query := selectDocuments + ` WHERE 1=1` + where
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword scan failed: %w", err)
	}
	defer rows.Close()

	var results []types.SearchResult
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		score, matched := scoreFields(doc, terms)
		if matched == 0 {
			continue
		}
		if matched > 1 {
			score *= 1.0 + 0.1*float64(matched-1)
		}
		results = append(results, types.SearchResult{Document: *doc, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func scoreFields(doc *types.Document, terms []string) (float64, int) {
	filename := strings.ToLower(doc.Filename)
	keywords := strings.ToLower(doc.Keywords)
	summary := strings.ToLower(doc.DetailedSummary)
	content := strings.ToLower(doc.FullContent)

	var score float64
	matched := 0
	for _, term := range terms {
		hit := false
		if strings.Contains(filename, term) {
			score += 3.0
			hit = true
		}
		if strings.Contains(keywords, term) {
			score += 2.5
			hit = true
		}
		if strings.Contains(summary, term) {
			score += 1.5
			hit = true
		}
		if strings.Contains(content, term) {
			score += 1.0
			hit = true
		}
		if hit {
			matched++
		}
	}
	return score, matched
}

// tokenizeQuery lowercases, splits on non-alphanumerics, and drops stop
// words and single characters.
func tokenizeQuery(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	var out []string
	seen := make(map[string]bool)
	for _, f := range fields {
		if len(f) < 2 || commonWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

var commonWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"that": true, "this": true, "are": true, "was": true, "were": true,
	"what": true, "which": true, "when": true, "where": true, "who": true,
	"how": true, "all": true, "any": true, "can": true, "has": true,
	"have": true, "had": true, "about": true, "show": true, "find": true,
	"get": true, "give": true, "list": true, "please": true, "tell": true,
	"file": true, "files": true, "document": true, "documents": true,
	"me": true, "my": true, "of": true, "in": true, "on": true, "to": true,
	"is": true, "it": true, "an": true, "or": true, "do": true, "does": true,
}

// =============================================================================
// FILTERED FETCH
// =============================================================================

// fetchFiltered loads the given ids and applies filters, preserving no
// particular order; callers re-sort by score.
func (s *LocalStore) fetchFiltered(ctx context.Context, ids []string, f types.Filters) ([]types.Document, error) {
	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids)+8)
	for _, id := range ids {
		args = append(args, id)
	}
	where, filterArgs := buildFilterClause(f)
	args = append(args, filterArgs...)

	rows, err := s.db.QueryContext(ctx,
		selectDocuments+` WHERE id IN (`+placeholders+`)`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// buildFilterClause renders Filters as AND fragments against the documents
// table. Entity filters match substrings of the flat entity list; time
// filters apply to last_modified.
func buildFilterClause(f types.Filters) (string, []interface{}) {
	var sb strings.Builder
	var args []interface{}

	inClause := func(col string, vals []string) {
		if len(vals) == 0 {
			return
		}
		sb.WriteString(" AND " + col + " IN (")
		for i, v := range vals {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("?")
			args = append(args, strings.ToLower(v))
		}
		sb.WriteString(")")
	}

	inClause("LOWER(file_type)", f.FileTypes)
	inClause("LOWER(document_type)", f.DocumentTypes)
	inClause("LOWER(content_type)", f.ContentTypes)

	for _, e := range f.Entities {
		sb.WriteString(" AND LOWER(entities_flat) LIKE ?")
		args = append(args, "%"+strings.ToLower(e)+"%")
	}

	if f.Time != nil {
		if !f.Time.From.IsZero() {
			sb.WriteString(" AND last_modified >= ?")
			args = append(args, f.Time.From)
		}
		if !f.Time.To.IsZero() {
			sb.WriteString(" AND last_modified < ?")
			args = append(args, f.Time.To)
		}
	}
	return sb.String(), args
}
