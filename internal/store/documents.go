package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"olympus/internal/logging"
	"olympus/internal/types"
)

// =============================================================================
// DOCUMENT INDEX
// =============================================================================

// IndexDocument inserts or replaces the single record for a source file and
// keeps the vector and full-text side tables in sync.
func (s *LocalStore) IndexDocument(ctx context.Context, doc *types.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	if strings.TrimSpace(doc.DetailedSummary) == "" {
		return fmt.Errorf("document %s has no summary", doc.ID)
	}

	entitiesFlat, _ := json.Marshal(doc.EntitiesFlat)
	entitiesStructured, _ := json.Marshal(doc.EntitiesStructured)
	topics, _ := json.Marshal(doc.Topics)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO documents (
			id, filename, file_path, file_type, content_type, document_type,
			is_image, detailed_summary, full_content, keywords,
			entities_flat, entities_structured, topics,
			embedding, embedding_ok,
			word_count, page_count, file_size_bytes,
			created_at, last_modified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.FilePath, doc.FileType, string(doc.ContentType),
		doc.DocumentType, boolToInt(doc.IsImage), doc.DetailedSummary,
		doc.FullContent, doc.Keywords,
		string(entitiesFlat), string(entitiesStructured), string(topics),
		encodeVector(doc.Embedding), boolToInt(doc.EmbeddingOK),
		doc.WordCount, doc.PageCount, doc.FileSizeBytes,
		doc.CreatedAt, doc.LastModified,
	)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}

	if s.VecEnabled() {
		// vec0 has no upsert; delete then insert. Rows with failed embeddings
		// stay out of the vector table entirely.
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_documents WHERE doc_id = ?`, doc.ID); err != nil {
			return fmt.Errorf("failed to clear vector row: %w", err)
		}
		if doc.EmbeddingOK && len(doc.Embedding) == s.dimension {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO vec_documents (doc_id, embedding) VALUES (?, ?)`,
				doc.ID, encodeVector(doc.Embedding))
			if err != nil {
				return fmt.Errorf("failed to insert vector row: %w", err)
			}
		}
	}

	if s.FTSEnabled() {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE doc_id = ?`, doc.ID); err != nil {
			return fmt.Errorf("failed to clear fts row: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO documents_fts (doc_id, filename, detailed_summary, keywords, full_content)
			 VALUES (?, ?, ?, ?, ?)`,
			doc.ID, doc.Filename, doc.DetailedSummary, doc.Keywords, doc.FullContent)
		if err != nil {
			return fmt.Errorf("failed to insert fts row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	logging.StoreDebug("indexed %s (%s)", doc.Filename, doc.ID)
	return nil
}

// DocumentExists reports whether a record with the given id is present.
func (s *LocalStore) DocumentExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("exists check failed: %w", err)
	}
	return n > 0, nil
}

// GetDocument fetches one record by id, embedding included.
func (s *LocalStore) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx, selectDocuments+` WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return doc, err
}

// GetDocumentByPath fetches one record by absolute file path.
func (s *LocalStore) GetDocumentByPath(ctx context.Context, path string) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx, selectDocuments+` WHERE file_path = ?`, path)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return doc, err
}

// DeleteDocument removes a record and its side-table rows.
func (s *LocalStore) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if s.VecEnabled() {
		tx.ExecContext(ctx, `DELETE FROM vec_documents WHERE doc_id = ?`, id)
	}
	if s.FTSEnabled() {
		tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE doc_id = ?`, id)
	}
	return tx.Commit()
}

// CountDocuments returns the size of the index.
func (s *LocalStore) CountDocuments(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents`).Scan(&n)
	return n, err
}

// ListDocuments returns up to limit records ordered by creation time
// descending, without embeddings or full content.
func (s *LocalStore) ListDocuments(ctx context.Context, limit int) ([]types.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, selectDocuments+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed: %w", err)
	}
	defer rows.Close()

	var out []types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		doc.Embedding = nil
		doc.FullContent = ""
		out = append(out, *doc)
	}
	return out, rows.Err()
}

// =============================================================================
// ROW SCANNING
// =============================================================================

const selectDocuments = `
	SELECT id, filename, file_path, file_type, content_type, document_type,
	       is_image, detailed_summary, full_content, keywords,
	       entities_flat, entities_structured, topics,
	       embedding, embedding_ok,
	       word_count, page_count, file_size_bytes,
	       created_at, last_modified
	FROM documents`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*types.Document, error) {
	var doc types.Document
	var contentType string
	var isImage, embeddingOK int
	var entitiesFlat, entitiesStructured, topics string
	var embedding []byte

	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.FilePath, &doc.FileType, &contentType,
		&doc.DocumentType, &isImage, &doc.DetailedSummary, &doc.FullContent,
		&doc.Keywords, &entitiesFlat, &entitiesStructured, &topics,
		&embedding, &embeddingOK,
		&doc.WordCount, &doc.PageCount, &doc.FileSizeBytes,
		&doc.CreatedAt, &doc.LastModified,
	)
	if err != nil {
		return nil, err
	}

	doc.ContentType = types.ContentType(contentType)
	doc.IsImage = isImage != 0
	doc.EmbeddingOK = embeddingOK != 0
	doc.Embedding = decodeVector(embedding)
	json.Unmarshal([]byte(entitiesFlat), &doc.EntitiesFlat)
	json.Unmarshal([]byte(entitiesStructured), &doc.EntitiesStructured)
	json.Unmarshal([]byte(topics), &doc.Topics)
	return &doc, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// =============================================================================
// VECTOR ENCODING
// =============================================================================

// encodeVector serializes float32s little-endian, the layout sqlite-vec
// expects for blob parameters.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// touchTimestamp is shared by upsert paths that need a wall-clock value the
// tests can compare against.
func touchTimestamp() time.Time { return time.Now().UTC() }
