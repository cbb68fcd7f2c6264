// Package store is the local persistence layer: one SQLite database holding
// the document index, vector embeddings, the knowledge graph, feedback
// signals, conversations, and session history. Vector and full-text search
// capabilities are probed at startup; when the sqlite-vec or FTS5 extension
// is unavailable the store falls back to Go-side scans.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"olympus/internal/logging"
)

// LocalStore wraps a single SQLite connection. SQLite serializes writers
// anyway, so the pool is capped at one connection and callers coordinate
// through the db handle; the mutex only guards the in-memory capability
// flags and derived state.
type LocalStore struct {
	db   *sql.DB
	path string

	mu sync.RWMutex
	// vecEnabled is true when the sqlite-vec vec0 virtual table is usable.
	vecEnabled bool
	// ftsEnabled is true when the FTS5 module is compiled in.
	ftsEnabled bool
	dimension  int
}

// Open opens (or creates) the database at dataDir/olympus.db and runs the
// schema. dimension is the embedding width for the vector table.
func Open(dataDir string, dimension int) (*LocalStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "olympus.db")

	db, err := sql.Open(driverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: SQLite handles one writer at a time and this avoids
	// SQLITE_BUSY churn under concurrent agents.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma failed (%s): %w", p, err)
		}
	}

	s := &LocalStore{db: db, path: dbPath, dimension: dimension}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.vecEnabled = s.detectVecExtension()
	s.ftsEnabled = s.detectFTS5()
	if s.vecEnabled {
		if err := s.initVecTable(); err != nil {
			logging.Store("vec table init failed, falling back to scan: %v", err)
			s.vecEnabled = false
		}
	}
	if s.ftsEnabled {
		if err := s.initFTSTable(); err != nil {
			logging.Store("fts table init failed, falling back to scorer: %v", err)
			s.ftsEnabled = false
		}
	}

	logging.Store("store opened at %s (vec=%v fts=%v dim=%d)", dbPath, s.vecEnabled, s.ftsEnabled, dimension)
	return s, nil
}

// Close closes the underlying database.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *LocalStore) Path() string { return s.path }

// VecEnabled reports whether ANN search through sqlite-vec is active.
func (s *LocalStore) VecEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vecEnabled
}

// FTSEnabled reports whether BM25 search through FTS5 is active.
func (s *LocalStore) FTSEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ftsEnabled
}

// =============================================================================
// SCHEMA
// =============================================================================

func (s *LocalStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		file_path TEXT NOT NULL UNIQUE,
		file_type TEXT NOT NULL,
		content_type TEXT NOT NULL,
		document_type TEXT NOT NULL,
		is_image INTEGER NOT NULL DEFAULT 0,
		detailed_summary TEXT NOT NULL,
		full_content TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '',
		entities_flat TEXT NOT NULL DEFAULT '[]',
		entities_structured TEXT NOT NULL DEFAULT '{}',
		topics TEXT NOT NULL DEFAULT '[]',
		embedding BLOB,
		embedding_ok INTEGER NOT NULL DEFAULT 0,
		word_count INTEGER NOT NULL DEFAULT 0,
		page_count INTEGER NOT NULL DEFAULT 0,
		file_size_bytes INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		last_modified TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_file_type ON documents(file_type);
	CREATE INDEX IF NOT EXISTS idx_documents_document_type ON documents(document_type);
	CREATE INDEX IF NOT EXISTS idx_documents_content_type ON documents(content_type);
	CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at);

	CREATE TABLE IF NOT EXISTS feedback (
		user_id TEXT NOT NULL,
		query_normalized TEXT NOT NULL,
		doc_id TEXT NOT NULL,
		signal INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(user_id, query_normalized, doc_id)
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_user_doc ON feedback(user_id, doc_id);

	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		properties TEXT NOT NULL DEFAULT '{}',
		document_ids TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		UNIQUE(name, entity_type)
	);
	CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);

	CREATE TABLE IF NOT EXISTS relationships (
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		relation TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 1.0,
		document_id TEXT NOT NULL DEFAULT '',
		UNIQUE(source_id, relation, target_id)
	);
	CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_id);
	CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		is_pinned INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		query TEXT NOT NULL DEFAULT '',
		results TEXT NOT NULL DEFAULT '[]',
		thinking_steps TEXT NOT NULL DEFAULT '[]',
		timestamp TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp);

	CREATE TABLE IF NOT EXISTS attachments (
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		document_id TEXT NOT NULL,
		attached_at TIMESTAMP NOT NULL,
		UNIQUE(conversation_id, document_id)
	);

	CREATE TABLE IF NOT EXISTS session_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		query TEXT NOT NULL,
		intent TEXT NOT NULL DEFAULT '',
		answer TEXT NOT NULL DEFAULT '',
		result_ids TEXT NOT NULL DEFAULT '[]',
		confidence REAL NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_session_history_session ON session_history(session_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CAPABILITY PROBES
// =============================================================================

// detectVecExtension probes for the vec0 module by creating a throwaway
// virtual table. Loading is a build-time concern (see init_vec.go); the
// probe keeps the same binary working when the extension is absent.
func (s *LocalStore) detectVecExtension() bool {
	_, err := s.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[4])`)
	if err != nil {
		logging.StoreDebug("vec0 unavailable: %v", err)
		return false
	}
	s.db.Exec(`DROP TABLE IF EXISTS vec_probe`)
	return true
}

func (s *LocalStore) detectFTS5() bool {
	_, err := s.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS fts_probe USING fts5(content)`)
	if err != nil {
		logging.StoreDebug("fts5 unavailable: %v", err)
		return false
	}
	s.db.Exec(`DROP TABLE IF EXISTS fts_probe`)
	return true
}

func (s *LocalStore) initVecTable() error {
	stmt := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_documents USING vec0(
			doc_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		)`, s.dimension)
	_, err := s.db.Exec(stmt)
	return err
}

func (s *LocalStore) initFTSTable() error {
	_, err := s.db.Exec(
		`CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
			doc_id UNINDEXED,
			filename,
			detailed_summary,
			keywords,
			full_content
		)`)
	return err
}
