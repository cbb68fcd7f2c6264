package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// FAILED INGESTION LOG
// =============================================================================

// FailedEntry records one file the pipeline could not ingest.
type FailedEntry struct {
	FilePath string    `json:"file_path"`
	Stage    string    `json:"stage"` // extract | analyze | embed | index
	Error    string    `json:"error"`
	At       time.Time `json:"at"`
}

// FailedLog is an append-only JSON file of ingestion failures, kept outside
// the database so a corrupt db never loses the failure record.
type FailedLog struct {
	path string
	mu   sync.Mutex
}

// NewFailedLog creates a log writing to dataDir/failed_ingestion.json.
func NewFailedLog(dataDir string) *FailedLog {
	return &FailedLog{path: filepath.Join(dataDir, "failed_ingestion.json")}
}

// Append records a failure.
func (l *FailedLog) Append(entry FailedEntry) error {
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readLocked()
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode failure log: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write failure log: %w", err)
	}
	return nil
}

// Entries returns all recorded failures.
func (l *FailedLog) Entries() ([]FailedEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked()
}

func (l *FailedLog) readLocked() ([]FailedEntry, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read failure log: %w", err)
	}
	var entries []FailedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		// A corrupt log starts fresh rather than blocking ingestion.
		return nil, nil
	}
	return entries, nil
}
