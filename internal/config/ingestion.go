package config

import "time"

// IngestionConfig configures the one-record-per-file pipeline.
type IngestionConfig struct {
	// SummaryMaxLength caps the generated detailed summary; ContentMaxLength
	// caps the stored full_content.
	SummaryMaxLength int `yaml:"summary_max_length"`
	ContentMaxLength int `yaml:"content_max_length"`

	// MaxPDFPages caps per-page extraction; a truncation note is recorded
	// past the cap.
	MaxPDFPages int `yaml:"max_pdf_pages"`

	// SpreadsheetRowLimit is how many data rows (plus header) are extracted.
	SpreadsheetRowLimit int `yaml:"spreadsheet_row_limit"`

	// BatchSize is how many files are processed per chunk; Concurrency bounds
	// in-flight files inside a chunk.
	BatchSize   int `yaml:"batch_size"`
	Concurrency int `yaml:"concurrency"`

	// ImageMaxDim: images larger than this on either axis are resized before
	// the vision call. ImageRetries bounds vision retries with exponential
	// backoff.
	ImageMaxDim  int `yaml:"image_max_dim"`
	ImageRetries int `yaml:"image_retries"`

	// FailedLogName is the append-only per-file failure log filename under
	// the data dir.
	FailedLogName string `yaml:"failed_log_name"`
}

// DefaultIngestionConfig returns ingestion defaults.
func DefaultIngestionConfig() IngestionConfig {
	return IngestionConfig{
		SummaryMaxLength:    4000,
		ContentMaxLength:    50000,
		MaxPDFPages:         100,
		SpreadsheetRowLimit: 20,
		BatchSize:           8,
		Concurrency:         4,
		ImageMaxDim:         1024,
		ImageRetries:        5,
		FailedLogName:       "failed_ingestion.json",
	}
}

// WatcherConfig configures the filesystem watcher feeding ingestion.
type WatcherConfig struct {
	Enabled             bool          `yaml:"enabled"`
	SupportedExtensions []string      `yaml:"supported_extensions"`
	Debounce            time.Duration `yaml:"debounce"`
}

// DefaultWatcherConfig returns watcher defaults.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		Enabled: true,
		SupportedExtensions: []string{
			".txt", ".md", ".html", ".htm", ".csv", ".tsv",
			".pdf", ".docx", ".xlsx",
			".png", ".jpg", ".jpeg", ".gif", ".webp",
		},
		Debounce: 2 * time.Second,
	}
}

// MemoryConfig configures persistence and session context.
type MemoryConfig struct {
	DatabasePath string `yaml:"database_path"`

	// SessionTTL expires idle session contexts; SessionTurns is the rolling
	// window length.
	SessionTTL   time.Duration `yaml:"session_ttl"`
	SessionTurns int           `yaml:"session_turns"`

	// FeedbackDecayDays is the linear-decay window for ranking boosts;
	// FeedbackRetentionDays is when records are dropped outright.
	FeedbackDecayDays     int `yaml:"feedback_decay_days"`
	FeedbackRetentionDays int `yaml:"feedback_retention_days"`
}

// DefaultMemoryConfig returns memory defaults rooted at dataDir.
func DefaultMemoryConfig(dataDir string) MemoryConfig {
	return MemoryConfig{
		DatabasePath:          "", // derived from DataDir in Load
		SessionTTL:            30 * time.Minute,
		SessionTurns:          5,
		FeedbackDecayDays:     30,
		FeedbackRetentionDays: 90,
	}
}

// ServerConfig configures the HTTP/SSE surface.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	// StreamTimeout bounds an SSE consumer; the stream emits a timeout event
	// and closes when exceeded.
	StreamTimeout time.Duration `yaml:"stream_timeout"`
	// StepQueueSize bounds the per-session step queue; overflow drops.
	StepQueueSize int `yaml:"step_queue_size"`
}

// DefaultServerConfig returns server defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:    ":8000",
		StreamTimeout: 300 * time.Second,
		StepQueueSize: 256,
	}
}

// LoggingConfig mirrors the logging package's file-based category logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultLoggingConfig returns production logging defaults (disabled).
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		DebugMode: false,
		Level:     "info",
	}
}
