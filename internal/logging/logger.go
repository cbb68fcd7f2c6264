// Package logging provides categorized file-based logging for olympus.
// Logs are written to <data_dir>/logs/ with separate files per category.
// Logging is gated by debug_mode in the configuration; when false, every
// call is a no-op and no files are created.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // startup and wiring
	CategoryLLM       Category = "llm"       // model runtime calls
	CategoryEmbedding Category = "embedding" // embedding engine
	CategoryStore     Category = "store"     // SQLite store operations
	CategorySearch    Category = "search"    // retrieval adapter, fusion
	CategoryRerank    Category = "rerank"    // cross-encoder rerank
	CategoryAgents    Category = "agents"    // classifier, specialists, orchestrator
	CategoryIngest    Category = "ingest"    // ingestion pipeline
	CategorySteps     Category = "steps"     // step bus
	CategorySession   Category = "session"   // session context
	CategoryServer    Category = "server"    // HTTP/SSE surface
	CategoryWatcher   Category = "watcher"   // filesystem watcher
)

// Options controls the logger at initialization. It mirrors
// config.LoggingConfig without importing it (avoids a cycle: config loading
// itself wants to log).
type Options struct {
	DebugMode  bool
	Level      string
	Categories map[string]bool
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	opts      Options
	optsMu    sync.RWMutex
	logLevel  int
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory. Call once at startup with the
// data dir and the loaded logging options. Silent no-op in production mode.
func Initialize(dataDir string, o Options) error {
	if dataDir == "" {
		return fmt.Errorf("data dir required")
	}

	optsMu.Lock()
	opts = o
	switch o.Level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	optsMu.Unlock()

	if !o.DebugMode {
		return nil
	}

	logsDir = filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	Boot("=== olympus logging initialized ===")
	Boot("Logs directory: %s, level: %s", logsDir, o.Level)
	return nil
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	optsMu.RLock()
	defer optsMu.RUnlock()

	if !opts.DebugMode {
		return false
	}
	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category. Returns a no-op
// logger if debug mode or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation a matter of deleting old files.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] "+format, args...)
}

// Info logs an informational message (only if level <= info).
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] "+format, args...)
}

// Warn logs a warning message (only if level <= warn).
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] "+format, args...)
}

// Error logs an error message (always logged if the logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] "+format, args...)
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS: quick logging without getting a logger first.
// No-ops if the category is disabled.
// =============================================================================

func Boot(format string, args ...interface{})    { Get(CategoryBoot).Info(format, args...) }
func LLM(format string, args ...interface{})     { Get(CategoryLLM).Info(format, args...) }
func LLMDebug(format string, args ...interface{}) {
	Get(CategoryLLM).Debug(format, args...)
}
func Embedding(format string, args ...interface{}) { Get(CategoryEmbedding).Info(format, args...) }
func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debug(format, args...)
}
func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}
func Search(format string, args ...interface{}) { Get(CategorySearch).Info(format, args...) }
func SearchDebug(format string, args ...interface{}) {
	Get(CategorySearch).Debug(format, args...)
}
func Rerank(format string, args ...interface{}) { Get(CategoryRerank).Info(format, args...) }
func Agents(format string, args ...interface{}) { Get(CategoryAgents).Info(format, args...) }
func AgentsDebug(format string, args ...interface{}) {
	Get(CategoryAgents).Debug(format, args...)
}
func Ingest(format string, args ...interface{}) { Get(CategoryIngest).Info(format, args...) }
func IngestDebug(format string, args ...interface{}) {
	Get(CategoryIngest).Debug(format, args...)
}
func Steps(format string, args ...interface{})   { Get(CategorySteps).Debug(format, args...) }
func Session(format string, args ...interface{}) { Get(CategorySession).Info(format, args...) }
func Server(format string, args ...interface{})  { Get(CategoryServer).Info(format, args...) }
func Watcher(format string, args ...interface{}) { Get(CategoryWatcher).Info(format, args...) }

// =============================================================================
// PERFORMANCE TIMING
// =============================================================================

// Timer measures an operation's duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if the duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
