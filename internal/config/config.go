// Package config holds all olympus configuration. Defaults are always valid:
// a missing config file yields a fully working local setup (Ollama on
// localhost, SQLite under the data dir).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration tree.
type Config struct {
	Name    string `yaml:"name"`
	DataDir string `yaml:"data_dir"`

	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Memory    MemoryConfig    `yaml:"memory"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Default returns the full default configuration rooted at dataDir.
func Default(dataDir string) *Config {
	if dataDir == "" {
		dataDir = ".olympus"
	}
	return &Config{
		Name:      "olympus",
		DataDir:   dataDir,
		LLM:       DefaultLLMConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Search:    DefaultSearchConfig(),
		Ingestion: DefaultIngestionConfig(),
		Watcher:   DefaultWatcherConfig(),
		Memory:    DefaultMemoryConfig(dataDir),
		Server:    DefaultServerConfig(),
		Logging:   DefaultLoggingConfig(),
	}
}

// Load reads a YAML config file, layering it over defaults and then applying
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default("")

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if cfg.Memory.DatabasePath == "" {
		cfg.Memory.DatabasePath = filepath.Join(cfg.DataDir, "olympus.db")
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment env vars win over file values for the
// endpoints and keys that differ between machines.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OLYMPUS_OLLAMA_URL"); v != "" {
		c.LLM.BaseURL = v
		c.Embedding.OllamaEndpoint = v
	}
	if v := os.Getenv("OLYMPUS_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.Embedding.GenAIAPIKey == "" {
		c.Embedding.GenAIAPIKey = v
	}
	if v := os.Getenv("OLYMPUS_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
}

// Validate checks cross-field invariants that defaults alone cannot ensure.
func (c *Config) Validate() error {
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Search.Hybrid.VectorWeight < 0 || c.Search.Hybrid.BM25Weight < 0 {
		return fmt.Errorf("hybrid search weights must be non-negative")
	}
	if c.Search.RecallTopK < c.Search.RerankTopK {
		return fmt.Errorf("search.recall_top_k (%d) must be >= search.rerank_top_k (%d)",
			c.Search.RecallTopK, c.Search.RerankTopK)
	}
	return nil
}
