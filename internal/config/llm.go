package config

import "time"

// LLMConfig configures the local model runtime (Ollama-compatible HTTP API).
// TextModel handles classification, reformulation, and answers; VisionModel
// handles image captioning and attached-image analysis.
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	TextModel   string        `yaml:"text_model"`
	VisionModel string        `yaml:"vision_model"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	Temperature float64       `yaml:"temperature"`

	ModelManagement ModelManagementConfig `yaml:"model_management"`
}

// ModelManagementConfig controls load/unload behavior of runtime models.
type ModelManagementConfig struct {
	// AutoUnload unloads all other models before loading a new one. Keeps
	// VRAM usage at a single model on small machines.
	AutoUnload bool `yaml:"auto_unload"`
	// KeepBothLoaded disables unloading between the text and vision model.
	KeepBothLoaded bool `yaml:"keep_both_loaded"`
	// UnloadAfter is the idle window after which cleanup unloads a model.
	UnloadAfter time.Duration `yaml:"unload_after"`
}

// DefaultLLMConfig returns the local-Ollama defaults.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:     "http://localhost:11434",
		TextModel:   "qwen2.5:7b",
		VisionModel: "llava:7b",
		Timeout:     120 * time.Second,
		MaxRetries:  3,
		Temperature: 0.1,
		ModelManagement: ModelManagementConfig{
			AutoUnload:     true,
			KeepBothLoaded: false,
			UnloadAfter:    10 * time.Minute,
		},
	}
}

// EmbeddingConfig configures the sentence-embedding engine.
type EmbeddingConfig struct {
	// Provider: "ollama" or "genai"
	Provider string `yaml:"provider"`

	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`

	// Dimension must match the model's output width; the vector column in
	// the index is sized from this.
	Dimension int `yaml:"dimension"`
}

// DefaultEmbeddingConfig returns local-Ollama embedding defaults.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:       "ollama",
		OllamaEndpoint: "http://localhost:11434",
		OllamaModel:    "embeddinggemma",
		GenAIModel:     "gemini-embedding-001",
		Dimension:      768,
	}
}
