// Package embedding provides vector embedding generation for semantic search.
// Supports multiple backends: Ollama (local) and Google GenAI (cloud).
// Document summaries are embedded at ingestion time; queries at search time.
package embedding

import (
	"context"
	"fmt"
	"math"
	"sync"

	"olympus/internal/config"
	"olympus/internal/logging"
)

// =============================================================================
// EMBEDDING ENGINE INTERFACE
// =============================================================================

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates a unit-normalized embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings.
	Dimensions() int

	// Name returns the engine name.
	Name() string
}

// =============================================================================
// FACTORY
// =============================================================================

// NewEngine creates an embedding engine based on configuration. The returned
// engine is wrapped so that encode calls are serialized: the local model is
// a single GPU-bound resource and must never run concurrent batches.
func NewEngine(cfg config.EmbeddingConfig) (Engine, error) {
	logging.Embedding("Creating embedding engine with provider=%s", cfg.Provider)

	var engine Engine
	var err error

	switch cfg.Provider {
	case "ollama":
		engine, err = NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel, cfg.Dimension)
	case "genai":
		engine, err = NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.Dimension)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'ollama' or 'genai')", cfg.Provider)
	}
	if err != nil {
		logging.Get(logging.CategoryEmbedding).Error("Failed to create embedding engine: %v", err)
		return nil, err
	}

	logging.Embedding("Embedding engine created: name=%s, dimensions=%d", engine.Name(), engine.Dimensions())
	return &lockedEngine{inner: engine}, nil
}

// lockedEngine serializes all encode calls behind a mutex and normalizes
// output vectors to unit length so inner product equals cosine similarity.
type lockedEngine struct {
	mu    sync.Mutex
	inner Engine
}

func (e *lockedEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	Normalize(vec)
	return vec, nil
}

func (e *lockedEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	vecs, err := e.inner.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	for _, v := range vecs {
		Normalize(v)
	}
	return vecs, nil
}

func (e *lockedEngine) Dimensions() int { return e.inner.Dimensions() }
func (e *lockedEngine) Name() string    { return e.inner.Name() }

// =============================================================================
// VECTOR MATH
// =============================================================================

// Normalize scales v to unit length in place. Zero vectors are left as-is.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

// IsZero reports whether every component of v is zero.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1; 0 with an error for mismatched lengths.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, na, nb float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
