package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	t.Setenv("OLYMPUS_OLLAMA_URL", "")
	t.Setenv("OLYMPUS_DATA_DIR", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OLYMPUS_LISTEN_ADDR", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	want := Default("")
	want.Memory.DatabasePath = filepath.Join(want.DataDir, "olympus.db")
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadLayersFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "olympus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /tmp/olympus-test
llm:
  text_model: llama3.1:8b
search:
  recall_top_k: 50
  hybrid:
    vector_weight: 0.6
    bm25_weight: 0.4
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/olympus-test", cfg.DataDir)
	assert.Equal(t, "llama3.1:8b", cfg.LLM.TextModel)
	assert.Equal(t, 50, cfg.Search.RecallTopK)
	assert.Equal(t, 0.6, cfg.Search.Hybrid.VectorWeight)

	// Untouched fields keep their defaults.
	assert.Equal(t, "llava:7b", cfg.LLM.VisionModel)
	assert.Equal(t, 60, cfg.Search.Hybrid.RRFK)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("OLYMPUS_OLLAMA_URL", "http://gpu-box:11434")
	t.Setenv("OLYMPUS_LISTEN_ADDR", ":9999")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:11434", cfg.LLM.BaseURL)
	assert.Equal(t, "http://gpu-box:11434", cfg.Embedding.OllamaEndpoint)
	assert.Equal(t, ":9999", cfg.Server.ListenAddr)
}

func TestLoadBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [not a map"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default("")
	require.NoError(t, cfg.Validate())

	bad := Default("")
	bad.Embedding.Dimension = 0
	assert.Error(t, bad.Validate())

	bad = Default("")
	bad.Search.Hybrid.BM25Weight = -1
	assert.Error(t, bad.Validate())

	bad = Default("")
	bad.Search.RecallTopK = 5
	bad.Search.RerankTopK = 10
	assert.Error(t, bad.Validate())
}
