package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"olympus/internal/config"
	"olympus/internal/logging"
)

// ModelManager tracks which runtime models are loaded and when they were
// last used. On machines that can only hold one model in memory it unloads
// the others before warming up a new one.
type ModelManager struct {
	baseURL    string
	policy     config.ModelManagementConfig
	httpClient *http.Client

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	lastUsed map[string]time.Time
	loaded   map[string]bool
}

// NewModelManager creates a manager for the given runtime endpoint.
func NewModelManager(baseURL string, policy config.ModelManagementConfig) *ModelManager {
	return &ModelManager{
		baseURL:    baseURL,
		policy:     policy,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		locks:      make(map[string]*sync.Mutex),
		lastUsed:   make(map[string]time.Time),
		loaded:     make(map[string]bool),
	}
}

// EnsureLoaded guarantees the named model is warm before the first call.
// Concurrent callers for the same model serialize on a per-name lock;
// callers for different models do not block each other.
func (m *ModelManager) EnsureLoaded(ctx context.Context, name string) error {
	lock := m.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	already := m.loaded[name]
	m.lastUsed[name] = time.Now()
	m.mu.Unlock()
	if already {
		return nil
	}

	if m.policy.AutoUnload && !m.policy.KeepBothLoaded {
		m.unloadOthers(ctx, name)
	}

	// A zero-prompt generate call loads the model without producing output.
	if err := m.warmup(ctx, name); err != nil {
		return fmt.Errorf("warmup of %s failed: %w", name, err)
	}

	m.mu.Lock()
	m.loaded[name] = true
	m.lastUsed[name] = time.Now()
	m.mu.Unlock()

	logging.LLM("model %s loaded", name)
	return nil
}

// CleanupInactive unloads models idle beyond the configured window.
func (m *ModelManager) CleanupInactive(ctx context.Context) {
	if m.policy.UnloadAfter <= 0 {
		return
	}
	cutoff := time.Now().Add(-m.policy.UnloadAfter)

	m.mu.Lock()
	var idle []string
	for name, t := range m.lastUsed {
		if m.loaded[name] && t.Before(cutoff) {
			idle = append(idle, name)
		}
	}
	m.mu.Unlock()

	for _, name := range idle {
		m.unload(ctx, name)
	}
}

func (m *ModelManager) nameLock(name string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[name]
	if !ok {
		l = &sync.Mutex{}
		m.locks[name] = l
	}
	return l
}

func (m *ModelManager) unloadOthers(ctx context.Context, keep string) {
	m.mu.Lock()
	var others []string
	for name, isLoaded := range m.loaded {
		if isLoaded && name != keep {
			others = append(others, name)
		}
	}
	m.mu.Unlock()

	for _, name := range others {
		m.unload(ctx, name)
	}
}

// warmup issues a minimal generate request so the runtime loads the weights.
func (m *ModelManager) warmup(ctx context.Context, name string) error {
	return m.post(ctx, map[string]interface{}{"model": name, "prompt": "", "stream": false})
}

// unload sets keep_alive=0 which tells the runtime to evict the model.
func (m *ModelManager) unload(ctx context.Context, name string) {
	if err := m.post(ctx, map[string]interface{}{"model": name, "keep_alive": 0, "stream": false}); err != nil {
		logging.LLMDebug("unload of %s failed: %v", name, err)
		return
	}
	m.mu.Lock()
	m.loaded[name] = false
	m.mu.Unlock()
	logging.LLM("model %s unloaded", name)
}

func (m *ModelManager) post(ctx context.Context, body map[string]interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", m.baseURL+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("runtime returned status %d", resp.StatusCode)
	}
	return nil
}
