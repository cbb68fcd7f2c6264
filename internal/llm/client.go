// Package llm is the single entry point for all model calls. It wraps the
// local Ollama-compatible HTTP runtime with retry/backoff, JSON response
// sanitization, vision input, and thinking-stream capture.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"olympus/internal/config"
	"olympus/internal/logging"
)

// Client is the interface agents program against. Implementations must be
// safe for concurrent use.
type Client interface {
	// Complete sends a prompt and returns the completion text.
	Complete(ctx context.Context, req Request) (*Response, error)

	// CompleteJSON sends a prompt expected to yield a JSON object, sanitizes
	// the output, and unmarshals into out. When parsing fails after all
	// retries and req.Fallback is non-empty, the fallback is unmarshaled
	// instead and no error is returned.
	CompleteJSON(ctx context.Context, req Request, out interface{}) error
}

// Request is a single model call.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	// Images are raw image bytes for vision models; base64-encoded on the wire.
	Images [][]byte
	// JSONMode asks the runtime for format=json. Suppressed automatically
	// for vision calls: the known vision models ignore or garble it, so the
	// client relies on sanitized extraction instead.
	JSONMode bool
	// Think requests the thinking stream where the model supports it.
	Think bool
	// Fallback, when non-empty, is returned (or unmarshaled, for JSON calls)
	// after retries are exhausted instead of an error.
	Fallback string
	// Validate, when set, must accept the response text; a rejection counts
	// as a failed attempt and is retried.
	Validate func(string) bool
}

// Response is the result of a model call.
type Response struct {
	Text     string
	Thinking string
	// FromFallback is true when Text carries the request's fallback value.
	FromFallback bool
}

// CallError is returned when all retries are exhausted and no fallback was
// provided.
type CallError struct {
	Model    string
	Attempts int
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("llm call to %s failed after %d attempts: %v", e.Model, e.Attempts, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// =============================================================================
// OLLAMA CLIENT
// =============================================================================

// OllamaClient talks to an Ollama-compatible /api/generate endpoint.
type OllamaClient struct {
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	temperature float64
	manager     *ModelManager
}

// NewOllamaClient creates a client from config. The manager may be nil, in
// which case no load management is performed.
func NewOllamaClient(cfg config.LLMConfig, manager *ModelManager) *OllamaClient {
	return &OllamaClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		maxRetries:  cfg.MaxRetries,
		temperature: cfg.Temperature,
		manager:     manager,
	}
}

type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Images  []string               `json:"images,omitempty"`
	Format  string                 `json:"format,omitempty"`
	Think   bool                   `json:"think,omitempty"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Thinking string `json:"thinking,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Complete sends a prompt and returns the completion, retrying transient
// failures with bounded linear backoff.
func (c *OllamaClient) Complete(ctx context.Context, req Request) (*Response, error) {
	timer := logging.StartTimer(logging.CategoryLLM, "Complete")
	defer timer.Stop()

	if c.manager != nil {
		if err := c.manager.EnsureLoaded(ctx, req.Model); err != nil {
			logging.Get(logging.CategoryLLM).Warn("model load for %s failed: %v", req.Model, err)
			// A failed warmup is not fatal; the generate call may still work.
		}
	}

	attempts := c.maxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			// Linear backoff with jitter: attempt × 0.5–1.0 s.
			delay := time.Duration(float64(i) * (0.5 + 0.5*rand.Float64()) * float64(time.Second))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				lastErr = ctx.Err()
				i = attempts
				continue
			}
		}

		text, thinking, err := c.generate(ctx, req)
		if err != nil {
			lastErr = err
			logging.LLMDebug("attempt %d/%d for %s failed: %v", i+1, attempts, req.Model, err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			lastErr = errors.New("empty response")
			continue
		}
		if req.Validate != nil && !req.Validate(text) {
			lastErr = errors.New("response rejected by validator")
			continue
		}
		return &Response{Text: text, Thinking: thinking}, nil
	}

	if req.Fallback != "" {
		logging.LLM("model %s exhausted retries, returning fallback: %v", req.Model, lastErr)
		return &Response{Text: req.Fallback, FromFallback: true}, nil
	}
	return nil, &CallError{Model: req.Model, Attempts: attempts, Err: lastErr}
}

// CompleteJSON sends a prompt expected to yield JSON and unmarshals the
// sanitized object into out.
func (c *OllamaClient) CompleteJSON(ctx context.Context, req Request, out interface{}) error {
	// Vision models garble format=json; everyone else gets it.
	req.JSONMode = len(req.Images) == 0
	if req.Validate == nil {
		req.Validate = func(s string) bool {
			return ExtractJSONObject(s) != ""
		}
	}

	resp, err := c.Complete(ctx, req)
	if err != nil {
		if req.Fallback != "" {
			return json.Unmarshal([]byte(req.Fallback), out)
		}
		return err
	}

	raw := ExtractJSONObject(resp.Text)
	if raw == "" {
		if req.Fallback != "" {
			return json.Unmarshal([]byte(req.Fallback), out)
		}
		return fmt.Errorf("no JSON object in model output")
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		if req.Fallback != "" {
			return json.Unmarshal([]byte(req.Fallback), out)
		}
		return fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return nil
}

// generate performs one HTTP round trip.
func (c *OllamaClient) generate(ctx context.Context, req Request) (string, string, error) {
	body := generateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
		Think:  req.Think,
	}
	temp := req.Temperature
	if temp == 0 {
		temp = c.temperature
	}
	body.Options = map[string]interface{}{"temperature": temp}
	if req.JSONMode {
		body.Format = "json"
	}
	for _, img := range req.Images {
		body.Images = append(body.Images, encodeBase64(img))
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("runtime returned status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var gen generateResponse
	if err := json.Unmarshal(data, &gen); err != nil {
		return "", "", fmt.Errorf("failed to parse response: %w", err)
	}
	if gen.Error != "" {
		return "", "", fmt.Errorf("runtime error: %s", gen.Error)
	}
	return strings.TrimSpace(gen.Response), gen.Thinking, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
