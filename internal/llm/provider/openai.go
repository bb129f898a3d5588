// Package provider implements concrete LLM back-ends (OpenAI, Anthropic,
// Ollama, and a generic OpenAI-compatible custom endpoint) behind the
// llm.Provider interface.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/vampirenirmal/novelforge/internal/llm"
)

// HTTPConfig configures one HTTP-based provider client.
type HTTPConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	RequestsPerMinute int
	Burst             int
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func newLimiter(requestsPerMinute, burst int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
}

// OpenAIProvider calls the OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	cfg        HTTPConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewOpenAIProvider builds an OpenAIProvider from cfg, defaulting BaseURL and
// Model when unset.
func NewOpenAIProvider(cfg HTTPConfig) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		cfg:        cfg,
		httpClient: newHTTPClient(cfg.Timeout),
		limiter:    newLimiter(cfg.RequestsPerMinute, cfg.Burst),
		logger:     slog.Default().With("component", "openai_provider"),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Generate(ctx context.Context, params llm.GenerateParams) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", &llm.ProviderError{Provider: p.Name(), Kind: llm.FailureTimeout, Err: err}
	}

	messages := []map[string]string{{"role": "user", "content": params.Prompt}}
	if params.JSONMode {
		messages = append([]map[string]string{{
			"role":    "system",
			"content": "Respond with a single valid JSON object only, no markdown fences or extra text.",
		}}, messages...)
	}

	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body := map[string]interface{}{
		"model":      p.cfg.Model,
		"messages":   messages,
		"max_tokens": maxTokens,
	}
	if params.Temperature > 0 {
		body["temperature"] = params.Temperature
	}
	if params.JSONMode {
		body["response_format"] = map[string]string{"type": "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", &llm.ProviderError{Provider: p.Name(), Kind: llm.FailureInvalidRequest, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", &llm.ProviderError{Provider: p.Name(), Kind: llm.FailureInvalidRequest, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &llm.ProviderError{Provider: p.Name(), Kind: classifyNetErr(err), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &llm.ProviderError{Provider: p.Name(), Kind: llm.FailureConnection, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &llm.ProviderError{Provider: p.Name(), Kind: classifyStatus(resp.StatusCode), Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &llm.ProviderError{Provider: p.Name(), Kind: llm.FailureUnknown, Err: err}
	}
	if len(parsed.Choices) == 0 {
		return "", &llm.ProviderError{Provider: p.Name(), Kind: llm.FailureUnknown, Err: fmt.Errorf("no choices in response")}
	}
	return parsed.Choices[0].Message.Content, nil
}

// classifyStatus maps an HTTP status code to a FailureKind, shared across
// the OpenAI-shaped providers (OpenAI, custom, and — for errors — Ollama).
func classifyStatus(status int) llm.FailureKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return llm.FailureAuth
	case status == http.StatusTooManyRequests:
		return llm.FailureRateLimit
	case status == http.StatusNotFound:
		return llm.FailureModelNotFound
	case status == http.StatusBadRequest:
		return llm.FailureInvalidRequest
	case status >= 500:
		return llm.FailureConnection
	default:
		return llm.FailureUnknown
	}
}

func classifyNetErr(err error) llm.FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return llm.FailureTimeout
	}
	return llm.FailureConnection
}
