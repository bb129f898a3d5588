package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/vampirenirmal/novelforge/internal/llm"
)

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	cfg        HTTPConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewAnthropicProvider builds an AnthropicProvider from cfg.
func NewAnthropicProvider(cfg HTTPConfig) *AnthropicProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-20241022"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &AnthropicProvider{
		cfg:        cfg,
		httpClient: newHTTPClient(cfg.Timeout),
		limiter:    newLimiter(cfg.RequestsPerMinute, cfg.Burst),
		logger:     slog.Default().With("component", "anthropic_provider"),
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Generate(ctx context.Context, params llm.GenerateParams) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", &llm.ProviderError{Provider: p.Name(), Kind: llm.FailureTimeout, Err: err}
	}

	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body := map[string]interface{}{
		"model":      p.cfg.Model,
		"max_tokens": maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": params.Prompt},
		},
	}
	if params.JSONMode {
		body["system"] = "Respond with valid JSON only. No markdown formatting, no explanations, no text outside the JSON object."
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", &llm.ProviderError{Provider: p.Name(), Kind: llm.FailureInvalidRequest, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return "", &llm.ProviderError{Provider: p.Name(), Kind: llm.FailureInvalidRequest, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

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
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &llm.ProviderError{Provider: p.Name(), Kind: llm.FailureUnknown, Err: err}
	}
	if len(parsed.Content) == 0 {
		return "", &llm.ProviderError{Provider: p.Name(), Kind: llm.FailureUnknown, Err: fmt.Errorf("no content in response")}
	}
	return parsed.Content[0].Text, nil
}
