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

// OllamaProvider calls a local or self-hosted Ollama server's /api/generate
// endpoint. It has no API key requirement and defaults to a longer timeout
// since local inference is typically slower than hosted providers.
type OllamaProvider struct {
	cfg        HTTPConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewOllamaProvider builds an OllamaProvider from cfg.
func NewOllamaProvider(cfg HTTPConfig) *OllamaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OllamaProvider{
		cfg:        cfg,
		httpClient: newHTTPClient(cfg.Timeout),
		limiter:    newLimiter(cfg.RequestsPerMinute, cfg.Burst),
		logger:     slog.Default().With("component", "ollama_provider"),
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) Generate(ctx context.Context, params llm.GenerateParams) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", &llm.ProviderError{Provider: p.Name(), Kind: llm.FailureTimeout, Err: err}
	}

	body := map[string]interface{}{
		"model":  p.cfg.Model,
		"prompt": params.Prompt,
		"stream": false,
	}
	if params.JSONMode {
		body["format"] = "json"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", &llm.ProviderError{Provider: p.Name(), Kind: llm.FailureInvalidRequest, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", &llm.ProviderError{Provider: p.Name(), Kind: llm.FailureInvalidRequest, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

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
		Response string `json:"response"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &llm.ProviderError{Provider: p.Name(), Kind: llm.FailureUnknown, Err: err}
	}
	return parsed.Response, nil
}
