package provider

import (
	"github.com/vampirenirmal/novelforge/internal/llm"
)

// CustomProvider wraps any OpenAI-compatible endpoint (self-hosted vLLM,
// LiteLLM gateways, etc.) configured via provider configs (§6). It reuses
// OpenAIProvider's wire format since OpenAI-compatible is, by definition,
// the same request/response shape.
type CustomProvider struct {
	*OpenAIProvider
	name string
}

// NewCustomProvider builds a CustomProvider advertised under name (so the
// Router's capability table can reference it distinctly from "openai").
func NewCustomProvider(name string, cfg HTTPConfig) *CustomProvider {
	return &CustomProvider{OpenAIProvider: NewOpenAIProvider(cfg), name: name}
}

func (p *CustomProvider) Name() string { return p.name }

var _ llm.Provider = (*CustomProvider)(nil)
