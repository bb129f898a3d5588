// Package llm implements the LLM Gateway: provider routing, circuit-breaking
// fallback, process-wide rate limiting, response caching, and generation
// logging sitting in front of one or more model back-ends.
package llm

import "context"

// GenerateParams is what the Gateway passes down to a concrete Provider.
type GenerateParams struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	JSONMode     bool
}

// Provider is one LLM back-end (OpenAI, Anthropic, Ollama, or a custom
// OpenAI-compatible endpoint).
type Provider interface {
	Name() string
	Generate(ctx context.Context, params GenerateParams) (string, error)
}

// FailureKind classifies why a provider call failed, driving both the
// Fallback Manager's should_fallback decision and its back-off delay.
type FailureKind string

const (
	FailureRateLimit      FailureKind = "rate_limit"
	FailureAuth           FailureKind = "auth"
	FailureConnection     FailureKind = "connection"
	FailureTimeout        FailureKind = "timeout"
	FailureModelNotFound  FailureKind = "model_not_found"
	FailureInvalidRequest FailureKind = "invalid_request"
	FailureUnknown        FailureKind = "unknown"
)

// ProviderError is what Provider implementations should return (wrapped or
// bare) so the Fallback Manager can classify the failure instead of
// string-sniffing.
type ProviderError struct {
	Provider string
	Kind     FailureKind
	Err      error
}

func (e *ProviderError) Error() string {
	return string(e.Kind) + " from " + e.Provider + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ProviderCapability is the Router's capability record per provider (§4.10).
type ProviderCapability struct {
	Name             string
	QualityScore     float64
	SpeedScore       float64
	ReliabilityScore float64
	CostScore        float64
	SupportedTasks   map[string]bool
	MaxTokens        int
	Availability     bool
	Priority         int // 1 = highest
}

// SupportsTask reports whether this provider handles the given task type. An
// empty SupportedTasks set means "all tasks supported".
func (c ProviderCapability) SupportsTask(taskType string) bool {
	if len(c.SupportedTasks) == 0 {
		return true
	}
	return c.SupportedTasks[taskType]
}
