// Package wiring assembles the config-driven provider/router/gateway stack
// and exposes it to internal/novel through the narrow novel.Gateway seam,
// the one place allowed to import both internal/llm and internal/novel.
package wiring

import (
	"context"
	"fmt"
	"time"

	"github.com/vampirenirmal/novelforge/internal/config"
	"github.com/vampirenirmal/novelforge/internal/llm"
	"github.com/vampirenirmal/novelforge/internal/llm/provider"
	"github.com/vampirenirmal/novelforge/internal/novel"
	"github.com/vampirenirmal/novelforge/internal/storage"
)

// BuildGateway constructs the LLM Gateway (providers, router, fallback
// manager, rate limiter, cache, generation logger) from cfg.
func BuildGateway(cfg *config.Config) (*llm.Gateway, *llm.GenerationLogger, error) {
	providers := make([]llm.Provider, 0, len(cfg.Providers))
	caps := make([]llm.ProviderCapability, 0, len(cfg.Providers))

	for _, p := range cfg.Providers {
		httpCfg := provider.HTTPConfig{
			APIKey:            p.APIKey,
			BaseURL:           p.BaseURL,
			Model:             p.Model,
			Timeout:           time.Duration(p.TimeoutSeconds) * time.Second,
			RequestsPerMinute: p.RequestsPerMinute,
			Burst:             p.Burst,
		}

		var pr llm.Provider
		switch p.Type {
		case "openai":
			pr = provider.NewOpenAIProvider(httpCfg)
		case "anthropic":
			pr = provider.NewAnthropicProvider(httpCfg)
		case "ollama":
			pr = provider.NewOllamaProvider(httpCfg)
		case "custom":
			pr = provider.NewCustomProvider(p.Name, httpCfg)
		default:
			return nil, nil, fmt.Errorf("unknown provider type %q for provider %q", p.Type, p.Name)
		}
		providers = append(providers, pr)

		supported := map[string]bool{}
		for _, t := range p.SupportedTasks {
			supported[t] = true
		}
		caps = append(caps, llm.ProviderCapability{
			Name:             p.Name,
			QualityScore:     p.QualityScore,
			SpeedScore:       p.SpeedScore,
			ReliabilityScore: p.ReliabilityScore,
			CostScore:        p.CostScore,
			SupportedTasks:   supported,
			Availability:     true,
		})
	}

	logger := llm.NewGenerationLogger(storage.NewFileSystem(cfg.Paths.LogsDir))

	gwCfg := llm.GatewayConfig{
		MinCallSpacing:         time.Duration(cfg.Gateway.MinCallSpacingSeconds) * time.Second,
		PerProviderConcurrency: cfg.Gateway.PerProviderConcurrency,
		CacheEnabled:           cfg.Gateway.CacheEnabled,
		CacheMaxEntries:        cfg.Gateway.CacheMaxEntries,
		DefaultTimeout:         time.Duration(cfg.Gateway.DefaultTimeoutSeconds) * time.Second,
		BatchConcurrency:       cfg.Gateway.BatchConcurrency,
		Strategy:               llm.RoutingStrategy(cfg.Router.Strategy),
	}

	gw := llm.NewGateway(gwCfg, providers, caps, cfg.Router.Primary, cfg.Router.Fallbacks, logger)
	return gw, logger, nil
}

// novelGateway adapts *llm.Gateway to novel.Gateway's narrower interface.
type novelGateway struct {
	gw *llm.Gateway
}

// AsNovelGateway wraps gw so internal/novel's pipeline components can call
// it without importing internal/llm.
func AsNovelGateway(gw *llm.Gateway) novel.Gateway {
	return &novelGateway{gw: gw}
}

func (n *novelGateway) Generate(ctx context.Context, prompt, taskType string, opts novel.GenerateOptions) (string, error) {
	return n.gw.Generate(ctx, prompt, taskType, llm.GenerateOptions{
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		JSONMode:    opts.JSONMode,
		UseCache:    opts.UseCache,
		SessionID:   opts.SessionID,
		StepName:    opts.StepName,
	})
}
