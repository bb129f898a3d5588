package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// GatewayConfig configures the Gateway's cross-cutting behavior.
type GatewayConfig struct {
	MinCallSpacing       time.Duration
	PerProviderConcurrency int
	CacheEnabled         bool
	CacheMaxEntries      int
	DefaultTimeout       time.Duration
	BatchConcurrency     int
	Strategy             RoutingStrategy
}

// DefaultGatewayConfig matches the configuration defaults in §6.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		MinCallSpacing:         10 * time.Second,
		PerProviderConcurrency: 3,
		CacheEnabled:           true,
		CacheMaxEntries:        10_000,
		DefaultTimeout:         60 * time.Second,
		BatchConcurrency:       2,
		Strategy:               StrategyBalanced,
	}
}

// GenerateOptions customizes a single Generate call.
type GenerateOptions struct {
	PreferredProvider string
	Strategy          RoutingStrategy
	MaxTokens         int
	Temperature       float64
	JSONMode          bool
	UseCache          bool
	SessionID         string
	StepName          string
}

// Gateway is the single entry point for all model calls (§4.9).
type Gateway struct {
	cfg       GatewayConfig
	providers map[string]Provider
	router    *Router
	fallback  *FallbackManager
	limiter   *RateLimiter
	cache     *RequestCache
	logger    *GenerationLogger
	slog      *slog.Logger

	semMu     sync.Mutex
	providerSemaphores map[string]chan struct{}
}

// NewGateway wires a Gateway over the given providers and capability
// records.
func NewGateway(cfg GatewayConfig, providers []Provider, caps []ProviderCapability, primary string, fallbacks []string, logger *GenerationLogger) *Gateway {
	fm := NewFallbackManager()
	g := &Gateway{
		cfg:                cfg,
		providers:          make(map[string]Provider, len(providers)),
		fallback:           fm,
		router:             NewRouter(caps, primary, fallbacks, fm),
		limiter:            NewRateLimiter(cfg.MinCallSpacing),
		logger:             logger,
		slog:               slog.Default().With("component", "llm_gateway"),
		providerSemaphores: make(map[string]chan struct{}),
	}
	for _, p := range providers {
		g.providers[p.Name()] = p
		g.providerSemaphores[p.Name()] = make(chan struct{}, max(1, cfg.PerProviderConcurrency))
	}
	if cfg.CacheEnabled {
		g.cache = NewRequestCache(cfg.CacheMaxEntries)
	}
	return g
}

// Generate issues one prompt against the best-available provider for
// taskType, following the sequence in §4.9: cache lookup, router selection,
// rate-limit gate, per-provider concurrency slot, provider call with
// timeout, retryable-failure fallback with capped back-off, cache/log on
// success.
func (g *Gateway) Generate(ctx context.Context, prompt, taskType string, opts GenerateOptions) (string, error) {
	useCache := opts.UseCache && g.cache != nil
	fp := Fingerprint(prompt, taskType, opts.MaxTokens, opts.Temperature)
	if useCache {
		if cached, ok := g.cache.Get(ctx, fp); ok {
			g.slog.Debug("cache hit", "task_type", taskType)
			return cached, nil
		}
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = g.cfg.Strategy
	}

	providerName, err := g.router.Select(strategy, taskType, opts.PreferredProvider)
	if err != nil {
		return "", err
	}

	failed := make(map[string]bool)
	for {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}

		start := time.Now()
		result, callErr := g.call(ctx, providerName, prompt, opts)
		if callErr == nil {
			g.fallback.RecordSuccess(providerName, time.Since(start))
			if useCache {
				g.cache.Set(ctx, fp, taskType, result)
			}
			if g.logger != nil && opts.SessionID != "" {
				g.logger.Append(opts.SessionID, LogEntry{
					Timestamp: time.Now(),
					StepType:  taskType,
					StepName:  opts.StepName,
					Prompt:    prompt,
					Response:  result,
					ModelInfo: providerName,
				})
			}
			return result, nil
		}

		kind := ClassifyError(callErr)
		g.fallback.RecordFailure(providerName, kind)

		if !g.fallback.ShouldFallback(kind) {
			return "", &NonRetryableError{Provider: providerName, Cause: callErr}
		}

		failed[providerName] = true
		delay := g.fallback.RetryDelay(providerName, kind)
		if delay > 5*time.Second {
			delay = 5 * time.Second
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}

		next, routeErr := g.router.Failover(taskType, providerName)
		if routeErr != nil {
			return "", routeErr
		}
		if failed[next] {
			return "", &NoProviderAvailableError{TaskType: taskType}
		}
		providerName = next
	}
}

func (g *Gateway) call(ctx context.Context, providerName, prompt string, opts GenerateOptions) (string, error) {
	provider, ok := g.providers[providerName]
	if !ok {
		return "", fmt.Errorf("unknown provider %q", providerName)
	}

	g.semMu.Lock()
	sem := g.providerSemaphores[providerName]
	g.semMu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-sem }()

	timeout := g.cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return provider.Generate(callCtx, GenerateParams{
		Prompt:      prompt,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		JSONMode:    opts.JSONMode,
	})
}

// BatchItem is one independent prompt submitted to GenerateBatch.
type BatchItem struct {
	Prompt   string
	TaskType string
	Options  GenerateOptions
}

// GenerateBatch runs independent prompts with bounded concurrency
// (§5 — concept/outline/character calls across different manuscripts;
// chapter generation for one manuscript must never be submitted here).
func (g *Gateway) GenerateBatch(ctx context.Context, items []BatchItem) ([]string, error) {
	results := make([]string, len(items))
	grp, grpCtx := errgroup.WithContext(ctx)
	limit := g.cfg.BatchConcurrency
	if limit <= 0 {
		limit = max(1, g.cfg.PerProviderConcurrency/2)
	}
	grp.SetLimit(limit)

	for i, item := range items {
		i, item := i, item
		grp.Go(func() error {
			result, err := g.Generate(grpCtx, item.Prompt, item.TaskType, item.Options)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
