package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	consecutiveFailureThreshold = 5
	circuitRecoveryTimeout      = 300 * time.Second
	maxBackoffMultiplier        = 32
)

var baseDelays = map[FailureKind]time.Duration{
	FailureRateLimit:      60 * time.Second,
	FailureConnection:     5 * time.Second,
	FailureTimeout:        3 * time.Second,
	FailureModelNotFound:  1 * time.Second,
	FailureInvalidRequest: 1 * time.Second,
	FailureUnknown:        1 * time.Second,
}

// providerHealth is the Fallback Manager's per-provider bookkeeping.
type providerHealth struct {
	failureCount        int
	consecutiveFailures int
	lastFailure         time.Time
	lastSuccess         time.Time
	failuresByKind      map[FailureKind]int
	responseCount       int
	avgResponseSeconds  float64
}

// FallbackManager tracks per-provider failure history and implements the
// circuit breaker: after consecutiveFailureThreshold consecutive failures a
// provider is marked unhealthy; after circuitRecoveryTimeout since its last
// failure, one half-open probe is allowed; the first success closes the
// circuit again.
type FallbackManager struct {
	mu      sync.Mutex
	health  map[string]*providerHealth
	probing map[string]bool
}

// NewFallbackManager returns an empty FallbackManager; providers are added
// lazily on first failure/success report.
func NewFallbackManager() *FallbackManager {
	return &FallbackManager{
		health:  make(map[string]*providerHealth),
		probing: make(map[string]bool),
	}
}

func (f *FallbackManager) entry(provider string) *providerHealth {
	h, ok := f.health[provider]
	if !ok {
		h = &providerHealth{failuresByKind: make(map[FailureKind]int)}
		f.health[provider] = h
	}
	return h
}

// RecordFailure registers a failure of the given kind for provider.
func (f *FallbackManager) RecordFailure(provider string, kind FailureKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.entry(provider)
	h.failureCount++
	h.consecutiveFailures++
	h.lastFailure = time.Now()
	h.failuresByKind[kind]++
	delete(f.probing, provider)
}

// RecordSuccess clears the consecutive-failure streak, closing the circuit
// if it was half-open, and folds duration into the provider's running
// average response time used by the Router's balanced-score strategy.
func (f *FallbackManager) RecordSuccess(provider string, duration time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.entry(provider)
	h.consecutiveFailures = 0
	h.lastSuccess = time.Now()
	delete(f.probing, provider)

	h.responseCount++
	seconds := duration.Seconds()
	h.avgResponseSeconds += (seconds - h.avgResponseSeconds) / float64(h.responseCount)
}

// AvgResponseSeconds returns provider's running-average response time in
// seconds, or 0 if no successful call has been recorded yet.
func (f *FallbackManager) AvgResponseSeconds(provider string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.health[provider]
	if !ok {
		return 0
	}
	return h.avgResponseSeconds
}

// IsHealthy reports whether provider may currently be tried: healthy
// (below the consecutive-failure threshold), or eligible for a single
// half-open probe once the recovery timeout has elapsed.
func (f *FallbackManager) IsHealthy(provider string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.health[provider]
	if !ok {
		return true
	}
	if h.consecutiveFailures < consecutiveFailureThreshold {
		return true
	}
	if time.Since(h.lastFailure) < circuitRecoveryTimeout {
		return false
	}
	// Half-open: allow exactly one concurrent probe.
	if f.probing[provider] {
		return false
	}
	f.probing[provider] = true
	return true
}

// ShouldFallback implements should_fallback(error): auth and invalid-request
// failures are non-retryable and must escalate immediately; everything else
// (rate-limit, timeout, connection, model-not-found, unknown) permits
// falling back to the next provider.
func (f *FallbackManager) ShouldFallback(kind FailureKind) bool {
	switch kind {
	case FailureAuth, FailureInvalidRequest:
		return false
	default:
		return true
	}
}

// RetryDelay computes base_delay(kind) * 2^consecutive_failures, capped at
// maxBackoffMultiplier times the base delay.
func (f *FallbackManager) RetryDelay(provider string, kind FailureKind) time.Duration {
	f.mu.Lock()
	consecutive := 0
	if h, ok := f.health[provider]; ok {
		consecutive = h.consecutiveFailures
	}
	f.mu.Unlock()

	base := baseDelays[kind]
	if base == 0 {
		base = baseDelays[FailureUnknown]
	}
	multiplier := 1 << uint(consecutive)
	if multiplier > maxBackoffMultiplier {
		multiplier = maxBackoffMultiplier
	}
	return base * time.Duration(multiplier)
}

// ClassifyError maps an error returned by a Provider into a FailureKind,
// preferring a *ProviderError's explicit Kind over any heuristic.
func ClassifyError(err error) FailureKind {
	if err == nil {
		return FailureUnknown
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureUnknown
}
