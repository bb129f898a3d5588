package llm

import (
	"errors"
	"testing"
	"time"
)

func baseCaps() []ProviderCapability {
	return []ProviderCapability{
		{Name: "openai", QualityScore: 0.9, SpeedScore: 0.5, ReliabilityScore: 0.9, CostScore: 0.3, Availability: true},
		{Name: "anthropic", QualityScore: 0.8, SpeedScore: 0.9, ReliabilityScore: 0.8, CostScore: 0.5, Availability: true},
		{Name: "ollama", QualityScore: 0.4, SpeedScore: 0.95, ReliabilityScore: 0.6, CostScore: 1.0, Availability: true},
	}
}

func TestNewRouterAssignsPriorityFromPrimaryAndFallbacks(t *testing.T) {
	r := NewRouter(baseCaps(), "anthropic", []string{"openai", "ollama"}, NewFallbackManager())
	if r.providers["anthropic"].Priority != 1 {
		t.Errorf("primary priority = %d, want 1", r.providers["anthropic"].Priority)
	}
	if r.providers["openai"].Priority != 2 {
		t.Errorf("first fallback priority = %d, want 2", r.providers["openai"].Priority)
	}
	if r.providers["ollama"].Priority != 3 {
		t.Errorf("second fallback priority = %d, want 3", r.providers["ollama"].Priority)
	}
}

func TestNewRouterDefaultsUnlistedProvidersToLowPriority(t *testing.T) {
	caps := append(baseCaps(), ProviderCapability{Name: "custom", Availability: true})
	r := NewRouter(caps, "openai", []string{"anthropic"}, NewFallbackManager())
	if r.providers["custom"].Priority != 10 {
		t.Errorf("unlisted provider priority = %d, want 10", r.providers["custom"].Priority)
	}
}

func TestRouterSelectQualityFirst(t *testing.T) {
	r := NewRouter(baseCaps(), "openai", []string{"anthropic", "ollama"}, NewFallbackManager())
	got, err := r.Select(StrategyQualityFirst, "chapter_generation", "")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got != "openai" {
		t.Errorf("Select(quality-first) = %q, want %q (highest QualityScore)", got, "openai")
	}
}

func TestRouterSelectSpeedFirst(t *testing.T) {
	r := NewRouter(baseCaps(), "openai", []string{"anthropic", "ollama"}, NewFallbackManager())
	got, err := r.Select(StrategySpeedFirst, "chapter_generation", "")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got != "ollama" {
		t.Errorf("Select(speed-first) = %q, want %q (highest SpeedScore)", got, "ollama")
	}
}

func TestRouterSelectCostFirst(t *testing.T) {
	r := NewRouter(baseCaps(), "openai", []string{"anthropic", "ollama"}, NewFallbackManager())
	got, err := r.Select(StrategyCostFirst, "chapter_generation", "")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got != "ollama" {
		t.Errorf("Select(cost-first) = %q, want %q (highest CostScore)", got, "ollama")
	}
}

func TestRouterSelectPreferredOverride(t *testing.T) {
	r := NewRouter(baseCaps(), "openai", []string{"anthropic", "ollama"}, NewFallbackManager())
	got, err := r.Select(StrategyQualityFirst, "chapter_generation", "ollama")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got != "ollama" {
		t.Errorf("Select() with preferred=%q = %q, want the preferred provider honored", "ollama", got)
	}
}

func TestRouterSelectPreferredIgnoredWhenUnsupported(t *testing.T) {
	caps := baseCaps()
	caps[2].SupportedTasks = map[string]bool{"chapter_generation": true}
	r := NewRouter(caps, "openai", []string{"anthropic", "ollama"}, NewFallbackManager())
	got, err := r.Select(StrategyQualityFirst, "quality_assessment", "ollama")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got == "ollama" {
		t.Error("preferred provider should be ignored when it doesn't support the requested task")
	}
}

func TestRouterSelectExcludesUnhealthyProviders(t *testing.T) {
	fm := NewFallbackManager()
	for i := 0; i < consecutiveFailureThreshold; i++ {
		fm.RecordFailure("openai", FailureConnection)
	}
	r := NewRouter(baseCaps(), "openai", []string{"anthropic", "ollama"}, fm)
	got, err := r.Select(StrategyQualityFirst, "chapter_generation", "")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got == "openai" {
		t.Error("an unhealthy (circuit-open) provider must never be selected")
	}
}

func TestRouterSelectNoProviderAvailable(t *testing.T) {
	caps := []ProviderCapability{{Name: "openai", Availability: false}}
	r := NewRouter(caps, "openai", nil, NewFallbackManager())
	_, err := r.Select(StrategyQualityFirst, "chapter_generation", "")
	var nerr *NoProviderAvailableError
	if !errors.As(err, &nerr) {
		t.Errorf("Select() error = %v, want *NoProviderAvailableError", err)
	}
}

func TestRouterFailoverExcludesFailedProvider(t *testing.T) {
	r := NewRouter(baseCaps(), "openai", []string{"anthropic", "ollama"}, NewFallbackManager())
	got, err := r.Failover("chapter_generation", "openai")
	if err != nil {
		t.Fatalf("Failover() error = %v", err)
	}
	if got == "openai" {
		t.Error("Failover() should never return the provider that just failed")
	}
	if got != "anthropic" {
		t.Errorf("Failover() = %q, want %q (next highest priority)", got, "anthropic")
	}
}

func TestRouterRoundRobinCyclesByPriority(t *testing.T) {
	r := NewRouter(baseCaps(), "openai", []string{"anthropic", "ollama"}, NewFallbackManager())
	first, _ := r.Select(StrategyRoundRobin, "chapter_generation", "")
	second, _ := r.Select(StrategyRoundRobin, "chapter_generation", "")
	third, _ := r.Select(StrategyRoundRobin, "chapter_generation", "")
	fourth, _ := r.Select(StrategyRoundRobin, "chapter_generation", "")
	if first != "openai" || second != "anthropic" || third != "ollama" {
		t.Errorf("round-robin sequence = [%s %s %s], want [openai anthropic ollama]", first, second, third)
	}
	if fourth != first {
		t.Errorf("round-robin should wrap around, got %q then %q", first, fourth)
	}
}

func TestRouterBalancedScorePenalizesSlowResponseTime(t *testing.T) {
	caps := []ProviderCapability{
		{Name: "fast", Priority: 1, QualityScore: 0.7, SpeedScore: 0.7, ReliabilityScore: 0.7, CostScore: 0.7, Availability: true},
		{Name: "slow", Priority: 1, QualityScore: 0.7, SpeedScore: 0.7, ReliabilityScore: 0.7, CostScore: 0.7, Availability: true},
	}
	fm := NewFallbackManager()
	fm.RecordSuccess("fast", 0)
	fm.RecordSuccess("slow", 9*time.Second)

	r := &Router{providers: map[string]*ProviderCapability{
		"fast": &caps[0],
		"slow": &caps[1],
	}, fallback: fm}

	fastScore := r.balancedScore(r.providers["fast"])
	slowScore := r.balancedScore(r.providers["slow"])
	if fastScore <= slowScore {
		t.Errorf("balancedScore(fast)=%v, balancedScore(slow)=%v, want fast to score higher for its lower average response time", fastScore, slowScore)
	}
}
