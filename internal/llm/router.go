package llm

import (
	"sort"
	"sync"
)

// RoutingStrategy names one of the Router's provider selection policies.
type RoutingStrategy string

const (
	StrategyQualityFirst RoutingStrategy = "quality-first"
	StrategySpeedFirst   RoutingStrategy = "speed-first"
	StrategyCostFirst    RoutingStrategy = "cost-first"
	StrategyBalanced     RoutingStrategy = "balanced"
	StrategyRoundRobin   RoutingStrategy = "round-robin"
	StrategyFailover     RoutingStrategy = "failover"
)

// Router scores providers by quality/speed/cost/health and picks one per
// task, per §4.10.
type Router struct {
	mu        sync.Mutex
	providers map[string]*ProviderCapability
	fallback  *FallbackManager
	rrIndex   int
}

// NewRouter builds a Router over the given capability records, assigning
// priority 1 to primary, 2..N to the ordered fallbacks, and 10 to anything
// else not mentioned, per the configuration rule in §4.10.
func NewRouter(caps []ProviderCapability, primary string, fallbacks []string, fm *FallbackManager) *Router {
	r := &Router{
		providers: make(map[string]*ProviderCapability, len(caps)),
		fallback:  fm,
	}
	for i := range caps {
		c := caps[i]
		r.providers[c.Name] = &c
	}
	priority := map[string]int{primary: 1}
	for i, name := range fallbacks {
		priority[name] = i + 2
	}
	for name, c := range r.providers {
		if p, ok := priority[name]; ok {
			c.Priority = p
		} else if c.Priority == 0 {
			c.Priority = 10
		}
	}
	return r
}

func (r *Router) available(taskType string) []*ProviderCapability {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ProviderCapability
	for _, c := range r.providers {
		if !c.Availability {
			continue
		}
		if !c.SupportsTask(taskType) {
			continue
		}
		if r.fallback != nil && !r.fallback.IsHealthy(c.Name) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Select picks a provider for taskType under strategy, honoring preferred
// when it is available and supports the task.
func (r *Router) Select(strategy RoutingStrategy, taskType, preferred string) (string, error) {
	if preferred != "" {
		r.mu.Lock()
		c, ok := r.providers[preferred]
		r.mu.Unlock()
		if ok && c.Availability && c.SupportsTask(taskType) && (r.fallback == nil || r.fallback.IsHealthy(preferred)) {
			return preferred, nil
		}
	}

	candidates := r.available(taskType)
	if len(candidates) == 0 {
		return "", &NoProviderAvailableError{TaskType: taskType}
	}

	switch strategy {
	case StrategySpeedFirst:
		return argmax(candidates, func(c *ProviderCapability) float64 { return c.SpeedScore }), nil
	case StrategyCostFirst:
		return argmax(candidates, func(c *ProviderCapability) float64 { return c.CostScore }), nil
	case StrategyRoundRobin:
		return r.roundRobin(candidates), nil
	case StrategyFailover:
		return r.failoverPick(candidates, ""), nil
	case StrategyBalanced:
		return argmax(candidates, r.balancedScore), nil
	case StrategyQualityFirst:
		fallthrough
	default:
		return argmax(candidates, func(c *ProviderCapability) float64 { return c.QualityScore }), nil
	}
}

// Failover computes the fallback provider on failure: failover ordering
// (priority asc, success-rate desc) excluding the one that just failed.
func (r *Router) Failover(taskType, failed string) (string, error) {
	candidates := r.available(taskType)
	pick := r.failoverPick(candidates, failed)
	if pick == "" {
		return "", &NoProviderAvailableError{TaskType: taskType}
	}
	return pick, nil
}

func (r *Router) failoverPick(candidates []*ProviderCapability, exclude string) string {
	filtered := candidates[:0:0]
	for _, c := range candidates {
		if c.Name != exclude {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return ""
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Priority != filtered[j].Priority {
			return filtered[i].Priority < filtered[j].Priority
		}
		return r.successRate(filtered[i].Name) > r.successRate(filtered[j].Name)
	})
	return filtered[0].Name
}

func (r *Router) roundRobin(candidates []*ProviderCapability) string {
	sorted := append([]*ProviderCapability(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	r.mu.Lock()
	idx := r.rrIndex % len(sorted)
	r.rrIndex++
	r.mu.Unlock()
	return sorted[idx].Name
}

// balancedScore implements §4.10's weighted sum: quality*0.4 + speed*0.25 +
// reliability*0.2 + cost*0.1 + (success_rate*10 + response_score)*0.05,
// minus (priority-1)*0.5, where response_score = max(0, 10 - avg_response_time)
// rewards providers with a fast recorded average response time.
func (r *Router) balancedScore(c *ProviderCapability) float64 {
	responseScore := 10 - r.avgResponseTime(c.Name)
	if responseScore < 0 {
		responseScore = 0
	}
	score := c.QualityScore*0.4 + c.SpeedScore*0.25 + c.ReliabilityScore*0.2 + c.CostScore*0.1 + (r.successRate(c.Name)*10+responseScore)*0.05
	score -= float64(c.Priority-1) * 0.5
	return score
}

func (r *Router) successRate(provider string) float64 {
	if r.fallback == nil {
		return 1.0
	}
	r.fallback.mu.Lock()
	defer r.fallback.mu.Unlock()
	h, ok := r.fallback.health[provider]
	if !ok || (h.failureCount == 0 && h.lastSuccess.IsZero()) {
		return 1.0
	}
	total := h.failureCount
	// Successes aren't separately counted; approximate using the
	// consecutive-failure-free streak as a proxy so a provider with a
	// long failure history still scores lower than a clean one.
	if total == 0 {
		return 1.0
	}
	successes := 1
	if h.consecutiveFailures == 0 {
		successes = total
	}
	return float64(successes) / float64(successes+total)
}

// avgResponseTime returns provider's running-average response time in
// seconds, or 0 (the best case) if no successful call has been recorded yet.
func (r *Router) avgResponseTime(provider string) float64 {
	if r.fallback == nil {
		return 0
	}
	return r.fallback.AvgResponseSeconds(provider)
}

func argmax(candidates []*ProviderCapability, score func(*ProviderCapability) float64) string {
	best := candidates[0]
	bestScore := score(best)
	for _, c := range candidates[1:] {
		if s := score(c); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best.Name
}
