package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFallbackManagerHealthyUntilThreshold(t *testing.T) {
	f := NewFallbackManager()
	for i := 0; i < consecutiveFailureThreshold-1; i++ {
		f.RecordFailure("openai", FailureConnection)
		if !f.IsHealthy("openai") {
			t.Fatalf("provider should remain healthy below the threshold (failure %d)", i+1)
		}
	}
}

func TestFallbackManagerOpensCircuitAtThreshold(t *testing.T) {
	f := NewFallbackManager()
	for i := 0; i < consecutiveFailureThreshold; i++ {
		f.RecordFailure("openai", FailureConnection)
	}
	if f.IsHealthy("openai") {
		t.Error("provider should be unhealthy immediately after hitting the consecutive-failure threshold")
	}
}

func TestFallbackManagerSuccessResetsConsecutiveFailures(t *testing.T) {
	f := NewFallbackManager()
	for i := 0; i < consecutiveFailureThreshold; i++ {
		f.RecordFailure("openai", FailureConnection)
	}
	f.RecordSuccess("openai", 0)
	if !f.IsHealthy("openai") {
		t.Error("a recorded success should close the circuit")
	}
}

func TestFallbackManagerTracksAverageResponseTime(t *testing.T) {
	f := NewFallbackManager()
	if got := f.AvgResponseSeconds("openai"); got != 0 {
		t.Errorf("AvgResponseSeconds with no recorded calls = %v, want 0", got)
	}

	f.RecordSuccess("openai", 2*time.Second)
	f.RecordSuccess("openai", 4*time.Second)
	if got := f.AvgResponseSeconds("openai"); got != 3 {
		t.Errorf("AvgResponseSeconds after two calls = %v, want 3", got)
	}
}

func TestFallbackManagerHalfOpenSingleProbe(t *testing.T) {
	f := NewFallbackManager()
	for i := 0; i < consecutiveFailureThreshold; i++ {
		f.RecordFailure("openai", FailureConnection)
	}
	f.health["openai"].lastFailure = time.Now().Add(-circuitRecoveryTimeout - time.Second)

	if !f.IsHealthy("openai") {
		t.Fatal("after the recovery timeout elapses, exactly one probe should be allowed through")
	}
	if f.IsHealthy("openai") {
		t.Error("a second concurrent probe should be rejected while the first is outstanding")
	}
}

func TestFallbackManagerShouldFallback(t *testing.T) {
	f := NewFallbackManager()
	tests := []struct {
		kind FailureKind
		want bool
	}{
		{FailureAuth, false},
		{FailureInvalidRequest, false},
		{FailureRateLimit, true},
		{FailureConnection, true},
		{FailureTimeout, true},
		{FailureModelNotFound, true},
		{FailureUnknown, true},
	}
	for _, tt := range tests {
		if got := f.ShouldFallback(tt.kind); got != tt.want {
			t.Errorf("ShouldFallback(%q) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestFallbackManagerRetryDelayExponentialWithCap(t *testing.T) {
	f := NewFallbackManager()
	base := baseDelays[FailureTimeout]

	if got := f.RetryDelay("openai", FailureTimeout); got != base {
		t.Errorf("RetryDelay with no recorded failures = %v, want base delay %v", got, base)
	}

	f.RecordFailure("openai", FailureTimeout)
	f.RecordFailure("openai", FailureTimeout)
	if got := f.RetryDelay("openai", FailureTimeout); got != base*4 {
		t.Errorf("RetryDelay after 2 consecutive failures = %v, want %v (base*2^2)", got, base*4)
	}

	for i := 0; i < 10; i++ {
		f.RecordFailure("openai", FailureTimeout)
	}
	if got := f.RetryDelay("openai", FailureTimeout); got != base*maxBackoffMultiplier {
		t.Errorf("RetryDelay should cap at base*%d, got %v", maxBackoffMultiplier, got)
	}
}

func TestClassifyErrorPrefersProviderErrorKind(t *testing.T) {
	err := &ProviderError{Provider: "openai", Kind: FailureRateLimit, Err: errors.New("429")}
	if got := ClassifyError(err); got != FailureRateLimit {
		t.Errorf("ClassifyError() = %q, want %q", got, FailureRateLimit)
	}
}

func TestClassifyErrorDetectsTimeout(t *testing.T) {
	if got := ClassifyError(context.DeadlineExceeded); got != FailureTimeout {
		t.Errorf("ClassifyError(context.DeadlineExceeded) = %q, want %q", got, FailureTimeout)
	}
}

func TestClassifyErrorFallsBackToUnknown(t *testing.T) {
	if got := ClassifyError(errors.New("something odd")); got != FailureUnknown {
		t.Errorf("ClassifyError() = %q, want %q", got, FailureUnknown)
	}
}
