package llm

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRateLimiterEnforcesMinimumSpacing(t *testing.T) {
	r := NewRateLimiter(20 * time.Millisecond)
	ctx := context.Background()

	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	first := r.LastCallTime()

	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	second := r.LastCallTime()

	if second.Sub(first) < 20*time.Millisecond {
		t.Errorf("spacing between calls = %v, want at least 20ms", second.Sub(first))
	}
}

func TestRateLimiterFIFOUnderConcurrency(t *testing.T) {
	r := NewRateLimiter(5 * time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var times []time.Time
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Wait(ctx); err != nil {
				t.Errorf("Wait() error = %v", err)
				return
			}
			mu.Lock()
			times = append(times, r.LastCallTime())
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(times) != 5 {
		t.Fatalf("len(times) = %d, want 5", len(times))
	}
	// Every granted call must be spaced at least minSpacing apart from its
	// nearest neighbor, regardless of arrival order.
	for i := 0; i < len(times); i++ {
		for j := i + 1; j < len(times); j++ {
			diff := times[j].Sub(times[i])
			if diff < 0 {
				diff = -diff
			}
			if diff != 0 && diff < 5*time.Millisecond {
				t.Errorf("calls %d and %d spaced %v apart, want >=5ms or exactly concurrent", i, j, diff)
			}
		}
	}
}

func TestRateLimiterRespectsContextCancellation(t *testing.T) {
	r := NewRateLimiter(time.Hour)

	// Hold the single ticket for the whole test by starting a Wait that
	// must sleep out the full minSpacing before releasing it.
	holderDone := make(chan struct{})
	go func() {
		_ = r.Wait(context.Background())
		close(holderDone)
	}()
	time.Sleep(10 * time.Millisecond) // let the holder acquire the ticket first

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Wait(cancelCtx)
	if err == nil {
		t.Error("Wait() should return an error once its context is cancelled while queued behind another caller")
	}
	select {
	case <-holderDone:
		t.Error("the ticket holder should still be sleeping out minSpacing, not finished")
	default:
	}
}
