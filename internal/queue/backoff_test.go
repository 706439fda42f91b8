package queue_test

import (
	"testing"
	"time"

	"shipflow/internal/config"
	"shipflow/internal/queue"
)

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	policy := queue.BackoffPolicy{Base: time.Second, Max: 10 * time.Second, Factor: 2}
	cases := map[int]time.Duration{
		0: time.Second,
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		4: 8 * time.Second,
		5: 10 * time.Second,
		9: 10 * time.Second,
	}
	for attempts, want := range cases {
		if got := policy.Delay(attempts, 0.5); got != want {
			t.Fatalf("Delay(%d) = %v, want %v", attempts, got, want)
		}
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	policy := queue.BackoffPolicy{Base: 10 * time.Second, Max: time.Minute, Factor: 2, Jitter: 0.2}
	if got := policy.Delay(1, 0); got != 8*time.Second {
		t.Fatalf("low jitter = %v, want 8s", got)
	}
	if got := policy.Delay(1, 0.5); got != 10*time.Second {
		t.Fatalf("mid jitter = %v, want 10s", got)
	}
	if got := policy.Delay(1, 0.999999); got <= 11*time.Second || got > 12*time.Second {
		t.Fatalf("high jitter = %v, want just under 12s", got)
	}
}

func TestBackoffExhausted(t *testing.T) {
	policy := queue.BackoffPolicy{MaxAttempts: 3}
	if policy.Exhausted(2) || !policy.Exhausted(3) {
		t.Fatal("expected exhaustion at MaxAttempts")
	}
	if (queue.BackoffPolicy{}).Exhausted(100) {
		t.Fatal("zero MaxAttempts means unbounded")
	}
}

func TestPolicyFromSettings(t *testing.T) {
	cfg := config.Default()
	policy := queue.PolicyFromSettings(cfg.Queues.Hydration)
	if policy.MaxAttempts != cfg.Queues.Hydration.MaxAttempts || policy.Base != cfg.Queues.Hydration.BaseDelay() {
		t.Fatalf("unexpected policy %+v", policy)
	}
}
