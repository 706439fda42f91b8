package queue

import (
	"math"
	"time"

	"shipflow/internal/config"
)

// BackoffPolicy controls retry scheduling for one queue.
type BackoffPolicy struct {
	Base        time.Duration
	Max         time.Duration
	Factor      float64
	Jitter      float64
	MaxAttempts int
}

// PolicyFromSettings builds the policy for a configured queue.
func PolicyFromSettings(s config.QueueSettings) BackoffPolicy {
	return BackoffPolicy{
		Base:        s.BaseDelay(),
		Max:         s.MaxDelay(),
		Factor:      s.BackoffFactor,
		Jitter:      s.Jitter,
		MaxAttempts: s.MaxAttempts,
	}
}

// Delay returns the wait before the next attempt after attempts failures.
// sample is a uniform value in [0, 1) used to spread retries by ±Jitter.
func (p BackoffPolicy) Delay(attempts int, sample float64) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	raw := float64(p.Base) * math.Pow(factor, float64(attempts-1))
	if p.Max > 0 && raw > float64(p.Max) {
		raw = float64(p.Max)
	}
	if p.Jitter > 0 {
		raw *= 1 + p.Jitter*(2*sample-1)
	}
	if raw < 0 {
		return 0
	}
	return time.Duration(raw)
}

// Exhausted reports whether attempts has used up the retry budget.
func (p BackoffPolicy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}
