package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/MikeSquared-Agency/sift/internal/llm"
)

func fixedRand(v float64) func() float64 { return func() float64 { return v } }

func TestPolicyNext(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: time.Minute, Rand: fixedRand(0)}

	tests := []struct {
		name       string
		attempt    int
		elapsed    time.Duration
		class      llm.Class
		retryAfter time.Duration
		want       Decision
	}{
		{"success", 1, 0, llm.ClassNone, 0, Decision{Action: ActionDone}},
		{"fatal", 1, 0, llm.ClassFatal, 0, Decision{Action: ActionFail}},
		{"cancelled", 2, 0, llm.ClassCancelled, 0, Decision{Action: ActionAbort}},
		{"first transient", 1, 0, llm.ClassTransient, 0, Decision{Action: ActionRetry, Delay: time.Second}},
		{"second transient", 2, 0, llm.ClassTransient, 0, Decision{Action: ActionRetry, Delay: 2 * time.Second}},
		{"last attempt", 3, 0, llm.ClassTransient, 0, Decision{Action: ActionExhausted}},
		{"retry-after floor", 1, 0, llm.ClassTransient, 30 * time.Second, Decision{Action: ActionRetry, Delay: 30 * time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Next(tt.attempt, tt.elapsed, tt.class, tt.retryAfter))
		})
	}
}

func TestPolicyNext_MaxElapsed(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: 2 * time.Second, MaxElapsed: 5 * time.Second, Rand: fixedRand(0)}

	assert.Equal(t, ActionRetry, p.Next(1, 3*time.Second, llm.ClassTransient, 0).Action)
	assert.Equal(t, ActionExhausted, p.Next(1, 4500*time.Millisecond, llm.ClassTransient, 0).Action)
}

func TestBackoff(t *testing.T) {
	p := Policy{BaseDelay: 2 * time.Second, MaxDelay: time.Minute}

	p.Rand = fixedRand(0)
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 30*time.Second, p.Backoff(20), "capped at MaxDelay before jitter")

	p.Rand = fixedRand(0.5)
	assert.Equal(t, 1500*time.Millisecond, p.Backoff(1))

	assert.Equal(t, time.Duration(0), Policy{}.Backoff(1))
}

func TestBackoff_UncappedPolicyDoesNotOverflow(t *testing.T) {
	p := Policy{BaseDelay: 2 * time.Second, Rand: fixedRand(0)}

	assert.Equal(t, 4*time.Second, p.Backoff(3))
	for _, attempt := range []int{40, 63, 64, 200, 1 << 20} {
		d := p.Backoff(attempt)
		assert.Positive(t, d, "attempt %d", attempt)
		assert.Equal(t, backoffCeiling/2, d, "attempt %d", attempt)
	}
}

func TestBackoff_DefaultRandWithinBounds(t *testing.T) {
	p := DefaultPolicy()
	for i := 0; i < 100; i++ {
		d := p.Backoff(2)
		if d < 2*time.Second || d > 4*time.Second {
			t.Fatalf("backoff %v outside [2s, 4s]", d)
		}
	}
}
