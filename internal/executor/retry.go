package executor

import (
	"math/rand"
	"time"

	"github.com/MikeSquared-Agency/sift/internal/llm"
)

// Action is the next step of the retry state machine.
type Action int

const (
	ActionDone      Action = iota // attempt succeeded
	ActionRetry                   // transient failure, wait Delay then try again
	ActionFail                    // non-transient failure, stop
	ActionExhausted               // transient failure with no budget left
	ActionAbort                   // caller cancelled
)

func (a Action) String() string {
	switch a {
	case ActionDone:
		return "done"
	case ActionRetry:
		return "retry"
	case ActionFail:
		return "fail"
	case ActionExhausted:
		return "exhausted"
	case ActionAbort:
		return "abort"
	}
	return "unknown"
}

// Decision is the outcome of Policy.Next.
type Decision struct {
	Action Action
	Delay  time.Duration
}

// backoffCeiling caps the delay when a policy sets no MaxDelay, so doubling
// cannot overflow.
const backoffCeiling = 24 * time.Hour

// Policy bounds retries of transient failures.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// MaxElapsed caps the total time spent on one chunk. Zero means no cap.
	MaxElapsed time.Duration
	// Rand returns a value in [0, 1) for jitter. Nil uses math/rand.
	Rand func() float64
}

// DefaultPolicy makes three attempts with a 2s base backoff capped at a minute.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    time.Minute,
	}
}

// Next decides what follows attempt number attempt (1-based) that failed
// with class after elapsed time. retryAfter is a server hint, used as a
// floor for the delay.
func (p Policy) Next(attempt int, elapsed time.Duration, class llm.Class, retryAfter time.Duration) Decision {
	switch class {
	case llm.ClassNone:
		return Decision{Action: ActionDone}
	case llm.ClassCancelled:
		return Decision{Action: ActionAbort}
	case llm.ClassFatal:
		return Decision{Action: ActionFail}
	}

	if attempt >= p.MaxAttempts {
		return Decision{Action: ActionExhausted}
	}
	delay := p.Backoff(attempt)
	if retryAfter > delay {
		delay = retryAfter
	}
	if p.MaxElapsed > 0 && elapsed+delay > p.MaxElapsed {
		return Decision{Action: ActionExhausted}
	}
	return Decision{Action: ActionRetry, Delay: delay}
}

// Backoff is the exponential delay after attempt with equal jitter: half of
// base*2^(attempt-1), capped at MaxDelay (or backoffCeiling), plus a random share of the other half.
func (p Policy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt < 1 {
		return 0
	}
	limit := p.MaxDelay
	if limit <= 0 {
		limit = backoffCeiling
	}
	d := min(p.BaseDelay, limit)
	for i := 1; i < attempt && d < limit; i++ {
		if d > limit/2 {
			d = limit
			break
		}
		d *= 2
	}

	r := p.Rand
	if r == nil {
		r = rand.Float64
	}
	half := d / 2
	return half + time.Duration(r()*float64(d-half))
}
