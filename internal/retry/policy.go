// Package retry decides whether a failed pipeline invocation should be
// retried and how long to wait first. The policy is a pure function of the
// error classification and the attempt count; it holds no state and is safe
// for concurrent use.
package retry

import (
	"math"
	"time"
)

// Kind classifies a pipeline error for retry purposes.
type Kind int

const (
	// KindTransient covers timeouts, upstream rate limits, and connection
	// resets, failures worth retrying.
	KindTransient Kind = iota
	// KindPermanent covers rejections the pipeline will repeat on every
	// attempt: invalid topics, upstream auth failures, policy violations.
	KindPermanent
)

func (k Kind) String() string {
	if k == KindPermanent {
		return "permanent"
	}
	return "transient"
}

// Decision is the outcome of consulting the policy after a failure.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Abort is the terminal decision.
var Abort = Decision{}

// Policy holds the retry parameters. The zero value aborts immediately;
// construct with the configured values.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// Decide returns the action to take after attempt number attempt (1-indexed)
// failed with an error of the given kind. Permanent errors always abort.
// Transient errors retry with exponential backoff, BaseDelay * 2^(attempt-1)
// capped at MaxDelay, until MaxAttempts is reached.
func (p Policy) Decide(kind Kind, attempt int) Decision {
	if kind == KindPermanent {
		return Abort
	}
	if attempt >= p.MaxAttempts {
		return Abort
	}

	delay := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return Decision{Retry: true, Delay: delay}
}
