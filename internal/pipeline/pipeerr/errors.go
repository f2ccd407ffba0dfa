// Package pipeerr classifies pipeline failures for the retry policy. It is a
// leaf package so every provider implementation can wrap its errors here
// without importing the provider factory.
package pipeerr

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/draftsmith/internal/retry"
)

// TransientError marks a pipeline failure worth retrying.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient pipeline error: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a pipeline failure that will repeat on every attempt.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent pipeline error: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error { return &TransientError{Err: err} }

// Permanent wraps err as terminal.
func Permanent(err error) error { return &PermanentError{Err: err} }

// Classify maps a pipeline error to a retry kind. Context deadline and
// cancellation count as transient (a hung invocation cut off by the
// per-attempt timeout may succeed on retry). Unwrapped errors default to
// transient so an unclassified infrastructure failure is never fatal on the
// first attempt.
func Classify(err error) retry.Kind {
	var perm *PermanentError
	if errors.As(err, &perm) {
		return retry.KindPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return retry.KindTransient
	}
	return retry.KindTransient
}
