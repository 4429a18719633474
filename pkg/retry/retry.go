// Package retry is the single retry policy for outbound calls, parameterized
// by an explicit idempotency classification. Idempotent reads may be retried
// with exponential backoff on transient failures; unsafe writes run exactly
// once, because blind retry of a payment-initiating or order-creating call
// risks duplicate side effects.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
)

// Class classifies an operation for retry purposes.
type Class int

const (
	// ReadIdempotent marks safe-to-retry reads: repeated execution has no
	// additional effect.
	ReadIdempotent Class = iota
	// WriteUnsafe marks operations that must not be retried automatically.
	// Retry there is a deliberate user action.
	WriteUnsafe
)

// transientError marks a failure as retryable (transport errors and
// 5xx-class responses).
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err to mark it as retryable. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Policy executes operations according to their classification.
type Policy struct {
	maxAttempts     uint64
	initialInterval time.Duration
}

// NewPolicy returns the default policy: up to 3 attempts for idempotent
// reads, exponential backoff starting at 200ms.
func NewPolicy() *Policy {
	return &Policy{maxAttempts: 3, initialInterval: 200 * time.Millisecond}
}

// Do runs op under the policy for the given class. WriteUnsafe operations
// execute exactly once regardless of the error. ReadIdempotent operations
// are re-run on transient errors only, up to the attempt budget.
func (p *Policy) Do(ctx context.Context, class Class, op func(ctx context.Context) error) error {
	if class == WriteUnsafe {
		return op(ctx)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialInterval

	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, p.maxAttempts-1), ctx))
}
