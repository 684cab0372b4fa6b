package executor

import (
	"context"
	"errors"
	"time"

	"github.com/voidlabs/voidbot/internal/domain"
)

// failureClass buckets submission errors by how the retry loop should react.
type failureClass int

const (
	// classFatal errors can never succeed on retry.
	classFatal failureClass = iota
	// classRateLimited errors back off exponentially.
	classRateLimited
	// classTransient errors retry after a short fixed delay.
	classTransient
)

// classify maps a submission error to its failure class.
func classify(err error) failureClass {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInvalidOrder),
		errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, context.Canceled):
		return classFatal
	case errors.Is(err, domain.ErrRateLimited):
		return classRateLimited
	default:
		return classTransient
	}
}

// Policy bounds the retry loop.
type Policy struct {
	// MaxAttempts is the total number of submission tries, including the
	// first one.
	MaxAttempts int
	// BaseBackoff is doubled per attempt for rate-limited failures.
	BaseBackoff time.Duration
	// TransientDelay is the fixed wait for other retryable failures.
	TransientDelay time.Duration
}

// DefaultPolicy matches the production retry budget.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseBackoff:    time.Second,
		TransientDelay: 500 * time.Millisecond,
	}
}

// delay returns how long to wait before the NEXT attempt, given the class of
// the failure on attempt (1-based).
func (p Policy) delay(class failureClass, attempt int) time.Duration {
	switch class {
	case classRateLimited:
		// 2^attempt growth: 2x base after the first attempt, 4x after the
		// second, and so on.
		return p.BaseBackoff << attempt
	case classTransient:
		return p.TransientDelay
	default:
		return 0
	}
}

// sleep waits d unless the context finishes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
