// Package retry wraps remote calls in a bounded exponential backoff policy
// with a per-call timeout. Every content and directory call on the
// resolution hot path goes through Do; exhaustion surfaces as the last
// attempt's error for the caller to classify.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"sptrace/domain/contracts"
)

// Policy holds the retry budget for remote calls.
type Policy struct {
	MaxRetries   int           // additional attempts after the first
	InitialDelay time.Duration // first backoff interval
	CallTimeout  time.Duration // deadline applied to each individual attempt
}

// DefaultPolicy returns the stock policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   4,
		InitialDelay: 500 * time.Millisecond,
		CallTimeout:  60 * time.Second,
	}
}

// Permanent marks an error as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs fn under the policy. Not-found and unauthorized results are
// answers, not faults, and are never retried. Each attempt gets its own
// timeout derived from ctx.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempt := func() error {
		callCtx := ctx
		if p.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.CallTimeout)
			defer cancel()
		}

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if errors.Is(err, contracts.ErrNotFound) || errors.Is(err, contracts.ErrUnauthorized) {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.MaxRetries)), ctx)

	return backoff.Retry(attempt, policy)
}
