// Package retry wraps sethvargo/go-retry with the backoff policy used for
// every upstream call: exponential backoff with jitter and a delay cap,
// short-circuiting on client-class errors.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studygroup-tracker/internal/constants"

	"github.com/sethvargo/go-retry"
)

// statusCoder is implemented by errors that carry an HTTP-like status.
// Any 4xx status marks the error permanent: retrying a client error will
// never succeed.
type statusCoder interface {
	StatusCode() int
}

// IsClientError reports whether any error in the chain carries a 4xx
// status code.
func IsClientError(err error) bool {
	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		return code >= 400 && code < 500
	}
	return false
}

type options struct {
	maxRetries uint64
	baseDelay  time.Duration
	maxDelay   time.Duration
	maxJitter  time.Duration
}

type Option func(*options)

func WithMaxRetries(n uint64) Option {
	return func(o *options) { o.maxRetries = n }
}

func WithBaseDelay(d time.Duration) Option {
	return func(o *options) { o.baseDelay = d }
}

func WithMaxDelay(d time.Duration) Option {
	return func(o *options) { o.maxDelay = d }
}

func WithMaxJitter(d time.Duration) Option {
	return func(o *options) { o.maxJitter = d }
}

// Do invokes fn until it succeeds, returns a client-class error, or the
// retry budget is exhausted. Exhaustion wraps the last error so callers
// can tell a retried failure from a single-shot one.
func Do[T any](ctx context.Context, fn func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	o := &options{
		maxRetries: constants.RetryMaxAttempts,
		baseDelay:  constants.RetryBaseDelay,
		maxDelay:   constants.RetryMaxDelay,
		maxJitter:  constants.RetryMaxJitter,
	}
	for _, opt := range opts {
		opt(o)
	}

	backoff := retry.NewExponential(o.baseDelay)
	if o.maxJitter > 0 {
		backoff = retry.WithJitter(o.maxJitter, backoff)
	}
	backoff = retry.WithCappedDuration(o.maxDelay, backoff)
	backoff = retry.WithMaxRetries(o.maxRetries, backoff)

	var result T
	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		r, err := fn(ctx)
		if err != nil {
			if IsClientError(err) {
				return err // permanent, no retry
			}
			return retry.RetryableError(err)
		}
		result = r
		return nil
	})
	if err != nil {
		if !IsClientError(err) && attempts > 1 {
			return result, fmt.Errorf("failed after %d attempts: %w", attempts, err)
		}
		return result, err
	}
	return result, nil
}
