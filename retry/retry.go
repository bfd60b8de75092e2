// Package retry provides a generic retry decorator with exponential backoff
// and jitter, applied to LLM calls, embedding calls, text-index queries, and
// graph-engine queries.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"time"

	"github.com/trpc-group/compliance-rag/apperr"
	"github.com/trpc-group/compliance-rag/log"
)

// Condition determines whether an error is retryable.
type Condition interface {
	Match(err error) bool
}

// ConditionFunc adapts a plain function to a Condition.
type ConditionFunc func(error) bool

// Match calls f(err).
func (f ConditionFunc) Match(err error) bool { return f(err) }

// Policy configures attempt count, backoff shape, and which errors qualify
// for retry. Attempts are counted inclusive of the first try: MaxAttempts=3
// means one initial try plus up to two retries.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	BackoffFactor   float64
	MaxInterval     time.Duration
	Jitter          bool
	RetryOn         []Condition
}

// NextDelay returns the backoff delay to wait after the given attempt
// number fails, before the next attempt. attempt starts at 1 for the first
// try, so NextDelay(1) starts from InitialInterval.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.InitialInterval)
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 1.0
	}
	if attempt > 1 {
		delay *= math.Pow(factor, float64(attempt-1))
	}
	maxInt := p.MaxInterval
	if maxInt <= 0 {
		maxInt = p.InitialInterval
	}
	if maxInt > 0 {
		delay = math.Min(delay, float64(maxInt))
	}
	d := time.Duration(delay)
	if p.Jitter && d > 0 {
		if n, err := rand.Int(rand.Reader, big.NewInt(int64(d))); err == nil {
			d += time.Duration(n.Int64())
		}
	}
	if d < 0 {
		d = 0
	}
	return d
}

// ShouldRetry reports whether err matches any of the policy's conditions.
func (p Policy) ShouldRetry(err error) bool {
	if len(p.RetryOn) == 0 {
		return false
	}
	for _, cond := range p.RetryOn {
		if cond != nil && cond.Match(err) {
			return true
		}
	}
	return false
}

// OnErrors builds a Condition matching via errors.Is against any of targets.
func OnErrors(targets ...error) Condition {
	return ConditionFunc(func(err error) bool {
		for _, t := range targets {
			if t != nil && errors.Is(err, t) {
				return true
			}
		}
		return false
	})
}

// OnPredicate builds a Condition deferring to match.
func OnPredicate(match func(error) bool) Condition {
	return ConditionFunc(match)
}

// IsTransientNetworkError reports whether err has the common transient
// network shape: a context deadline, or a net.Error reporting timeout or
// temporary failure. Adapters consult this to set apperr.Error.Transient
// on the errors they wrap.
func IsTransientNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return true
		}
		if ne.Temporary() { //nolint:staticcheck // widely implemented despite deprecation
			return true
		}
	}
	return false
}

// DefaultTransientCondition matches context deadline exceeded and net.Error
// timeouts/temporary failures - the common transient-network shape.
func DefaultTransientCondition() Condition {
	return ConditionFunc(IsTransientNetworkError)
}

// TransientAppError matches errors (or wrapped errors) that an adapter
// explicitly marked transient via apperr.New, e.g. using
// IsTransientNetworkError to classify the underlying cause.
func TransientAppError() Condition {
	return ConditionFunc(apperr.IsTransient)
}

// Simple is a convenience constructor for a basic retry policy: exponential
// backoff starting at 200ms, factor 2, capped at 5s, jittered, retrying on
// DefaultTransientCondition or an apperr-marked transient error.
func Simple(attempts int) Policy {
	if attempts < 1 {
		attempts = 1
	}
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: 200 * time.Millisecond,
		BackoffFactor:   2.0,
		MaxInterval:     5 * time.Second,
		Jitter:          true,
		RetryOn:         []Condition{DefaultTransientCondition(), TransientAppError()},
	}
}

// Do executes fn, retrying per policy while ctx remains live. The zero value
// of T is returned alongside the last error if all attempts are exhausted or
// a non-retryable error occurs.
func Do[T any](ctx context.Context, policy Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == maxAttempts || !policy.ShouldRetry(err) {
			return zero, lastErr
		}
		delay := policy.NextDelay(attempt)
		log.Warnf("retry: %s attempt %d/%d failed: %v, retrying in %s", op, attempt, maxAttempts, err, delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// DoErr is Do for operations that report their result through a captured
// outer variable and return only an error - the common shape for wrapping
// an existing typed SDK call without re-declaring its response type here.
func DoErr(ctx context.Context, policy Policy, op string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, policy, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
