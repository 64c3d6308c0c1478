package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/kingrea/pipectx/internal/pipeline"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 3
)

// RetryPolicy bounds every directory call: each attempt gets Timeout, and a
// failing call is attempted at most MaxAttempts times with exponential backoff.
type RetryPolicy struct {
	Timeout         time.Duration
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Timeout <= 0 {
		p.Timeout = defaultTimeout
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = 200 * time.Millisecond
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 2 * time.Second
	}
	return p
}

// Logger records retry diagnostics.
type Logger interface {
	Printf(format string, args ...any)
}

// Retrying decorates a Client with per-call timeouts and bounded retries.
// Failures that survive the policy are wrapped in pipeline.ErrDirectoryQuery.
type Retrying struct {
	next   Client
	policy RetryPolicy
	logger Logger
}

// NewRetrying wraps next with policy. logger may be nil.
func NewRetrying(next Client, policy RetryPolicy, logger Logger) *Retrying {
	return &Retrying{next: next, policy: policy.normalized(), logger: logger}
}

// FindTasks implements Client.
func (r *Retrying) FindTasks(ctx context.Context, project pipeline.ProjectRef, entity *pipeline.EntityRef, step string) ([]pipeline.TaskRef, error) {
	return retry(ctx, r, "find tasks", func(callCtx context.Context) ([]pipeline.TaskRef, error) {
		return r.next.FindTasks(callCtx, project, entity, step)
	})
}

// FindUsers implements Client.
func (r *Retrying) FindUsers(ctx context.Context, ids []int) (map[int]pipeline.UserRef, error) {
	return retry(ctx, r, "find users", func(callCtx context.Context) (map[int]pipeline.UserRef, error) {
		return r.next.FindUsers(callCtx, ids)
	})
}

func retry[T any](ctx context.Context, r *Retrying, op string, call func(context.Context) (T, error)) (T, error) {
	attempts := 0
	operation := func() (T, error) {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, r.policy.Timeout)
		defer cancel()
		value, err := call(callCtx)
		if err == nil {
			return value, nil
		}
		if ctx.Err() != nil {
			return value, backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) && callCtx.Err() != nil {
			err = fmt.Errorf("timed out after %s: %w", r.policy.Timeout, err)
		}
		return value, err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.policy.InitialInterval
	expo.MaxInterval = r.policy.MaxInterval

	value, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if r.logger != nil {
				r.logger.Printf("directory: %s failed (%v), retrying in %s", op, err, wait)
			}
		}),
	)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("directory: %s after %d attempt(s): %w: %w", op, attempts, pipeline.ErrDirectoryQuery, err)
	}
	return value, nil
}
