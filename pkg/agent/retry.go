package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/stagegate/pkg/artifact"
)

// Retry defaults mirror the upstream client policy: three calls with
// exponential backoff clamped between two and ten seconds.
const (
	DefaultRetryAttempts = 3
	DefaultRetryMinWait  = 2 * time.Second
	DefaultRetryMaxWait  = 10 * time.Second
)

// RetryingInvoker retries transient failures of the wrapped invoker with
// exponential backoff. Permanent errors are returned immediately.
type RetryingInvoker struct {
	next     Invoker
	attempts int
	minWait  time.Duration
	maxWait  time.Duration
	logger   *zap.Logger
}

// RetryOption customizes a RetryingInvoker.
type RetryOption func(*RetryingInvoker)

// WithAttempts sets the total number of invocation attempts.
func WithAttempts(n int) RetryOption {
	return func(r *RetryingInvoker) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithBackoff sets the backoff window.
func WithBackoff(min, max time.Duration) RetryOption {
	return func(r *RetryingInvoker) {
		if min > 0 {
			r.minWait = min
		}
		if max >= min {
			r.maxWait = max
		}
	}
}

// WithLogger sets the logger used for retry reporting.
func WithLogger(logger *zap.Logger) RetryOption {
	return func(r *RetryingInvoker) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRetryingInvoker wraps next with transient-error retries.
func NewRetryingInvoker(next Invoker, opts ...RetryOption) *RetryingInvoker {
	r := &RetryingInvoker{
		next:     next,
		attempts: DefaultRetryAttempts,
		minWait:  DefaultRetryMinWait,
		maxWait:  DefaultRetryMaxWait,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the wrapped invoker's identifier.
func (r *RetryingInvoker) Name() string {
	return r.next.Name()
}

// Invoke calls the wrapped invoker, retrying transient errors until the
// attempt budget is spent. The last error is returned on exhaustion.
func (r *RetryingInvoker) Invoke(ctx context.Context, role string, prompt string, tc TaskContext) (*artifact.Artifact, error) {
	var lastErr error
	wait := r.minWait

	for attempt := 1; attempt <= r.attempts; attempt++ {
		art, err := r.next.Invoke(ctx, role, prompt, tc)
		if err == nil {
			return art, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return nil, err
		}
		if attempt == r.attempts {
			break
		}

		r.logger.Warn("transient agent error, retrying",
			zap.String("invoker", r.next.Name()),
			zap.String("role", role),
			zap.String("task_id", tc.TaskID),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > r.maxWait {
			wait = r.maxWait
		}
	}

	return nil, lastErr
}
