package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// AgentError wraps provider errors with status metadata.
type AgentError struct {
	Status    int
	Temporary bool
	Err       error
}

func (e *AgentError) Error() string {
	if e == nil {
		return "agent error"
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("agent error (status=%d)", e.Status)
}

func (e *AgentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Transient wraps err as a retryable agent error.
func Transient(err error) *AgentError {
	return &AgentError{Temporary: true, Err: err}
}

// Permanent wraps err as a non-retryable agent error.
func Permanent(err error) *AgentError {
	return &AgentError{Temporary: false, Err: err}
}

// IsTransient reports whether an error is safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		if agentErr.Temporary {
			return true
		}
		if agentErr.Status == 429 || (agentErr.Status >= 500 && agentErr.Status <= 599) {
			return true
		}
	}
	return false
}
