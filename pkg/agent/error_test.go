package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"temporary flag", Transient(errors.New("rate limited")), true},
		{"permanent flag", Permanent(errors.New("bad role")), false},
		{"status 429", &AgentError{Status: 429}, true},
		{"status 503", &AgentError{Status: 503}, true},
		{"status 400", &AgentError{Status: 400}, false},
		{"wrapped transient", fmt.Errorf("invoke: %w", Transient(errors.New("timeout"))), true},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestAgentErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := &AgentError{Status: 500, Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "inner", err.Error())
	assert.Equal(t, "agent error (status=429)", (&AgentError{Status: 429}).Error())
}
