package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderConstructorsRequireAPIKey(t *testing.T) {
	_, err := NewAnthropicInvoker("", "")
	assert.Error(t, err)

	_, err = NewOpenAIInvoker("", "")
	assert.Error(t, err)
}

func TestProviderConstructorsBindModel(t *testing.T) {
	a, err := NewAnthropicInvoker("test-key", "claude-x")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", a.Name())
	assert.Equal(t, "claude-x", a.model)

	o, err := NewOpenAIInvoker("test-key", "")
	require.NoError(t, err)
	assert.Equal(t, "openai", o.Name())
	assert.NotEmpty(t, o.model, "default model applies when none is configured")
}
