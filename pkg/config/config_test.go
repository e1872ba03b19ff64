package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, DefaultInvokerRetries, cfg.InvokerRetries)
	assert.Equal(t, DefaultInvokerTimeout, cfg.InvokerTimeout)
	assert.Equal(t, DefaultCheckTimeout, cfg.CheckTimeout)
	assert.NotEmpty(t, cfg.StorePath)
}

func TestLoadFileValues(t *testing.T) {
	content := `
api_keys:
  anthropic: file-key
pipeline: pipeline.yaml
max_attempts: 5
invoker_timeout: 30s
roles:
  coding:
    invoker: anthropic
    model: claude-sonnet-4-20250514
  audit:
    invoker: openai
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pipeline.yaml", cfg.PipelinePath)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.InvokerTimeout)
	assert.Equal(t, "anthropic", cfg.Roles["coding"].Invoker)
	assert.Equal(t, "openai", cfg.Roles["audit"].Invoker)
}

func TestEnvOverridesFile(t *testing.T) {
	content := `
api_keys:
  anthropic: file-key
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.AnthropicAPIKey)
	assert.True(t, cfg.HasInvoker("anthropic"))
	assert.False(t, cfg.HasInvoker("openai"))
	assert.True(t, cfg.HasInvoker("mock"))
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("invoker_timeout: soon"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
