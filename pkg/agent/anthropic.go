package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/zen-systems/stagegate/pkg/artifact"
)

// AnthropicInvoker implements the Invoker interface for Claude models.
type AnthropicInvoker struct {
	client anthropic.Client
	model  string
}

// NewAnthropicInvoker creates a new Anthropic invoker bound to a model.
func NewAnthropicInvoker(apiKey, model string) (*AnthropicInvoker, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicInvoker{client: client, model: model}, nil
}

// Name returns the invoker identifier.
func (a *AnthropicInvoker) Name() string {
	return "anthropic"
}

// Invoke sends a prompt to Claude and returns the response as an artifact.
func (a *AnthropicInvoker) Invoke(ctx context.Context, role string, prompt string, _ TaskContext) (*artifact.Artifact, error) {
	if role == "" {
		return nil, Permanent(fmt.Errorf("role is required"))
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: fmt.Sprintf("You are acting as the %s agent of a development pipeline.", role)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apierr *anthropic.Error
		if errors.As(err, &apierr) {
			return nil, &AgentError{Status: apierr.StatusCode, Err: err}
		}
		return nil, Transient(fmt.Errorf("anthropic API error: %w", err))
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return artifact.New(content, role, a.model, prompt), nil
}
