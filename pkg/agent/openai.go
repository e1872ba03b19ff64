package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/zen-systems/stagegate/pkg/artifact"
)

// OpenAIInvoker implements the Invoker interface for OpenAI models.
type OpenAIInvoker struct {
	client openai.Client
	model  string
}

// NewOpenAIInvoker creates a new OpenAI invoker bound to a model.
func NewOpenAIInvoker(apiKey, model string) (*OpenAIInvoker, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if model == "" {
		model = "gpt-5.2-codex"
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIInvoker{client: client, model: model}, nil
}

// Name returns the invoker identifier.
func (a *OpenAIInvoker) Name() string {
	return "openai"
}

// Invoke sends a prompt to OpenAI and returns the response as an artifact.
func (a *OpenAIInvoker) Invoke(ctx context.Context, role string, prompt string, _ TaskContext) (*artifact.Artifact, error) {
	if role == "" {
		return nil, Permanent(fmt.Errorf("role is required"))
	}

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf("You are acting as the %s agent of a development pipeline.", role)),
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(4096),
	})
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			return nil, &AgentError{Status: apierr.StatusCode, Err: err}
		}
		return nil, Transient(fmt.Errorf("openai API error: %w", err))
	}

	if len(resp.Choices) == 0 {
		return nil, Permanent(fmt.Errorf("openai returned no choices"))
	}

	content := resp.Choices[0].Message.Content
	return artifact.New(content, role, a.model, prompt), nil
}
