package agent

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/zen-systems/stagegate/pkg/artifact"
)

// GoogleInvoker implements the Invoker interface for Gemini models.
type GoogleInvoker struct {
	client *genai.Client
	model  string
}

// NewGoogleInvoker creates a new Google Gemini invoker bound to a model.
func NewGoogleInvoker(apiKey, model string) (*GoogleInvoker, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}
	if model == "" {
		model = "gemini-2.0-pro"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &GoogleInvoker{client: client, model: model}, nil
}

// Name returns the invoker identifier.
func (a *GoogleInvoker) Name() string {
	return "google"
}

// Invoke sends a prompt to Gemini and returns the response as an artifact.
func (a *GoogleInvoker) Invoke(ctx context.Context, role string, prompt string, _ TaskContext) (*artifact.Artifact, error) {
	if role == "" {
		return nil, Permanent(fmt.Errorf("role is required"))
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(prompt), nil)
	if err != nil {
		var apierr genai.APIError
		if errors.As(err, &apierr) {
			return nil, &AgentError{Status: apierr.Code, Err: err}
		}
		return nil, Transient(fmt.Errorf("google API error: %w", err))
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, Permanent(fmt.Errorf("google returned no candidates"))
	}

	var content string
	if resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				content += part.Text
			}
		}
	}

	return artifact.New(content, role, a.model, prompt), nil
}
