package agent

import (
	"context"
	"fmt"

	"github.com/zen-systems/stagegate/pkg/artifact"
)

// MockInvoker returns deterministic responses for local runs and tests.
type MockInvoker struct {
	responses       map[string]string
	defaultResponse string

	// Errs is drained one entry per call before responses are consulted.
	// A nil entry means the call succeeds.
	Errs []error

	calls int
}

// NewMockInvoker creates a mock invoker with a default response.
func NewMockInvoker() *MockInvoker {
	return &MockInvoker{
		responses:       make(map[string]string),
		defaultResponse: "mock response:",
	}
}

// NewMockInvokerWithResponses creates a mock invoker with predefined
// prompt-keyed responses.
func NewMockInvokerWithResponses(responses map[string]string, defaultResponse string) *MockInvoker {
	if defaultResponse == "" {
		defaultResponse = "mock response:"
	}
	return &MockInvoker{responses: responses, defaultResponse: defaultResponse}
}

// Name returns the invoker identifier.
func (a *MockInvoker) Name() string {
	return "mock"
}

// Calls reports how many times Invoke was called.
func (a *MockInvoker) Calls() int {
	return a.calls
}

// Invoke returns a deterministic artifact for the prompt.
func (a *MockInvoker) Invoke(_ context.Context, role string, prompt string, _ TaskContext) (*artifact.Artifact, error) {
	a.calls++

	if len(a.Errs) > 0 {
		err := a.Errs[0]
		a.Errs = a.Errs[1:]
		if err != nil {
			return nil, err
		}
	}

	if role == "" {
		return nil, Permanent(fmt.Errorf("role is required"))
	}

	if response, ok := a.responses[prompt]; ok {
		return artifact.New(response, role, "mock-1", prompt), nil
	}
	content := fmt.Sprintf("%s\n%s", a.defaultResponse, prompt)
	return artifact.New(content, role, "mock-1", prompt), nil
}
