package agent

import (
	"context"

	"github.com/zen-systems/stagegate/pkg/artifact"
)

// TaskContext carries task metadata into an invocation. Invokers treat it as
// opaque; it exists so providers can tag requests and logs can correlate calls.
type TaskContext struct {
	TaskID      string
	Stage       string
	Attempt     int
	Description string
}

// Invoker abstracts calling an external agent capability with a role and a
// rendered prompt. Implementations do not interpret artifact content.
type Invoker interface {
	// Invoke sends the prompt to the agent acting under the given role and
	// returns the produced artifact, or an *AgentError on failure.
	Invoke(ctx context.Context, role string, prompt string, tc TaskContext) (*artifact.Artifact, error)

	// Name returns the invoker's identifier.
	Name() string
}
