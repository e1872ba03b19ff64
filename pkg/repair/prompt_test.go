package repair

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zen-systems/stagegate/pkg/artifact"
	"github.com/zen-systems/stagegate/pkg/gate"
)

func TestGeneratePromptIncludesFailuresAndOriginal(t *testing.T) {
	art := artifact.New("func main() {", "coding", "mock-1", "p")
	result := gate.StageResult{
		Stage: "coding",
		Checks: []gate.CheckResult{
			{Check: "syntax", Passed: false, Detail: "unexpected EOF"},
			{Check: "format", Passed: true},
			{Check: "coverage", Passed: false, Value: 61, Threshold: 80, Detail: "coverage 61.0 below threshold 80.0"},
		},
	}

	prompt := GeneratePrompt(art, result)

	assert.Contains(t, prompt, "func main() {")
	assert.Contains(t, prompt, "syntax: unexpected EOF")
	assert.Contains(t, prompt, "Measured 61.0, required at least 80.0")
	assert.NotContains(t, prompt, "format:", "passing checks are not echoed back")
}

func TestGeneratePromptHandlesMissingArtifact(t *testing.T) {
	result := gate.StageResult{Checks: []gate.CheckResult{{Check: "invocation", Detail: "agent timed out"}}}
	prompt := GeneratePrompt(nil, result)
	assert.Contains(t, prompt, "invocation: agent timed out")
}

func TestEscalationPromptDemandsChange(t *testing.T) {
	art := artifact.New("same output", "coding", "mock-1", "p")
	result := gate.StageResult{Checks: []gate.CheckResult{{Check: "selftest", Detail: "smoke run failed"}}}

	prompt := GenerateEscalationPrompt(art, result)

	assert.Contains(t, prompt, "Do NOT repeat the previous output")
	assert.Contains(t, prompt, "same output")
}
