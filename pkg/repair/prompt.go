// Package repair builds follow-up prompts that feed gate diagnostics back to
// the agent before a retry.
package repair

import (
	"fmt"
	"strings"

	"github.com/zen-systems/stagegate/pkg/artifact"
	"github.com/zen-systems/stagegate/pkg/gate"
)

// GeneratePrompt creates a prompt asking the agent to fix gate failures in
// its previous output.
func GeneratePrompt(original *artifact.Artifact, result gate.StageResult) string {
	var sb strings.Builder

	sb.WriteString("The following output failed quality checks:\n\n")
	sb.WriteString("---\n")
	if original != nil {
		sb.WriteString(original.Content)
	}
	sb.WriteString("\n---\n\n")

	sb.WriteString("Failed checks:\n")
	for _, c := range result.Failures() {
		detail := c.Detail
		if detail == "" {
			detail = "check did not pass"
		}
		sb.WriteString(fmt.Sprintf("- %s: %s\n", c.Check, detail))
		if c.Threshold > 0 {
			sb.WriteString(fmt.Sprintf("  Measured %.1f, required at least %.1f.\n", c.Value, c.Threshold))
		}
	}

	sb.WriteString("\nPlease fix all issues and provide the corrected output.")

	return sb.String()
}

// GenerateEscalationPrompt creates a stronger prompt once retries keep
// producing the same failing output.
func GenerateEscalationPrompt(original *artifact.Artifact, result gate.StageResult) string {
	var sb strings.Builder

	sb.WriteString("The previous outputs are repeating and failed quality checks.\n")
	sb.WriteString("Do NOT repeat the previous output; change the approach.\n\n")

	sb.WriteString("Failed checks:\n")
	for _, c := range result.Failures() {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", c.Check, c.Detail))
	}

	sb.WriteString("\nPrevious output:\n---\n")
	if original != nil {
		sb.WriteString(original.Content)
	}
	sb.WriteString("\n---\n")
	sb.WriteString("\nProvide a corrected output that addresses the issues above.\n")

	return sb.String()
}
