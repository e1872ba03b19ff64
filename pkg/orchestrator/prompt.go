package orchestrator

import (
	"strings"
	"text/template"
)

// StageArtifact exposes a prior stage's output to prompt templates.
type StageArtifact struct {
	Text   string
	Output string
	Hash   string
}

// renderPrompt executes a stage's prompt template against the task
// description and the artifacts of prior successful stages.
func renderPrompt(prompt string, description string, artifacts map[string]StageArtifact) (string, error) {
	data := map[string]any{
		"Description": description,
		"description": description,
		"Artifacts":   artifacts,
		"artifacts":   artifacts,
	}

	tmpl, err := template.New("prompt").Parse(prompt)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
