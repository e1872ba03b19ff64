package gate

import (
	"context"

	"github.com/zen-systems/stagegate/pkg/artifact"
)

// Kind identifies a built-in checker family.
type Kind string

const (
	// KindSyntax verifies the artifact parses under the target toolchain.
	KindSyntax Kind = "syntax"
	// KindDependencies verifies every referenced external symbol resolves.
	KindDependencies Kind = "dependencies"
	// KindFormat verifies the artifact matches its canonical formatting.
	KindFormat Kind = "format"
	// KindSelfTest runs a smoke invocation of the artifact.
	KindSelfTest Kind = "selftest"
	// KindCoverage verifies a measured coverage ratio meets a minimum.
	KindCoverage Kind = "coverage"
)

// CheckSpec configures one named check within a stage's gate.
type CheckSpec struct {
	Name      string   `yaml:"name" json:"name"`
	Kind      Kind     `yaml:"kind" json:"kind"`
	Command   []string `yaml:"command,omitempty" json:"command,omitempty"`
	Workdir   string   `yaml:"workdir,omitempty" json:"workdir,omitempty"`
	Threshold float64  `yaml:"threshold,omitempty" json:"threshold,omitempty"`
}

// Spec is the full gate configuration for a stage.
type Spec struct {
	Checks []CheckSpec `yaml:"checks" json:"checks"`
}

// CheckResult is the outcome of evaluating one check against an artifact.
// Fault marks results where the checker itself broke (toolchain crash,
// unknown kind) rather than the artifact failing the check.
type CheckResult struct {
	Check       string              `json:"check"`
	Kind        Kind                `json:"kind"`
	Passed      bool                `json:"passed"`
	Value       float64             `json:"value,omitempty"`
	Threshold   float64             `json:"threshold,omitempty"`
	Detail      string              `json:"detail,omitempty"`
	Fault       bool                `json:"fault,omitempty"`
	Diagnostics *CommandDiagnostics `json:"diagnostics,omitempty"`
}

// StageResult aggregates all check results for one stage gate.
type StageResult struct {
	Stage  string        `json:"stage"`
	Checks []CheckResult `json:"checks"`
}

// Passed reports whether every check passed. Aggregation is all-or-nothing;
// there is no partial credit.
func (r StageResult) Passed() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Failures returns the checks that did not pass.
func (r StageResult) Failures() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// Faults returns the checks that failed because the checker itself errored.
func (r StageResult) Faults() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if c.Fault {
			out = append(out, c)
		}
	}
	return out
}

// Checker is one pluggable unit implementing a named gate check.
type Checker interface {
	// Run evaluates the artifact. Checker-internal failures are reported
	// in the result with Fault set, never as a panic to the caller.
	Run(ctx context.Context, art *artifact.Artifact) CheckResult

	// Name returns the check identifier.
	Name() string
}
