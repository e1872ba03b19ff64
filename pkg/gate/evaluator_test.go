package gate

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/stagegate/pkg/artifact"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func testArtifact(content string) *artifact.Artifact {
	return artifact.New(content, "coding", "mock-1", "prompt")
}

func TestToolchainCheckerExitCode(t *testing.T) {
	requireShell(t)
	e := NewEvaluator()

	spec := Spec{Checks: []CheckSpec{
		{Name: "parse", Kind: KindSyntax, Command: []string{"sh", "-c", "exit 0"}},
		{Name: "smoke", Kind: KindSelfTest, Command: []string{"sh", "-c", "echo boom >&2; exit 1"}},
	}}

	result := e.Evaluate(context.Background(), "coding", spec, testArtifact("ok"))

	require.Len(t, result.Checks, 2)
	assert.True(t, result.Checks[0].Passed)
	assert.False(t, result.Checks[1].Passed)
	assert.False(t, result.Checks[1].Fault)
	assert.Equal(t, "boom", result.Checks[1].Detail)
	assert.False(t, result.Passed())
}

func TestArtifactPlaceholderSubstitution(t *testing.T) {
	requireShell(t)
	e := NewEvaluator()

	spec := Spec{Checks: []CheckSpec{
		{Name: "deps", Kind: KindDependencies, Command: []string{"grep", "-q", "needle", ArtifactPlaceholder}},
	}}

	pass := e.Evaluate(context.Background(), "coding", spec, testArtifact("hay needle stack"))
	fail := e.Evaluate(context.Background(), "coding", spec, testArtifact("haystack"))

	assert.True(t, pass.Passed())
	assert.False(t, fail.Passed())
}

func TestFormatCheckerCanonicalCompare(t *testing.T) {
	requireShell(t)
	e := NewEvaluator()

	// cat prints the artifact unchanged, so the artifact is its own
	// canonical form and the check passes.
	canonical := Spec{Checks: []CheckSpec{
		{Name: "fmt", Kind: KindFormat, Command: []string{"cat", ArtifactPlaceholder}},
	}}
	result := e.Evaluate(context.Background(), "coding", canonical, testArtifact("tidy\n"))
	assert.True(t, result.Passed())

	// A formatter that emits a different canonical form fails the check.
	rewriting := Spec{Checks: []CheckSpec{
		{Name: "fmt", Kind: KindFormat, Command: []string{"sh", "-c", "printf reformatted"}},
	}}
	result = e.Evaluate(context.Background(), "coding", rewriting, testArtifact("tidy\n"))
	require.False(t, result.Passed())
	assert.Contains(t, result.Checks[0].Detail, "canonical formatting")
}

func TestCoverageCheckerThreshold(t *testing.T) {
	requireShell(t)
	e := NewEvaluator()

	spec := Spec{Checks: []CheckSpec{
		{Name: "coverage", Kind: KindCoverage, Threshold: 80, Command: []string{"sh", "-c", "echo 'coverage: 82.5% of statements'"}},
	}}
	result := e.Evaluate(context.Background(), "testing", spec, testArtifact("code"))
	require.True(t, result.Passed())
	assert.InDelta(t, 82.5, result.Checks[0].Value, 0.001)
	assert.InDelta(t, 80.0, result.Checks[0].Threshold, 0.001)

	spec.Checks[0].Command = []string{"sh", "-c", "echo 'coverage: 61.0% of statements'"}
	result = e.Evaluate(context.Background(), "testing", spec, testArtifact("code"))
	require.False(t, result.Passed())
	assert.Contains(t, result.Checks[0].Detail, "below threshold")
}

func TestCoverageCheckerUnparsableOutputIsFault(t *testing.T) {
	requireShell(t)
	e := NewEvaluator()

	spec := Spec{Checks: []CheckSpec{
		{Name: "coverage", Kind: KindCoverage, Threshold: 80, Command: []string{"sh", "-c", "echo 'no numbers here'"}},
	}}
	result := e.Evaluate(context.Background(), "testing", spec, testArtifact("code"))

	require.Len(t, result.Faults(), 1)
	assert.False(t, result.Passed())
}

func TestCheckTimeoutBoundsHungCommand(t *testing.T) {
	requireShell(t)
	e := NewEvaluator(WithCheckTimeout(200 * time.Millisecond))

	// The backgrounded sleep inherits the output pipes; without a process
	// group kill it would hold the check open for the full five seconds.
	spec := Spec{Checks: []CheckSpec{
		{Name: "hung-suite", Kind: KindSelfTest, Command: []string{"sh", "-c", "sleep 5 & wait"}},
	}}

	start := time.Now()
	result := e.Evaluate(context.Background(), "testing", spec, testArtifact("code"))
	elapsed := time.Since(start)

	require.Len(t, result.Checks, 1)
	assert.False(t, result.Checks[0].Passed)
	assert.True(t, result.Checks[0].Fault)
	assert.Less(t, elapsed, 3*time.Second, "timeout must bound checker wall time")
}

func TestEvaluatorIsolatesCheckerFaults(t *testing.T) {
	e := NewEvaluator()

	spec := Spec{Checks: []CheckSpec{
		{Name: "broken-tool", Kind: KindSyntax, Command: []string{"/nonexistent/toolchain-binary"}},
		{Name: "unknown", Kind: Kind("entropy")},
	}}

	result := e.Evaluate(context.Background(), "coding", spec, testArtifact("ok"))

	require.Len(t, result.Checks, 2)
	for _, c := range result.Checks {
		assert.False(t, c.Passed)
		assert.True(t, c.Fault, "checker faults are failed results, not errors")
	}
	assert.Len(t, result.Faults(), 2)
}

func TestEvaluatorIsIdempotent(t *testing.T) {
	requireShell(t)
	e := NewEvaluator()
	art := testArtifact("hay needle stack")

	spec := Spec{Checks: []CheckSpec{
		{Name: "deps", Kind: KindDependencies, Command: []string{"grep", "-q", "needle", ArtifactPlaceholder}},
		{Name: "coverage", Kind: KindCoverage, Threshold: 80, Command: []string{"sh", "-c", "echo 85.0"}},
	}}

	first := e.Evaluate(context.Background(), "testing", spec, art)
	second := e.Evaluate(context.Background(), "testing", spec, art)

	require.Len(t, second.Checks, len(first.Checks))
	for i := range first.Checks {
		a, b := first.Checks[i], second.Checks[i]
		assert.Equal(t, a.Check, b.Check)
		assert.Equal(t, a.Passed, b.Passed)
		assert.Equal(t, a.Fault, b.Fault)
		assert.Equal(t, a.Value, b.Value)
		assert.Equal(t, a.Threshold, b.Threshold)
		assert.Equal(t, a.Detail, b.Detail)
	}
	assert.Equal(t, first.Passed(), second.Passed())
}

func TestEmptyGatePasses(t *testing.T) {
	e := NewEvaluator()
	result := e.Evaluate(context.Background(), "requirements", Spec{}, testArtifact("notes"))
	assert.True(t, result.Passed())
	assert.Empty(t, result.Checks)
}
