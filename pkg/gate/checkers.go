package gate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/zen-systems/stagegate/pkg/artifact"
)

// ArtifactPlaceholder in a check command is replaced with the path of a
// temporary file holding the artifact content.
const ArtifactPlaceholder = "{artifact}"

// pipeWaitDelay bounds how long Wait may block on output pipes after the
// command's process group has been killed.
const pipeWaitDelay = 2 * time.Second

// CommandDiagnostics captures execution details for a command-backed check.
type CommandDiagnostics struct {
	Command  []string      `json:"command"`
	Workdir  string        `json:"workdir,omitempty"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// commandChecker runs an external toolchain command against the artifact.
// The artifact is written to a temp file; occurrences of {artifact} in the
// command are replaced with its path. This is the toolchain boundary: every
// built-in checker is a thin wrapper over one command invocation.
type commandChecker struct {
	spec CheckSpec
}

func (c *commandChecker) Name() string {
	return c.spec.Name
}

func (c *commandChecker) run(ctx context.Context, art *artifact.Artifact) (*CommandDiagnostics, error) {
	if len(c.spec.Command) == 0 {
		return nil, fmt.Errorf("check %s has no command", c.spec.Name)
	}

	dir, err := os.MkdirTemp("", "stagegate-check-*")
	if err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	defer os.RemoveAll(dir)

	artifactPath := filepath.Join(dir, "artifact")
	if err := os.WriteFile(artifactPath, []byte(art.Content), 0644); err != nil {
		return nil, fmt.Errorf("write artifact: %w", err)
	}

	args := make([]string, len(c.spec.Command))
	for i, a := range c.spec.Command {
		args[i] = strings.ReplaceAll(a, ArtifactPlaceholder, artifactPath)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if c.spec.Workdir != "" {
		cmd.Dir = c.spec.Workdir
	}

	// Checks routinely spawn children (go test, formatters, sh) that inherit
	// the output pipes. Killing only the direct child on deadline would leave
	// Wait blocked on orphans holding the pipes open, so cancel the whole
	// process group and cap the post-kill pipe wait.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = pipeWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("check %s failed to run: %w", c.spec.Name, runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	return &CommandDiagnostics{
		Command:  args,
		Workdir:  c.spec.Workdir,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

// toolchainChecker passes when the command exits zero. Used for syntax
// validity, dependency resolution and executable self-tests.
type toolchainChecker struct {
	commandChecker
}

func (c *toolchainChecker) Run(ctx context.Context, art *artifact.Artifact) CheckResult {
	diag, err := c.run(ctx, art)
	if err != nil {
		return faultResult(c.spec, err)
	}

	result := CheckResult{
		Check:       c.spec.Name,
		Kind:        c.spec.Kind,
		Passed:      diag.ExitCode == 0,
		Diagnostics: diag,
	}
	if !result.Passed {
		result.Detail = firstNonEmpty(
			strings.TrimSpace(diag.Stderr),
			strings.TrimSpace(diag.Stdout),
			fmt.Sprintf("command exited with status %d", diag.ExitCode),
		)
	}
	return result
}

// formatChecker passes when the formatter exits zero and, if the formatter
// printed a canonical form, that form matches the artifact byte for byte.
type formatChecker struct {
	commandChecker
}

func (c *formatChecker) Run(ctx context.Context, art *artifact.Artifact) CheckResult {
	diag, err := c.run(ctx, art)
	if err != nil {
		return faultResult(c.spec, err)
	}

	result := CheckResult{
		Check:       c.spec.Name,
		Kind:        c.spec.Kind,
		Diagnostics: diag,
	}

	switch {
	case diag.ExitCode != 0:
		result.Detail = firstNonEmpty(strings.TrimSpace(diag.Stderr), fmt.Sprintf("formatter exited with status %d", diag.ExitCode))
	case diag.Stdout != "" && diag.Stdout != art.Content:
		result.Detail = "artifact does not match canonical formatting"
	default:
		result.Passed = true
	}
	return result
}

var numberPattern = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)

// coverageChecker parses the last numeric value from the tool output and
// passes when it meets the configured threshold.
type coverageChecker struct {
	commandChecker
}

func (c *coverageChecker) Run(ctx context.Context, art *artifact.Artifact) CheckResult {
	diag, err := c.run(ctx, art)
	if err != nil {
		return faultResult(c.spec, err)
	}

	result := CheckResult{
		Check:       c.spec.Name,
		Kind:        c.spec.Kind,
		Threshold:   c.spec.Threshold,
		Diagnostics: diag,
	}

	if diag.ExitCode != 0 {
		result.Detail = firstNonEmpty(strings.TrimSpace(diag.Stderr), fmt.Sprintf("coverage tool exited with status %d", diag.ExitCode))
		return result
	}

	matches := numberPattern.FindAllString(diag.Stdout, -1)
	if len(matches) == 0 {
		result.Fault = true
		result.Detail = "no coverage value found in tool output"
		return result
	}

	value, parseErr := strconv.ParseFloat(matches[len(matches)-1], 64)
	if parseErr != nil {
		result.Fault = true
		result.Detail = fmt.Sprintf("parse coverage value: %v", parseErr)
		return result
	}

	result.Value = value
	result.Passed = value >= c.spec.Threshold
	if !result.Passed {
		result.Detail = fmt.Sprintf("coverage %.1f below threshold %.1f", value, c.spec.Threshold)
	}
	return result
}

func faultResult(spec CheckSpec, err error) CheckResult {
	return CheckResult{
		Check:     spec.Name,
		Kind:      spec.Kind,
		Threshold: spec.Threshold,
		Fault:     true,
		Detail:    err.Error(),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
