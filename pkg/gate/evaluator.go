package gate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/stagegate/pkg/artifact"
)

// DefaultCheckTimeout bounds a single checker invocation.
const DefaultCheckTimeout = 2 * time.Minute

// Factory builds a Checker from its spec. Registering a factory for a new
// kind adds a check family without touching the orchestrator.
type Factory func(spec CheckSpec) (Checker, error)

// Evaluator dispatches a stage's gate spec to pluggable checkers. It holds no
// per-evaluation state: evaluating the same artifact against the same spec
// twice yields identical results.
type Evaluator struct {
	factories map[Kind]Factory
	timeout   time.Duration
	logger    *zap.Logger
}

// EvaluatorOption customizes an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithCheckTimeout sets the per-checker timeout.
func WithCheckTimeout(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithEvaluatorLogger sets the logger.
func WithEvaluatorLogger(logger *zap.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEvaluator creates an Evaluator with the built-in checker kinds
// registered.
func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		factories: make(map[Kind]Factory),
		timeout:   DefaultCheckTimeout,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	commandFactory := func(spec CheckSpec) (Checker, error) {
		if len(spec.Command) == 0 {
			return nil, fmt.Errorf("check %s requires a command", spec.Name)
		}
		return &toolchainChecker{commandChecker{spec: spec}}, nil
	}
	e.Register(KindSyntax, commandFactory)
	e.Register(KindDependencies, commandFactory)
	e.Register(KindSelfTest, commandFactory)
	e.Register(KindFormat, func(spec CheckSpec) (Checker, error) {
		if len(spec.Command) == 0 {
			return nil, fmt.Errorf("check %s requires a command", spec.Name)
		}
		return &formatChecker{commandChecker{spec: spec}}, nil
	})
	e.Register(KindCoverage, func(spec CheckSpec) (Checker, error) {
		if len(spec.Command) == 0 {
			return nil, fmt.Errorf("check %s requires a command", spec.Name)
		}
		if spec.Threshold <= 0 {
			return nil, fmt.Errorf("check %s requires a positive threshold", spec.Name)
		}
		return &coverageChecker{commandChecker{spec: spec}}, nil
	})

	return e
}

// Register adds or replaces the factory for a checker kind.
func (e *Evaluator) Register(kind Kind, f Factory) {
	e.factories[kind] = f
}

// Evaluate runs every check in the spec against the artifact. Checker faults
// (unknown kind, construction failure, panic, timeout) become failed results
// with Fault set; they never escape as errors. All checks run regardless of
// earlier failures so diagnostics are complete.
func (e *Evaluator) Evaluate(ctx context.Context, stage string, spec Spec, art *artifact.Artifact) StageResult {
	result := StageResult{Stage: stage, Checks: make([]CheckResult, 0, len(spec.Checks))}

	for _, cs := range spec.Checks {
		result.Checks = append(result.Checks, e.runCheck(ctx, cs, art))
	}

	for _, c := range result.Checks {
		e.logger.Debug("gate check evaluated",
			zap.String("stage", stage),
			zap.String("check", c.Check),
			zap.Bool("passed", c.Passed),
			zap.Bool("fault", c.Fault),
		)
	}

	return result
}

func (e *Evaluator) runCheck(ctx context.Context, cs CheckSpec, art *artifact.Artifact) (result CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			result = faultResult(cs, fmt.Errorf("checker panic: %v", r))
		}
	}()

	factory, ok := e.factories[cs.Kind]
	if !ok {
		return faultResult(cs, fmt.Errorf("unknown check kind %q", cs.Kind))
	}

	checker, err := factory(cs)
	if err != nil {
		return faultResult(cs, err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result = checker.Run(checkCtx, art)
	if checkCtx.Err() != nil && !result.Passed && !result.Fault {
		result.Fault = true
		result.Detail = firstNonEmpty(result.Detail, "check timed out")
	}
	return result
}
