// Package orchestrator drives tasks through the stage registry, invoking
// agents, evaluating gates and applying retry policy.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zen-systems/stagegate/pkg/agent"
	"github.com/zen-systems/stagegate/pkg/event"
	"github.com/zen-systems/stagegate/pkg/gate"
	"github.com/zen-systems/stagegate/pkg/journal"
	"github.com/zen-systems/stagegate/pkg/registry"
	"github.com/zen-systems/stagegate/pkg/repair"
	"github.com/zen-systems/stagegate/pkg/store"
	"github.com/zen-systems/stagegate/pkg/task"
)

// ErrSkippableAudit is returned when any configuration reaching the
// orchestrator marks an audit stage skippable. The audit stage is mandatory;
// this is a policy invariant, not an option.
var ErrSkippableAudit = errors.New("audit stage must not be skippable")

// Orchestrator executes tasks against an immutable stage registry. It never
// mutates task state directly; all transitions go through the task machine.
type Orchestrator struct {
	reg            *registry.Registry
	invokers       map[string]agent.Invoker
	evaluator      *gate.Evaluator
	bus            *event.Bus
	index          *store.Store
	journalDir     string
	maxAttempts    int
	invokerTimeout time.Duration
	logger         *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithBus sets the event bus receiving attempt, transition and finalize
// events.
func WithBus(bus *event.Bus) Option {
	return func(o *Orchestrator) {
		if bus != nil {
			o.bus = bus
		}
	}
}

// WithStore persists task state after every transition.
func WithStore(s *store.Store) Option {
	return func(o *Orchestrator) { o.index = s }
}

// WithJournalDir writes the append-only attempt journal under dir.
func WithJournalDir(dir string) Option {
	return func(o *Orchestrator) { o.journalDir = dir }
}

// WithMaxAttempts sets the default per-stage retry budget.
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithInvokerTimeout bounds a single agent invocation.
func WithInvokerTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.invokerTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New validates the wiring and constructs an Orchestrator. Every stage role
// must have an invoker, and no audit stage may be skippable.
func New(reg *registry.Registry, invokers map[string]agent.Invoker, evaluator *gate.Evaluator, opts ...Option) (*Orchestrator, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}

	for _, def := range reg.Stages() {
		if def.Role == registry.RoleAudit && def.Skippable {
			return nil, fmt.Errorf("%w: stage %q", ErrSkippableAudit, def.Name)
		}
		if _, ok := invokers[def.Role]; !ok {
			return nil, fmt.Errorf("no invoker configured for role %q (stage %q)", def.Role, def.Name)
		}
	}

	o := &Orchestrator{
		reg:            reg,
		invokers:       invokers,
		evaluator:      evaluator,
		bus:            event.NewBus(0),
		maxAttempts:    task.DefaultMaxAttempts,
		invokerTimeout: 60 * time.Second,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run drives one task to completion or abortion. Task-level failures (gate
// exhaustion, permanent agent errors, cancellation) are absorbed into the
// task's terminal state; only process-level faults return an error.
func (o *Orchestrator) Run(ctx context.Context, t *task.Task) error {
	m := task.NewMachine(t, o.reg.Len(),
		task.WithMaxAttempts(o.maxAttempts),
		task.WithNotify(o.bus.Publish),
		task.WithMachineLogger(o.logger),
	)

	var jw *journal.Writer
	if o.journalDir != "" {
		var err error
		jw, err = journal.NewWriter(o.journalDir, t.ID)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
	}

	if err := m.Start(); err != nil {
		return err
	}
	o.persist(t, jw)

	priorArtifacts := make(map[string]StageArtifact)
	feedback := ""
	lastFailedHash := ""

	for !t.Status.Terminal() {
		if ctx.Err() != nil {
			if err := m.Abort(task.ReasonCancelled); err != nil {
				return err
			}
			o.persist(t, jw)
			return nil
		}

		def, err := o.reg.StageAt(t.StageIndex)
		if err != nil {
			return err
		}
		if def.Role == registry.RoleAudit && def.Skippable {
			return fmt.Errorf("%w: stage %q", ErrSkippableAudit, def.Name)
		}

		prompt := feedback
		if prompt == "" {
			prompt, err = renderPrompt(def.Prompt, t.Description, priorArtifacts)
			if err != nil {
				return fmt.Errorf("render prompt for stage %s: %w", def.Name, err)
			}
		}

		tc := agent.TaskContext{
			TaskID:      t.ID,
			Stage:       def.Name,
			Attempt:     t.Attempts(t.StageIndex) + 1,
			Description: t.Description,
		}

		invCtx, cancel := context.WithTimeout(ctx, o.invokerTimeout)
		art, invErr := o.invokers[def.Role].Invoke(invCtx, def.Role, prompt, tc)
		cancel()

		if invErr != nil {
			if err := m.RecordAttempt(task.Attempt{Stage: def.Name, Prompt: prompt, InvokeError: invErr.Error()}); err != nil {
				return err
			}
			o.journalAttempt(jw, t)

			if !agent.IsTransient(invErr) && !errors.Is(invErr, context.Canceled) {
				// Permanent rejection: the agent cannot serve this stage at
				// all, so retrying is pointless.
				if err := m.Abort(task.ReasonAgentRejected); err != nil {
					return err
				}
				o.persist(t, jw)
				return nil
			}

			// Transient budget already spent inside the invoker; treat
			// the attempt as a failed gate and apply retry policy. Pending
			// repair feedback stays queued for the next attempt.
			if err := o.applyRetryPolicy(m, def); err != nil {
				return err
			}
			o.persist(t, jw)
			continue
		}

		art = art.WithMetadata("stage", def.Name)
		result := o.evaluator.Evaluate(ctx, def.Name, def.Gate, art)

		if err := m.RecordAttempt(task.Attempt{Stage: def.Name, Prompt: prompt, Artifact: art, Gate: &result}); err != nil {
			return err
		}
		o.journalAttempt(jw, t)

		if result.Passed() {
			priorArtifacts[def.Name] = StageArtifact{Text: art.Content, Output: art.Content, Hash: art.Hash}
			feedback = ""
			lastFailedHash = ""
			if t.Status == task.StatusCompleted {
				o.finalize(t, def.Name)
			}
		} else {
			if art.Hash == lastFailedHash {
				feedback = repair.GenerateEscalationPrompt(art, result)
			} else {
				feedback = repair.GeneratePrompt(art, result)
			}
			lastFailedHash = art.Hash
			if err := o.applyRetryPolicy(m, def); err != nil {
				return err
			}
		}

		o.persist(t, jw)
	}

	return nil
}

// RunAll executes tasks concurrently, one worker per task, at most limit at a
// time (unlimited when limit is zero). Tasks share only the read-only
// registry.
func (o *Orchestrator) RunAll(ctx context.Context, tasks []*task.Task, limit int) error {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, t := range tasks {
		g.Go(func() error {
			return o.Run(ctx, t)
		})
	}
	return g.Wait()
}

// applyRetryPolicy retries the current stage or lets the machine abort the
// task once the budget is spent. Exhaustion is a task outcome, not an error.
func (o *Orchestrator) applyRetryPolicy(m *task.Machine, def registry.StageDefinition) error {
	err := m.Retry(def.MaxAttempts)
	if err == nil || errors.Is(err, task.ErrRetryLimitExceeded) {
		return nil
	}
	return err
}

// finalize hands the completed task's final artifact to the external commit
// collaborator. By construction this can only run after every stage's gate,
// the audit gate included, has passed.
func (o *Orchestrator) finalize(t *task.Task, stage string) {
	final := t.Log[len(t.Log)-1]
	data := map[string]any{}
	if final.Artifact != nil {
		data["artifact_hash"] = final.Artifact.Hash
		data["content"] = final.Artifact.Content
	}
	o.bus.Publish(event.Event{
		Type:    event.TypeTaskFinalized,
		TaskID:  t.ID,
		Stage:   stage,
		Outcome: "finalized",
		Data:    data,
	})
	o.logger.Info("task finalized",
		zap.String("task_id", t.ID),
		zap.String("stage", stage),
	)
}

func (o *Orchestrator) persist(t *task.Task, jw *journal.Writer) {
	if o.index != nil {
		if err := o.index.Save(t); err != nil {
			o.logger.Error("persist task", zap.String("task_id", t.ID), zap.Error(err))
		}
	}
	if jw != nil {
		if err := jw.WriteTask(t); err != nil {
			o.logger.Error("journal task", zap.String("task_id", t.ID), zap.Error(err))
		}
	}
}

func (o *Orchestrator) journalAttempt(jw *journal.Writer, t *task.Task) {
	if jw == nil || len(t.Log) == 0 {
		return
	}
	position := len(t.Log)
	if err := jw.AppendAttempt(position, t.Log[position-1]); err != nil {
		o.logger.Error("journal attempt", zap.String("task_id", t.ID), zap.Error(err))
	}
}
