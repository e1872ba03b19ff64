package task

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/stagegate/pkg/event"
)

// DefaultMaxAttempts is the per-stage retry budget when neither the stage
// definition nor the machine configures one.
const DefaultMaxAttempts = 3

var (
	// ErrAlreadyStarted is returned by Start on a non-pending task.
	ErrAlreadyStarted = errors.New("task already started")

	// ErrRetryLimitExceeded is returned by Retry once the per-stage attempt
	// counter has reached its limit. The task is aborted as a side effect.
	ErrRetryLimitExceeded = errors.New("retry limit exceeded")

	// ErrTerminal is returned for operations on a completed or aborted task.
	ErrTerminal = errors.New("task is terminal")
)

var validTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusStageRunning: true,
		StatusAborted:      true,
	},
	StatusStageRunning: {
		StatusAdvanced:        true,
		StatusStageGateFailed: true,
		StatusAborted:         true,
	},
	StatusAdvanced: {
		StatusStageRunning: true,
		StatusCompleted:    true,
		StatusAborted:      true,
	},
	StatusStageGateFailed: {
		StatusStageRunning: true,
		StatusAborted:      true,
	},
}

// Machine drives one task through its lifecycle. It is the only component
// permitted to mutate the task's status, stage index and log. One machine per
// task; not safe for concurrent use.
type Machine struct {
	task        *Task
	stageCount  int
	maxAttempts int
	notify      func(event.Event)
	logger      *zap.Logger
}

// MachineOption customizes a Machine.
type MachineOption func(*Machine)

// WithMaxAttempts sets the default per-stage retry budget.
func WithMaxAttempts(n int) MachineOption {
	return func(m *Machine) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithNotify sets the callback receiving state-transition and attempt events.
func WithNotify(fn func(event.Event)) MachineOption {
	return func(m *Machine) {
		if fn != nil {
			m.notify = fn
		}
	}
}

// WithMachineLogger sets the logger.
func WithMachineLogger(logger *zap.Logger) MachineOption {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMachine wraps a task. stageCount is the length of the stage registry the
// task runs against; it decides when an advancing task is complete.
func NewMachine(t *Task, stageCount int, opts ...MachineOption) *Machine {
	if t.AttemptCounts == nil {
		t.AttemptCounts = make(map[int]int)
	}
	m := &Machine{
		task:        t,
		stageCount:  stageCount,
		maxAttempts: DefaultMaxAttempts,
		notify:      func(event.Event) {},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Task returns the underlying task. Callers outside this package must treat
// it as read-only.
func (m *Machine) Task() *Task {
	return m.task
}

// Start moves a pending task to stage_running at stage index zero.
func (m *Machine) Start() error {
	if m.task.Status != StatusPending {
		return fmt.Errorf("%w: status is %s", ErrAlreadyStarted, m.task.Status)
	}
	m.task.StageIndex = 0
	if err := m.transition(StatusStageRunning); err != nil {
		return err
	}
	m.notify(event.Event{
		Type:   event.TypeTaskStarted,
		TaskID: m.task.ID,
	})
	return nil
}

// RecordAttempt appends an attempt to the task log; the log is append-only
// and never rewritten. A passing attempt advances the task to the next stage
// or completes it; a failing one parks it in stage_gate_failed.
func (m *Machine) RecordAttempt(a Attempt) error {
	if m.task.Status != StatusStageRunning {
		return fmt.Errorf("cannot record attempt in status %s", m.task.Status)
	}

	a.StageIndex = m.task.StageIndex
	m.task.AttemptCounts[a.StageIndex]++
	a.Number = m.task.AttemptCounts[a.StageIndex]
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	m.task.Log = append(m.task.Log, a)

	outcome := "fail"
	if a.Passed() {
		outcome = "pass"
	}
	m.notify(event.Event{
		Type:    event.TypeAttemptRecorded,
		TaskID:  m.task.ID,
		Stage:   a.Stage,
		Attempt: a.Number,
		Outcome: outcome,
	})
	m.logger.Info("attempt recorded",
		zap.String("task_id", m.task.ID),
		zap.String("stage", a.Stage),
		zap.Int("attempt", a.Number),
		zap.String("outcome", outcome),
	)

	if !a.Passed() {
		return m.transition(StatusStageGateFailed)
	}

	if err := m.transition(StatusAdvanced); err != nil {
		return err
	}
	if a.StageIndex == m.stageCount-1 {
		if err := m.transition(StatusCompleted); err != nil {
			return err
		}
		m.notify(event.Event{
			Type:   event.TypeTaskCompleted,
			TaskID: m.task.ID,
			Stage:  a.Stage,
		})
		return nil
	}

	m.task.StageIndex++
	return m.transition(StatusStageRunning)
}

// Retry moves a gate-failed task back to stage_running at the same stage
// index. limit overrides the default per-stage budget when positive. Once the
// stage's attempt counter has reached the limit the task is aborted with
// reason gate_exhausted and ErrRetryLimitExceeded is returned.
func (m *Machine) Retry(limit int) error {
	if m.task.Status != StatusStageGateFailed {
		return fmt.Errorf("cannot retry in status %s", m.task.Status)
	}
	if limit <= 0 {
		limit = m.maxAttempts
	}
	if m.task.Attempts(m.task.StageIndex) >= limit {
		if err := m.abort(ReasonGateExhausted); err != nil {
			return err
		}
		return fmt.Errorf("%w: stage %d used %d attempts", ErrRetryLimitExceeded, m.task.StageIndex, limit)
	}
	return m.transition(StatusStageRunning)
}

// Abort force-transitions any non-terminal task to aborted. Irreversible.
func (m *Machine) Abort(reason AbortReason) error {
	if m.task.Status.Terminal() {
		return fmt.Errorf("%w: status is %s", ErrTerminal, m.task.Status)
	}
	return m.abort(reason)
}

func (m *Machine) abort(reason AbortReason) error {
	m.task.Reason = reason
	if err := m.transition(StatusAborted); err != nil {
		return err
	}
	m.notify(event.Event{
		Type:    event.TypeTaskAborted,
		TaskID:  m.task.ID,
		Outcome: string(reason),
	})
	return nil
}

func (m *Machine) transition(to Status) error {
	from := m.task.Status
	if !validTransitions[from][to] {
		return fmt.Errorf("invalid transition %s -> %s", from, to)
	}
	m.task.Status = to
	m.task.UpdatedAt = time.Now().UTC()

	m.notify(event.Event{
		Type:    event.TypeStateChanged,
		TaskID:  m.task.ID,
		Attempt: m.task.Attempts(m.task.StageIndex),
		Outcome: string(to),
		Data:    map[string]any{"from": string(from), "stage_index": m.task.StageIndex},
	})
	m.logger.Debug("task transition",
		zap.String("task_id", m.task.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("stage_index", m.task.StageIndex),
	)
	return nil
}
