// Package task owns the unit of work flowing through the pipeline and the
// state machine that is the sole writer of its status.
package task

import (
	"time"

	"github.com/google/uuid"

	"github.com/zen-systems/stagegate/pkg/artifact"
	"github.com/zen-systems/stagegate/pkg/gate"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending         Status = "pending"
	StatusStageRunning    Status = "stage_running"
	StatusStageGateFailed Status = "stage_gate_failed"
	StatusAdvanced        Status = "advanced"
	StatusCompleted       Status = "completed"
	StatusAborted         Status = "aborted"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// AbortReason explains why a task was aborted.
type AbortReason string

const (
	// ReasonAgentRejected marks a permanent agent invocation failure.
	ReasonAgentRejected AbortReason = "agent_rejected"
	// ReasonGateExhausted marks a stage whose gate kept failing until the
	// retry budget was spent.
	ReasonGateExhausted AbortReason = "gate_exhausted"
	// ReasonCancelled marks an external cancellation between stages.
	ReasonCancelled AbortReason = "cancelled"
)

// Attempt is one recorded invocation-plus-gate-evaluation for a task at a
// given stage. Immutable once appended to the task log.
type Attempt struct {
	Stage       string             `json:"stage"`
	StageIndex  int                `json:"stage_index"`
	Number      int                `json:"number"`
	Prompt      string             `json:"prompt"`
	Artifact    *artifact.Artifact `json:"artifact,omitempty"`
	Gate        *gate.StageResult  `json:"gate,omitempty"`
	InvokeError string             `json:"invoke_error,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// Passed reports whether the attempt produced an artifact that cleared the
// stage gate.
func (a Attempt) Passed() bool {
	return a.InvokeError == "" && a.Artifact != nil && (a.Gate == nil || a.Gate.Passed())
}

// Task is the unit of work flowing through the pipeline. Its status and log
// are mutated only through Machine transitions; every other component treats
// it as read-only.
type Task struct {
	ID            string      `json:"id"`
	Description   string      `json:"description"`
	StageIndex    int         `json:"stage_index"`
	Status        Status      `json:"status"`
	Reason        AbortReason `json:"reason,omitempty"`
	Log           []Attempt   `json:"log,omitempty"`
	AttemptCounts map[int]int `json:"attempt_counts,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// New creates a pending task.
func New(description string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:            uuid.NewString(),
		Description:   description,
		Status:        StatusPending,
		AttemptCounts: make(map[int]int),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Attempts returns the number of recorded attempts for a stage index.
func (t *Task) Attempts(stageIndex int) int {
	return t.AttemptCounts[stageIndex]
}

// Clone returns a copy that shares no mutable state with the original.
// Attempt entries are immutable once logged, so they are shared; the log
// slice and the counters get their own backing storage.
func (t *Task) Clone() *Task {
	next := *t
	if t.Log != nil {
		next.Log = append([]Attempt(nil), t.Log...)
	}
	if t.AttemptCounts != nil {
		next.AttemptCounts = make(map[int]int, len(t.AttemptCounts))
		for k, v := range t.AttemptCounts {
			next.AttemptCounts[k] = v
		}
	}
	return &next
}
