// Package journal persists the per-task audit trail: one directory per task,
// one record per attempt, appended in attempt order and never rewritten.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/zen-systems/stagegate/pkg/task"
)

// Writer writes one task's journal. A task has exactly one writer; writes per
// task are serialized by that ownership, so no cross-task locking exists.
type Writer struct {
	taskDir string
}

// NewWriter creates a journal writer rooted at baseDir/taskID.
func NewWriter(baseDir, taskID string) (*Writer, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if taskID == "" {
		return nil, fmt.Errorf("task ID is required")
	}

	taskDir := filepath.Join(baseDir, taskID)
	if err := os.MkdirAll(filepath.Join(taskDir, "attempts"), 0755); err != nil {
		return nil, err
	}
	return &Writer{taskDir: taskDir}, nil
}

// TaskDir returns the journal directory for the task.
func (w *Writer) TaskDir() string {
	return w.taskDir
}

// WriteTask snapshots the task header (status, stage index, reason) to
// task.json. The attempt log itself lives in the attempts/ directory.
func (w *Writer) WriteTask(t *task.Task) error {
	snapshot := *t
	snapshot.Log = nil
	return writeJSON(filepath.Join(w.taskDir, "task.json"), snapshot)
}

// AppendAttempt writes one attempt record. The file name carries the log
// position; an existing record is never overwritten.
func (w *Writer) AppendAttempt(position int, a task.Attempt) error {
	name := fmt.Sprintf("%04d-%s.json", position, a.Stage)
	path := filepath.Join(w.taskDir, "attempts", name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("attempt record %s already exists", name)
	}
	return writeJSON(path, a)
}

// ReadAttempts loads a task's attempt records in log order.
func ReadAttempts(baseDir, taskID string) ([]task.Attempt, error) {
	dir := filepath.Join(baseDir, taskID, "attempts")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	attempts := make([]task.Attempt, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var a task.Attempt
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
