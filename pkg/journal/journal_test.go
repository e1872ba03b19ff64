package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/stagegate/pkg/artifact"
	"github.com/zen-systems/stagegate/pkg/task"
)

func TestAppendAndReadBackInOrder(t *testing.T) {
	base := t.TempDir()
	tk := task.New("feature")

	w, err := NewWriter(base, tk.ID)
	require.NoError(t, err)

	first := task.Attempt{Stage: "coding", Number: 1, Artifact: artifact.New("v1", "coding", "m", "p")}
	second := task.Attempt{Stage: "coding", Number: 2, Artifact: artifact.New("v2", "coding", "m", "p")}
	third := task.Attempt{Stage: "audit", Number: 1}

	require.NoError(t, w.AppendAttempt(1, first))
	require.NoError(t, w.AppendAttempt(2, second))
	require.NoError(t, w.AppendAttempt(3, third))

	got, err := ReadAttempts(base, tk.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "coding", got[0].Stage)
	assert.Equal(t, 2, got[1].Number)
	assert.Equal(t, "audit", got[2].Stage)
}

func TestAppendRefusesOverwrite(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "task-1")
	require.NoError(t, err)

	a := task.Attempt{Stage: "coding", Number: 1}
	require.NoError(t, w.AppendAttempt(1, a))
	assert.Error(t, w.AppendAttempt(1, a), "journal records are never rewritten")
}

func TestWriteTaskSnapshotsHeaderOnly(t *testing.T) {
	base := t.TempDir()
	tk := task.New("feature")
	tk.Log = []task.Attempt{{Stage: "coding", Number: 1}}

	w, err := NewWriter(base, tk.ID)
	require.NoError(t, err)
	require.NoError(t, w.WriteTask(tk))

	assert.FileExists(t, w.TaskDir()+"/task.json")
	assert.Len(t, tk.Log, 1, "snapshot does not mutate the task")
}
