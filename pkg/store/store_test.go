package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/stagegate/pkg/task"
)

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")

	s, err := Open(path)
	require.NoError(t, err)

	tk := task.New("implement order matching")
	tk.Status = task.StatusCompleted
	require.NoError(t, s.Save(tk))

	reloaded, err := Open(path)
	require.NoError(t, err)

	got, err := reloaded.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "implement order matching", got.Description)
	assert.Equal(t, task.StatusCompleted, got.Status)
}

func TestGetUnknownTask(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "tasks.json"))
	require.NoError(t, err)

	_, err = s.Get("nope")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestListFiltersByStatusInCreationOrder(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "tasks.json"))
	require.NoError(t, err)

	first := task.New("first")
	first.Status = task.StatusAborted
	second := task.New("second")
	second.Status = task.StatusCompleted
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	third := task.New("third")
	third.Status = task.StatusAborted
	third.CreatedAt = first.CreatedAt.Add(2 * time.Second)

	for _, tk := range []*task.Task{third, first, second} {
		require.NoError(t, s.Save(tk))
	}

	aborted := s.List(task.StatusAborted)
	require.Len(t, aborted, 2)
	assert.Equal(t, "first", aborted[0].Description)
	assert.Equal(t, "third", aborted[1].Description)

	all := s.List("")
	assert.Len(t, all, 3)
}

func TestOpenRejectsCorruptIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestGetReturnsCopy(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "tasks.json"))
	require.NoError(t, err)

	tk := task.New("feature")
	require.NoError(t, s.Save(tk))

	got, err := s.Get(tk.ID)
	require.NoError(t, err)
	got.Description = "mutated"

	again, err := s.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "feature", again.Description)
}

func TestCopiesShareNoMutableState(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "tasks.json"))
	require.NoError(t, err)

	tk := task.New("feature")
	tk.Status = task.StatusStageRunning
	tk.Log = append(tk.Log, task.Attempt{Stage: "coding", Number: 1})
	tk.AttemptCounts[1] = 1
	require.NoError(t, s.Save(tk))

	// Mutating the saved task's log and counters must not leak into the
	// stored copy, and vice versa.
	tk.Log[0].Stage = "tampered"
	tk.AttemptCounts[1] = 99

	got, err := s.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "coding", got.Log[0].Stage)
	assert.Equal(t, 1, got.AttemptCounts[1])

	got.Log[0].Stage = "also-tampered"
	got.AttemptCounts[1] = 7

	again, err := s.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "coding", again.Log[0].Stage)
	assert.Equal(t, 1, again.AttemptCounts[1])

	listed := s.List("")
	require.Len(t, listed, 1)
	listed[0].AttemptCounts[1] = 42
	final, err := s.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.AttemptCounts[1])
}
