// Package store persists the task index to a single JSON file with atomic
// replace semantics.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/zen-systems/stagegate/pkg/task"
)

// ErrTaskNotFound is returned by Get for an unknown task ID.
var ErrTaskNotFound = errors.New("task not found")

// Store holds tasks keyed by ID, mirrored to disk on every save. Writes are
// serialized by the store's lock; readers get copies.
type Store struct {
	mu    sync.Mutex
	path  string
	tasks map[string]*task.Task
}

// Open loads the task index at path, creating an empty one if the file does
// not exist. A corrupt file is an error; the index is the system of record.
func Open(path string) (*Store, error) {
	s := &Store{path: path, tasks: make(map[string]*task.Task)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read task index: %w", err)
	}
	if err := json.Unmarshal(data, &s.tasks); err != nil {
		return nil, fmt.Errorf("decode task index %s: %w", path, err)
	}
	return s, nil
}

// Save upserts the task and rewrites the index atomically.
func (s *Store) Save(t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[t.ID] = t.Clone()
	return s.flush()
}

// Get returns a copy of the task with the given ID.
func (s *Store) Get(id string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t.Clone(), nil
}

// List returns copies of all tasks, optionally filtered by status, ordered by
// creation time.
func (s *Store) List(status task.Status) []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// flush writes the index to a temp file, validates it re-reads as JSON, then
// renames it over the target.
func (s *Store) flush() error {
	content, err := json.MarshalIndent(s.tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("encode task index: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".stagegate-tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	written, err := os.ReadFile(tmpName)
	if err != nil {
		return fmt.Errorf("read temp file for validation: %w", err)
	}
	var check map[string]*task.Task
	if err := json.Unmarshal(written, &check); err != nil {
		return fmt.Errorf("task index validation failed: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace task index: %w", err)
	}
	return nil
}
