package registry

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zen-systems/stagegate/pkg/gate"
)

// Well-known agent roles. Roles are free-form strings, but the audit and
// merge roles carry structural meaning during validation.
const (
	RoleRequirements = "requirements"
	RoleCoding       = "coding"
	RoleAudit        = "audit"
	RoleTesting      = "testing"
	RoleMerge        = "merge"
)

var (
	// ErrInvalidRegistry marks a registry that failed load-time validation.
	// It is fatal at startup; the orchestrator never runs against one.
	ErrInvalidRegistry = errors.New("invalid stage registry")

	// ErrStageNotFound is returned by StageAt for an out-of-range index.
	ErrStageNotFound = errors.New("stage not found")
)

// StageDefinition is one immutable entry in the pipeline configuration.
type StageDefinition struct {
	Name        string    `yaml:"name"`
	Role        string    `yaml:"role"`
	Prompt      string    `yaml:"prompt"`
	Gate        gate.Spec `yaml:"gate,omitempty"`
	Skippable   bool      `yaml:"skippable,omitempty"`
	MaxAttempts int       `yaml:"max_attempts,omitempty"`
}

// Manifest is the on-disk shape of a pipeline definition.
type Manifest struct {
	Name   string            `yaml:"name"`
	Stages []StageDefinition `yaml:"stages"`
}

// Registry holds the ordered, validated stage sequence. It is loaded once at
// process start and immutable thereafter, so concurrent task executions share
// it without locking.
type Registry struct {
	name   string
	stages []StageDefinition
}

// Load reads and validates a pipeline definition from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline definition: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidRegistry, path, err)
	}

	return New(m.Name, m.Stages)
}

// New validates the stage list and constructs a Registry.
func New(name string, stages []StageDefinition) (*Registry, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: stage list is empty", ErrInvalidRegistry)
	}

	seen := make(map[string]struct{}, len(stages))
	auditIndex := -1
	mergeIndex := -1
	for i, s := range stages {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: stage %d has no name", ErrInvalidRegistry, i)
		}
		if _, ok := seen[s.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate stage name %q", ErrInvalidRegistry, s.Name)
		}
		seen[s.Name] = struct{}{}

		if s.Role == "" {
			return nil, fmt.Errorf("%w: stage %q has no role", ErrInvalidRegistry, s.Name)
		}
		if s.Prompt == "" {
			return nil, fmt.Errorf("%w: stage %q has no prompt", ErrInvalidRegistry, s.Name)
		}
		if s.MaxAttempts < 0 {
			return nil, fmt.Errorf("%w: stage %q has negative max_attempts", ErrInvalidRegistry, s.Name)
		}

		switch s.Role {
		case RoleAudit:
			if s.Skippable {
				return nil, fmt.Errorf("%w: audit stage %q must not be skippable", ErrInvalidRegistry, s.Name)
			}
			if auditIndex < 0 {
				auditIndex = i
			}
		case RoleMerge:
			if mergeIndex < 0 {
				mergeIndex = i
			}
		}
	}

	if auditIndex < 0 {
		return nil, fmt.Errorf("%w: no audit stage defined", ErrInvalidRegistry)
	}
	if mergeIndex >= 0 && auditIndex > mergeIndex {
		return nil, fmt.Errorf("%w: audit stage must precede the merge stage", ErrInvalidRegistry)
	}

	cloned := make([]StageDefinition, len(stages))
	copy(cloned, stages)
	return &Registry{name: name, stages: cloned}, nil
}

// Name returns the pipeline name.
func (r *Registry) Name() string {
	return r.name
}

// Len returns the number of stages.
func (r *Registry) Len() int {
	return len(r.stages)
}

// Stages returns the ordered stage sequence as a copy.
func (r *Registry) Stages() []StageDefinition {
	out := make([]StageDefinition, len(r.stages))
	copy(out, r.stages)
	return out
}

// StageAt returns the stage definition at the given index.
func (r *Registry) StageAt(index int) (StageDefinition, error) {
	if index < 0 || index >= len(r.stages) {
		return StageDefinition{}, fmt.Errorf("%w: index %d of %d", ErrStageNotFound, index, len(r.stages))
	}
	return r.stages[index], nil
}
