package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Artifact is an immutable output produced by one agent invocation. Derived
// artifacts (new versions, metadata additions) are fresh values; nothing
// mutates an Artifact after construction.
type Artifact struct {
	ID        string            `json:"id"`
	Version   int               `json:"version"`
	Content   string            `json:"content"`
	Role      string            `json:"role"`
	Model     string            `json:"model"`
	Prompt    string            `json:"prompt"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Hash      string            `json:"hash"`
}

// New builds a version-1 artifact. The hash covers the producing role and
// model alongside the content, so identical text from different stages still
// hashes apart.
func New(content, role, model, prompt string) *Artifact {
	return &Artifact{
		ID:        uuid.NewString(),
		Version:   1,
		Content:   content,
		Role:      role,
		Model:     model,
		Prompt:    prompt,
		Metadata:  map[string]string{},
		CreatedAt: time.Now().UTC(),
		Hash:      fingerprint(role, model, content),
	}
}

// NewVersion derives the next version with replaced content. The ID carries
// over so all versions of one output share a lineage.
func (a *Artifact) NewVersion(content string) *Artifact {
	next := a.clone()
	next.Version++
	next.Content = content
	next.CreatedAt = time.Now().UTC()
	next.Hash = fingerprint(next.Role, next.Model, next.Content)
	return next
}

// WithMetadata derives a copy carrying one extra metadata entry. Version and
// hash are unchanged.
func (a *Artifact) WithMetadata(key, value string) *Artifact {
	next := a.clone()
	next.Metadata[key] = value
	return next
}

func (a *Artifact) clone() *Artifact {
	next := *a
	next.Metadata = make(map[string]string, len(a.Metadata)+1)
	for k, v := range a.Metadata {
		next.Metadata[k] = v
	}
	return &next
}

// fingerprint digests the fields with a length prefix on each so field
// boundaries cannot collide, truncated to 16 hex characters.
func fingerprint(fields ...string) string {
	h := sha256.New()
	for _, f := range fields {
		fmt.Fprintf(h, "%d:", len(f))
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
