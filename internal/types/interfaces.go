// internal/types/interfaces.go
package types

import (
	"context"
	"errors"
)

// ErrNotFound is returned by stores when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned by AppendMessages when expectedVersion no
// longer matches the stored session. The losing writer may reload and retry.
var ErrVersionConflict = errors.New("session version conflict")

// SessionStore is the session persistence contract the orchestrator and the
// tool executors consume.
type SessionStore interface {
	GetSession(ctx context.Context, id SessionID) (*Session, error)

	// AppendMessages appends messages atomically (all-or-nothing) iff the
	// stored version equals expectedVersion, and returns the updated session.
	AppendMessages(ctx context.Context, id SessionID, messages []Message, expectedVersion int64) (*Session, error)

	// AppendMemory adds an entry to the given category of session memory.
	AppendMemory(ctx context.Context, id SessionID, category string, entry MemoryEntry) error

	// RemoveMemory removes all entries with matching content from the category.
	RemoveMemory(ctx context.Context, id SessionID, category, content string) error

	ListAttachedDatasets(ctx context.Context, id SessionID) ([]*Dataset, error)
}

// ArtifactStore persists report/visualization artifacts.
type ArtifactStore interface {
	CreateArtifact(ctx context.Context, artifact *Artifact) error
	GetArtifact(ctx context.Context, id ArtifactID) (*Artifact, error)

	// ListArtifacts returns artifacts newest first. An empty sessionID lists
	// across all sessions.
	ListArtifacts(ctx context.Context, sessionID SessionID) ([]*Artifact, error)
}
