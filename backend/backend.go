// Package backend declares the Backend-commit interface (spec.md §6):
// the contract the engine's consumer implements to back the Change
// Graph with a real commit-object store. The engine treats it as an
// external collaborator — it never implements commit creation, ref
// storage, or network transport itself. Grounded on the teacher's
// internal/storage.Storage interface shape (a narrow collaborator
// interface the rest of the codebase programs against, never a
// concrete struct), generalized from a SQLite-backed issue store to a
// version-control commit backend.
package backend

import "context"

// RefInfo is one entry returned by ListRefs.
type RefInfo struct {
	Name string
	OID  string // backend commit-id
}

// CommitRequest carries everything a backend needs to synthesize one
// commit object.
type CommitRequest struct {
	Message   string
	Author    Signature
	Committer Signature
	Parents   []string // backend commit-ids, zero-sentinel already resolved out
}

// Signature mirrors types.Signature without importing the engine's
// internal package, keeping this contract free-standing.
type Signature struct {
	Name  string
	Email string
}

// FetchOptions configures a Fetch call.
type FetchOptions struct {
	Remote string
	Refs   []string
}

// PushOptions configures a Push call.
type PushOptions struct {
	Remote string
	Refs   []string
	Force  bool
}

// CloneOptions configures a Clone call.
type CloneOptions struct {
	URL  string
	Into string
}

// CommitStore is the engine's consumer-supplied commit backend
// (spec.md §6's "backend-commit interface"). All methods may block on
// I/O; context.Context carries cancellation for network operations.
type CommitStore interface {
	Init(ctx context.Context, defaultBranch string) error
	StageAll(ctx context.Context) error
	CreateCommit(ctx context.Context, req CommitRequest) (commitID string, err error)
	ListRefs(ctx context.Context, prefix string) ([]RefInfo, error)
	UpdateRef(ctx context.Context, name, oid string) error
	Fetch(ctx context.Context, opts FetchOptions) error
	Push(ctx context.Context, opts PushOptions) error
	Clone(ctx context.Context, opts CloneOptions) error
}
