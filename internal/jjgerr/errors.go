// Package jjgerr defines the error taxonomy shared by every engine
// component: a machine-readable Kind, a human message, and free-form
// context fields for logs, following spec.md §7.
package jjgerr

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category. Callers should switch on Kind
// (via errors.As + Error.Kind) rather than parsing messages.
type Kind string

// Lookup errors.
const (
	KindChangeNotFound     Kind = "change_not_found"
	KindOperationNotFound  Kind = "operation_not_found"
	KindBookmarkNotFound   Kind = "bookmark_not_found"
	KindTagNotFound        Kind = "tag_not_found"
	KindWorkspaceNotFound  Kind = "workspace_not_found"
	KindFileNotFound       Kind = "file_not_found"
	KindConflictNotFound   Kind = "conflict_not_found"
)

// Validation errors.
const (
	KindInvalidChangeId     Kind = "invalid_change_id"
	KindInvalidPath         Kind = "invalid_path"
	KindInvalidBookmarkName Kind = "invalid_bookmark_name"
	KindInvalidTagName      Kind = "invalid_tag_name"
	KindInvalidRevset       Kind = "invalid_revset"
	KindInvalidResolution   Kind = "invalid_resolution"
	KindInvalidTimeUnit     Kind = "invalid_time_unit"
	KindInvalidArgument     Kind = "invalid_argument"
	KindAmbiguousOperation  Kind = "ambiguous_operation"
)

// State errors.
const (
	KindDuplicateChange     Kind = "duplicate_change"
	KindBookmarkExists      Kind = "bookmark_exists"
	KindTagExists           Kind = "tag_exists"
	KindWorkspaceExists     Kind = "workspace_exists"
	KindWorkspaceNotEmpty   Kind = "workspace_not_empty"
	KindEventCancelled      Kind = "event_cancelled"
	KindNothingToUndo       Kind = "nothing_to_undo"
	KindNoCommonAncestor    Kind = "no_common_ancestor"
	KindNoChildren          Kind = "no_children"
	KindNoParents           Kind = "no_parents"
	KindInsufficientChildren Kind = "insufficient_children"
	KindCannotAbandon       Kind = "cannot_abandon"
	KindCannotRevert        Kind = "cannot_revert"
	KindWouldCreateCycle    Kind = "would_create_cycle"
	KindOperationCancelled  Kind = "operation_cancelled"
)

// Storage errors.
const (
	KindStorageReadFailed      Kind = "storage_read_failed"
	KindStorageWriteFailed     Kind = "storage_write_failed"
	KindStorageVersionMismatch Kind = "storage_version_mismatch"
	KindStorageCorrupt         Kind = "storage_corrupt"
	KindSnapshotFailed         Kind = "snapshot_failed"
	KindFileRestoreFailed      Kind = "file_restore_failed"
	KindTreeReadFailed         Kind = "tree_read_failed"
	KindDirectoryCreateFailed  Kind = "directory_create_failed"
	KindFileMoveFailed         Kind = "file_move_failed"
)

// Integration errors.
const (
	KindBackendSyncFailed Kind = "backend_sync_failed"
	KindDriverFailed      Kind = "driver_failed"
	KindDriverTimeout     Kind = "driver_timeout"
	KindWatchNotSupported Kind = "watch_not_supported"
	KindUnsupportedOperation Kind = "unsupported_operation"
)

// Error is the concrete error type returned by every package in this
// module. It always carries a Kind so callers can branch on it with
// errors.As, plus free-form Context for logging.
type Error struct {
	Kind       Kind
	Message    string
	Context    map[string]any
	Suggestion string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and message to an underlying cause, preserving it for
// errors.Unwrap/errors.Is.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithContext returns a copy of e with key set in its Context map.
func (e *Error) WithContext(key string, value any) *Error {
	cp := *e
	cp.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = value
	return &cp
}

// WithSuggestion returns a copy of e with Suggestion set.
func (e *Error) WithSuggestion(s string) *Error {
	cp := *e
	cp.Suggestion = s
	return &cp
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
