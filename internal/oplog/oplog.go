// Package oplog implements the append-only Operation Log (spec.md §4.3):
// one JSON record per line, content-hash ids, undo/snapshot-at/abandon.
// Grounded on the teacher's own append-only JSONL conventions
// (internal/merge.readIssues' line-oriented scanning, internal/audit's
// event log) generalized from per-issue events to whole-repository
// operations.
package oplog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/untoldecay/jjg/internal/jjgerr"
	"github.com/untoldecay/jjg/internal/types"
)

// Log is the in-memory view of the append-only operation sequence.
type Log struct {
	ops  []types.Operation
	byID map[string]int // id -> index into ops
}

// New returns an empty log.
func New() *Log {
	return &Log{byID: make(map[string]int)}
}

// Load rebuilds a Log from its persisted lines, in file order.
func Load(lines [][]byte) (*Log, error) {
	l := New()
	for i, line := range lines {
		var op types.Operation
		if err := json.Unmarshal(line, &op); err != nil {
			return nil, jjgerr.Wrap(jjgerr.KindStorageCorrupt, fmt.Sprintf("parse oplog line %d", i+1), err)
		}
		l.ops = append(l.ops, op)
		l.byID[op.ID] = len(l.ops) - 1
	}
	return l, nil
}

// Lines returns the current log serialized as one JSON line per
// operation, for appending to the oplog file.
func (l *Log) Lines() [][]byte {
	out := make([][]byte, len(l.ops))
	for i, op := range l.ops {
		b, _ := json.Marshal(op)
		out[i] = b
	}
	return out
}

// Head returns the id of the most recently recorded operation, or "" if
// the log is empty.
func (l *Log) Head() string {
	if len(l.ops) == 0 {
		return ""
	}
	return l.ops[len(l.ops)-1].ID
}

// Get returns the operation with the given id, or nil.
func (l *Log) Get(id string) *types.Operation {
	idx, ok := l.byID[id]
	if !ok {
		return nil
	}
	cp := l.ops[idx]
	return &cp
}

// canonical builds the bytes hashed to produce an operation id: a
// deterministic JSON encoding over every field except id itself.
func canonical(op types.Operation) ([]byte, error) {
	return json.Marshal(struct {
		Timestamp   any            `json:"timestamp"`
		User        types.OperationUser `json:"user"`
		Description string         `json:"description"`
		Parents     []string       `json:"parents"`
		View        types.OperationView `json:"view"`
	}{
		Timestamp:   op.Timestamp,
		User:        op.User,
		Description: op.Description,
		Parents:     op.Parents,
		View:        op.View,
	})
}

// Record appends a new operation, computing its parents (the prior head,
// if any) and its content-hash id, and returns the fully-formed record.
func (l *Log) Record(partial types.Operation) (types.Operation, error) {
	op := partial
	if head := l.Head(); head != "" {
		op.Parents = []string{head}
	}
	canon, err := canonical(op)
	if err != nil {
		return types.Operation{}, jjgerr.Wrap(jjgerr.KindStorageWriteFailed, "canonicalize operation", err)
	}
	sum := sha256.Sum256(canon)
	op.ID = hex.EncodeToString(sum[:])

	l.ops = append(l.ops, op)
	l.byID[op.ID] = len(l.ops) - 1
	return op, nil
}

// Undo returns the view to restore: for a single-operation log, that
// operation's own view (base case); otherwise the view recorded by the
// head's first parent, falling back to the penultimate operation if the
// parent is missing.
func (l *Log) Undo() (types.OperationView, error) {
	if len(l.ops) == 0 {
		return types.OperationView{}, jjgerr.New(jjgerr.KindNothingToUndo, "operation log is empty")
	}
	if len(l.ops) == 1 {
		return l.ops[0].View, nil
	}
	head := l.ops[len(l.ops)-1]
	if len(head.Parents) > 0 {
		if idx, ok := l.byID[head.Parents[0]]; ok {
			return l.ops[idx].View, nil
		}
	}
	return l.ops[len(l.ops)-2].View, nil
}

// SnapshotAt returns the recorded view of a past operation (time travel).
func (l *Log) SnapshotAt(opID string) (types.OperationView, error) {
	idx, ok := l.byID[opID]
	if !ok {
		return types.OperationView{}, jjgerr.New(jjgerr.KindOperationNotFound, "operation not found: "+opID)
	}
	return l.ops[idx].View, nil
}

// Abandon removes an operation and relinks its direct children to its
// parent. Forbidden if it is the only operation or the id is missing.
func (l *Log) Abandon(opID string) error {
	if len(l.ops) <= 1 {
		return jjgerr.New(jjgerr.KindCannotAbandon, "cannot abandon the only operation in the log")
	}
	idx, ok := l.byID[opID]
	if !ok {
		return jjgerr.New(jjgerr.KindOperationNotFound, "operation not found: "+opID)
	}
	target := l.ops[idx]
	var parent string
	if len(target.Parents) > 0 {
		parent = target.Parents[0]
	}
	for i := range l.ops {
		for pi, p := range l.ops[i].Parents {
			if p == opID {
				l.ops[i].Parents[pi] = parent
			}
		}
	}
	l.ops = append(l.ops[:idx], l.ops[idx+1:]...)
	l.byID = make(map[string]int, len(l.ops))
	for i, op := range l.ops {
		l.byID[op.ID] = i
	}
	return nil
}

// All returns every recorded operation, in append order.
func (l *Log) All() []types.Operation {
	out := make([]types.Operation, len(l.ops))
	copy(out, l.ops)
	return out
}

// Len reports how many operations are recorded.
func (l *Log) Len() int { return len(l.ops) }
