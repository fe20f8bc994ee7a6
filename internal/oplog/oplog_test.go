package oplog

import (
	"encoding/json"
	"testing"

	"github.com/untoldecay/jjg/internal/jjgerr"
	"github.com/untoldecay/jjg/internal/types"
)

func TestRecordChainsParentsAndHashesID(t *testing.T) {
	l := New()
	op1, err := l.Record(types.Operation{Description: "init"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if op1.ID == "" || len(op1.Parents) != 0 {
		t.Fatalf("expected first op to have an id and no parents, got %+v", op1)
	}

	op2, err := l.Record(types.Operation{Description: "new"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(op2.Parents) != 1 || op2.Parents[0] != op1.ID {
		t.Fatalf("expected op2 to chain onto op1, got parents %v", op2.Parents)
	}
	if l.Head() != op2.ID {
		t.Fatalf("expected head to be op2")
	}
}

func TestRecordIDIsDeterministicContentHash(t *testing.T) {
	l1, l2 := New(), New()
	partial := types.Operation{Description: "same content"}
	op1, _ := l1.Record(partial)
	op2, _ := l2.Record(partial)
	if op1.ID != op2.ID {
		t.Fatalf("expected identical content to hash to the same id, got %s vs %s", op1.ID, op2.ID)
	}
}

func TestUndoOnSingleOperationReturnsItsOwnView(t *testing.T) {
	l := New()
	op, _ := l.Record(types.Operation{Description: "init", View: types.OperationView{WorkingCopy: "root"}})
	view, err := l.Undo()
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if view.WorkingCopy != op.View.WorkingCopy {
		t.Fatalf("expected base-case undo to return the only view")
	}
}

func TestUndoRestoresParentView(t *testing.T) {
	l := New()
	_, _ = l.Record(types.Operation{Description: "init", View: types.OperationView{WorkingCopy: "root"}})
	_, _ = l.Record(types.Operation{Description: "new", View: types.OperationView{WorkingCopy: "child"}})

	view, err := l.Undo()
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if view.WorkingCopy != "root" {
		t.Fatalf("expected undo to restore the pre-mutation view, got %q", view.WorkingCopy)
	}
}

func TestUndoOnEmptyLogFails(t *testing.T) {
	l := New()
	if _, err := l.Undo(); !jjgerr.Is(err, jjgerr.KindNothingToUndo) {
		t.Fatalf("expected KindNothingToUndo, got %v", err)
	}
}

func TestSnapshotAtUnknownOperationFails(t *testing.T) {
	l := New()
	_, _ = l.Record(types.Operation{Description: "init"})
	if _, err := l.SnapshotAt("does-not-exist"); !jjgerr.Is(err, jjgerr.KindOperationNotFound) {
		t.Fatalf("expected KindOperationNotFound, got %v", err)
	}
}

func TestAbandonRelinksChildrenAndRemovesRecord(t *testing.T) {
	l := New()
	op1, _ := l.Record(types.Operation{Description: "init"})
	op2, _ := l.Record(types.Operation{Description: "middle"})
	op3, _ := l.Record(types.Operation{Description: "last"})

	if err := l.Abandon(op2.ID); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if l.Get(op2.ID) != nil {
		t.Fatalf("expected op2 removed from the log")
	}
	relinked := l.Get(op3.ID)
	if relinked == nil || len(relinked.Parents) != 1 || relinked.Parents[0] != op1.ID {
		t.Fatalf("expected op3 relinked onto op1, got %+v", relinked)
	}
	if l.Len() != 2 {
		t.Fatalf("expected 2 remaining operations, got %d", l.Len())
	}
}

func TestAbandonOnlyOperationFails(t *testing.T) {
	l := New()
	op, _ := l.Record(types.Operation{Description: "init"})
	if err := l.Abandon(op.ID); !jjgerr.Is(err, jjgerr.KindCannotAbandon) {
		t.Fatalf("expected KindCannotAbandon, got %v", err)
	}
}

func TestLoadRoundTripsLines(t *testing.T) {
	l := New()
	_, _ = l.Record(types.Operation{Description: "init"})
	_, _ = l.Record(types.Operation{Description: "new"})

	loaded, err := Load(l.Lines())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Len() != 2 || loaded.Head() != l.Head() {
		t.Fatalf("expected round trip to preserve log state")
	}
}

func TestLoadRejectsCorruptLine(t *testing.T) {
	if _, err := Load([][]byte{[]byte("not json")}); !jjgerr.Is(err, jjgerr.KindStorageCorrupt) {
		t.Fatalf("expected KindStorageCorrupt, got %v", err)
	}
}

func TestCanonicalExcludesID(t *testing.T) {
	op := types.Operation{ID: "whatever", Description: "x"}
	canon, err := canonical(op)
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(canon, &decoded); err != nil {
		t.Fatalf("unmarshal canon: %v", err)
	}
	if _, ok := decoded["id"]; ok {
		t.Fatalf("expected canonical encoding to omit id")
	}
}
