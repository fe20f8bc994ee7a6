package jjgerr

import (
	"errors"
	"testing"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindStorageWriteFailed, "write graph.json", cause)

	if !Is(err, KindStorageWriteFailed) {
		t.Fatalf("expected Is to match KindStorageWriteFailed")
	}
	if Is(err, KindFileNotFound) {
		t.Fatalf("did not expect Is to match an unrelated kind")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to see through to cause")
	}
}

func TestWithContextDoesNotMutateOriginal(t *testing.T) {
	base := New(KindChangeNotFound, "no such change")
	decorated := base.WithContext("changeId", "abc123")

	if base.Context != nil {
		t.Fatalf("expected base.Context untouched, got %v", base.Context)
	}
	if decorated.Context["changeId"] != "abc123" {
		t.Fatalf("expected decorated context to carry changeId")
	}
}

func TestNewfFormatsMessage(t *testing.T) {
	err := Newf(KindInvalidArgument, "bad value %d", 42)
	if err.Error() != "bad value 42" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Wrap(KindStorageCorrupt, "parse graph record", errors.New("unexpected EOF"))
	want := "parse graph record: unexpected EOF"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}
