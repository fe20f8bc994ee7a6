package mergedriver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/untoldecay/jjg/internal/jjgerr"
)

func TestLoadManifestMissingFileReturnsEmpty(t *testing.T) {
	m, err := LoadManifest(filepath.Join(t.TempDir(), "no-such-file.toml"))
	if err != nil {
		t.Fatalf("expected no error for a missing manifest, got %v", err)
	}
	if len(m.Driver) != 0 {
		t.Fatalf("expected an empty manifest")
	}
}

func TestLoadManifestParsesEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "merge-drivers.toml")
	content := `
[[driver]]
glob = "*.json"
builtin = "json"
accepts_text = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	if len(m.Driver) != 1 || m.Driver[0].Glob != "*.json" || m.Driver[0].Builtin != "json" {
		t.Fatalf("unexpected manifest contents: %+v", m.Driver)
	}
}

func TestLoadManifestRejectsCorruptTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "merge-drivers.toml")
	if err := os.WriteFile(path, []byte("not = [valid toml"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if _, err := LoadManifest(path); !jjgerr.Is(err, jjgerr.KindStorageCorrupt) {
		t.Fatalf("expected KindStorageCorrupt, got %v", err)
	}
}

func TestApplyRegistersBuiltin(t *testing.T) {
	m := &Manifest{Driver: []ManifestEntry{{Glob: "*.json", Builtin: "json", AcceptsText: true}}}
	r := NewRegistry()
	called := false
	builtins := map[string]Driver{
		"json": DriverFunc(func(_ context.Context, _ string, _, _, _ []byte) (Result, error) {
			called = true
			return Result{Content: []byte("ok")}, nil
		}),
	}
	if err := m.Apply(r, builtins, nil); err != nil {
		t.Fatalf("apply: %v", err)
	}
	r.Merge(context.Background(), "config.json", nil, []byte("a"), []byte("b"), nil)
	if !called {
		t.Fatalf("expected the registered builtin driver to be invoked")
	}
}

func TestApplyRejectsUnknownBuiltin(t *testing.T) {
	m := &Manifest{Driver: []ManifestEntry{{Glob: "*.json", Builtin: "does-not-exist"}}}
	r := NewRegistry()
	if err := m.Apply(r, map[string]Driver{}, nil); !jjgerr.Is(err, jjgerr.KindInvalidArgument) {
		t.Fatalf("expected KindInvalidArgument, got %v", err)
	}
}

func TestApplyRejectsEntryWithNeitherBuiltinNorWasm(t *testing.T) {
	m := &Manifest{Driver: []ManifestEntry{{Glob: "*.json"}}}
	r := NewRegistry()
	if err := m.Apply(r, map[string]Driver{}, nil); !jjgerr.Is(err, jjgerr.KindInvalidArgument) {
		t.Fatalf("expected KindInvalidArgument, got %v", err)
	}
}
