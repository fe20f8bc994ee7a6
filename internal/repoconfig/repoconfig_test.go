package repoconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func isolateHomeDirs(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "xdg-config"))
}

func TestLoadReturnsDefaultsWithNoFiles(t *testing.T) {
	isolateHomeDirs(t)
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Default()
	if cfg.Merge.Mode != want.Merge.Mode || cfg.UI.DefaultRevset != want.UI.DefaultRevset {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadRepoConfigOverlaysDefaults(t *testing.T) {
	isolateHomeDirs(t)
	jjgDir := t.TempDir()
	content := "user:\n  name: Alice\n  email: alice@example.com\nmerge:\n  mode: strict\n"
	if err := os.WriteFile(filepath.Join(jjgDir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(jjgDir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.User.Name != "Alice" || cfg.User.Email != "alice@example.com" {
		t.Fatalf("expected repo config to set user identity, got %+v", cfg.User)
	}
	if cfg.Merge.Mode != "strict" {
		t.Fatalf("expected repo config to override merge mode to strict, got %q", cfg.Merge.Mode)
	}
	// Untouched fields keep their compiled default.
	if cfg.UI.DefaultRevset != "visible_heads()" {
		t.Fatalf("expected default revset to survive an overlay that doesn't set it, got %q", cfg.UI.DefaultRevset)
	}
}

func TestLoadRejectsCorruptRepoConfig(t *testing.T) {
	isolateHomeDirs(t)
	jjgDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(jjgDir, "config.yaml"), []byte("not: [valid"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(jjgDir); err == nil {
		t.Fatalf("expected corrupt yaml to fail loading")
	}
}

func TestEnvOverlayTakesHighestPrecedence(t *testing.T) {
	isolateHomeDirs(t)
	jjgDir := t.TempDir()
	content := "merge:\n  mode: strict\n"
	if err := os.WriteFile(filepath.Join(jjgDir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("JJG_MERGE_MODE", "lenient")
	t.Setenv("JJG_USER_NAME", "Env Name")

	cfg, err := Load(jjgDir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Merge.Mode != "lenient" {
		t.Fatalf("expected env var to win over repo config, got %q", cfg.Merge.Mode)
	}
	if cfg.User.Name != "Env Name" {
		t.Fatalf("expected env var to set user name, got %q", cfg.User.Name)
	}
}

func TestSaveRoundTrips(t *testing.T) {
	isolateHomeDirs(t)
	jjgDir := t.TempDir()
	cfg := Default()
	cfg.User.Name = "Saved Name"

	if err := Save(jjgDir, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(jjgDir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.User.Name != "Saved Name" {
		t.Fatalf("expected saved name to round trip, got %q", loaded.User.Name)
	}
}
