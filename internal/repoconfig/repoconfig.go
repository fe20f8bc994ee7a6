// Package repoconfig implements the user configuration document (spec.md
// §6): user.name/user.email/ui.*/merge.* keys loaded with a precedence
// chain. Grounded on the teacher's internal/config.Initialize three-tier
// search order (project .beads/config.yaml > user config dir > home
// directory), generalized from viper's dynamic key/env binding to a
// plain yaml.v3 document, since SPEC_FULL §1 drops viper along with the
// CLI surface it served.
package repoconfig

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/untoldecay/jjg/internal/jjgerr"
)

// User holds the identity every new Change and Operation is signed with.
type User struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// UI holds presentation preferences read by callers but not interpreted
// by the engine itself.
type UI struct {
	DefaultRevset string `yaml:"default-revset"`
	Pager         string `yaml:"pager"`
}

// Merge holds conflict-handling defaults (spec.md §4.5).
type Merge struct {
	Mode           string `yaml:"mode"` // "strict" or "lenient"
	DriverTimeout  string `yaml:"driver-timeout"`
	ManifestPath   string `yaml:"manifest-path"`
}

// Watch holds the auto-snapshot background watcher's tuning knobs
// (spec.md §5).
type Watch struct {
	Enabled     bool   `yaml:"enabled"`
	DebounceMs  int    `yaml:"debounce-ms"`
}

// Config is the parsed configuration document.
type Config struct {
	User  User  `yaml:"user"`
	UI    UI    `yaml:"ui"`
	Merge Merge `yaml:"merge"`
	Watch Watch `yaml:"watch"`
}

// Default returns a Config with every field at its documented default.
func Default() Config {
	return Config{
		UI:    UI{DefaultRevset: "visible_heads()"},
		Merge: Merge{Mode: "lenient", DriverTimeout: "5s"},
		Watch: Watch{Enabled: true, DebounceMs: 1000},
	}
}

// Load resolves and merges the configuration chain: repo config
// (<jjgDir>/config.yaml) overlays the user config directory's
// jjg/config.yaml, which overlays the home directory's .jjg/config.yaml,
// which overlays Default(). Later layers win field-by-field only where
// set; missing files are skipped silently.
func Load(jjgDir string) (Config, error) {
	cfg := Default()

	home, err := os.UserHomeDir()
	if err == nil {
		if err := overlay(&cfg, filepath.Join(home, ".jjg", "config.yaml")); err != nil {
			return cfg, err
		}
	}
	if userCfgDir, err := os.UserConfigDir(); err == nil {
		if err := overlay(&cfg, filepath.Join(userCfgDir, "jjg", "config.yaml")); err != nil {
			return cfg, err
		}
	}
	if err := overlay(&cfg, filepath.Join(jjgDir, "config.yaml")); err != nil {
		return cfg, err
	}
	envOverlay(&cfg)
	return cfg, nil
}

// envOverlay applies JJG_* environment variables, the highest-priority
// layer (mirrors the teacher's BEADS_SYNC_BRANCH env-var-first
// precedence in internal/syncbranch.Get).
func envOverlay(cfg *Config) {
	if v := os.Getenv("JJG_USER_NAME"); v != "" {
		cfg.User.Name = v
	}
	if v := os.Getenv("JJG_USER_EMAIL"); v != "" {
		cfg.User.Email = v
	}
	if v := os.Getenv("JJG_MERGE_MODE"); v != "" {
		cfg.Merge.Mode = v
	}
	if v := os.Getenv("JJG_UI_PAGER"); v != "" {
		cfg.UI.Pager = v
	}
}

func overlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is a fixed, documented config location
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return jjgerr.Wrap(jjgerr.KindStorageReadFailed, "read config "+path, err)
	}
	var layer Config
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return jjgerr.Wrap(jjgerr.KindStorageCorrupt, "parse config "+path, err)
	}
	mergeInto(cfg, layer)
	return nil
}

// mergeInto copies every non-zero field of layer onto cfg.
func mergeInto(cfg *Config, layer Config) {
	if layer.User.Name != "" {
		cfg.User.Name = layer.User.Name
	}
	if layer.User.Email != "" {
		cfg.User.Email = layer.User.Email
	}
	if layer.UI.DefaultRevset != "" {
		cfg.UI.DefaultRevset = layer.UI.DefaultRevset
	}
	if layer.UI.Pager != "" {
		cfg.UI.Pager = layer.UI.Pager
	}
	if layer.Merge.Mode != "" {
		cfg.Merge.Mode = layer.Merge.Mode
	}
	if layer.Merge.DriverTimeout != "" {
		cfg.Merge.DriverTimeout = layer.Merge.DriverTimeout
	}
	if layer.Merge.ManifestPath != "" {
		cfg.Merge.ManifestPath = layer.Merge.ManifestPath
	}
	if layer.Watch.DebounceMs != 0 {
		cfg.Watch.DebounceMs = layer.Watch.DebounceMs
	}
	cfg.Watch.Enabled = layer.Watch.Enabled || cfg.Watch.Enabled
}

// Save writes cfg to <jjgDir>/config.yaml.
func Save(jjgDir string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return jjgerr.Wrap(jjgerr.KindStorageWriteFailed, "marshal config", err)
	}
	path := filepath.Join(jjgDir, "config.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil { // #nosec G304
		return jjgerr.Wrap(jjgerr.KindStorageWriteFailed, "write config", err)
	}
	return nil
}
