package mergedriver

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/untoldecay/jjg/internal/jjgerr"
)

// ManifestEntry is one row of <repo>/.jjg/merge-drivers.toml.
type ManifestEntry struct {
	Glob          string `toml:"glob"`
	Builtin       string `toml:"builtin"`     // name of a registered built-in, or...
	WasmModule    string `toml:"wasm_module"` // ...path to a compiled WASM module
	AcceptsBinary bool   `toml:"accepts_binary"`
	AcceptsText   bool   `toml:"accepts_text"`
}

// Manifest is the parsed merge-drivers.toml document (SPEC_FULL §4.5).
type Manifest struct {
	Driver []ManifestEntry `toml:"driver"`
}

// LoadManifest parses path, returning an empty Manifest if it does not
// exist.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is the repo's own merge-drivers.toml
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{}, nil
		}
		return nil, jjgerr.Wrap(jjgerr.KindStorageReadFailed, "read merge-drivers.toml", err)
	}
	var m Manifest
	if _, err := toml.Decode(string(data), &m); err != nil {
		return nil, jjgerr.Wrap(jjgerr.KindStorageCorrupt, "parse merge-drivers.toml", err)
	}
	return &m, nil
}

// Apply registers every manifest entry against r, resolving "builtin"
// entries from builtins and "wasm_module" entries as WasmDriver instances
// whose module bytes the caller has already loaded via wasmLoader.
func (m *Manifest) Apply(r *Registry, builtins map[string]Driver, wasmLoader func(path string) ([]byte, error)) error {
	for _, e := range m.Driver {
		entry := Entry{Glob: e.Glob, AcceptsBinary: e.AcceptsBinary, AcceptsText: e.AcceptsText}
		switch {
		case e.Builtin != "":
			d, ok := builtins[e.Builtin]
			if !ok {
				return jjgerr.New(jjgerr.KindInvalidArgument, "unknown built-in merge driver: "+e.Builtin)
			}
			entry.Driver = d
		case e.WasmModule != "":
			module, err := wasmLoader(e.WasmModule)
			if err != nil {
				return jjgerr.Wrap(jjgerr.KindDriverFailed, "load wasm module "+e.WasmModule, err)
			}
			entry.Driver = NewWasmDriver(WasmDriverConfig{Module: module, Name: e.WasmModule})
		default:
			return jjgerr.New(jjgerr.KindInvalidArgument, "driver entry for "+e.Glob+" names neither builtin nor wasm_module")
		}
		r.Register(entry)
	}
	return nil
}
