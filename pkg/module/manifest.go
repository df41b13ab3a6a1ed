package module

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest describes one loadable WASM device-module type: what
// capabilities it exposes and where to find (and verify) its compiled
// module bytes. Each manifest is one "<type>.module.yaml" file directly
// inside a module-types directory; its Entrypoint names the .wasm file.
type Manifest struct {
	Name         string   `yaml:"name"`
	Version      string   `yaml:"version"`
	Author       string   `yaml:"author,omitempty"`
	Description  string   `yaml:"description,omitempty"`
	Entrypoint   string   `yaml:"entrypoint"`
	Checksum     string   `yaml:"checksum,omitempty"`
	Capabilities []string `yaml:"capabilities"`

	// path is the manifest file's own location, used to resolve a
	// relative Entrypoint.
	path string
}

// LoadManifest reads and validates a module manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("module: read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("module: parse manifest: %w", err)
	}
	m.path = path
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("module: invalid manifest %s: %w", path, err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if m.Entrypoint == "" {
		return fmt.Errorf("entrypoint is required")
	}
	if len(m.Capabilities) == 0 {
		return fmt.Errorf("at least one capability is required")
	}
	return nil
}

// WasmPath resolves Entrypoint relative to the manifest's own directory.
func (m *Manifest) WasmPath() string {
	if filepath.IsAbs(m.Entrypoint) {
		return m.Entrypoint
	}
	return filepath.Join(filepath.Dir(m.path), m.Entrypoint)
}

// VerifyChecksum checks wasmBytes against the manifest's declared
// checksum, if any. A manifest without a checksum is accepted
// unverified — local development modules aren't required to pin one.
func (m *Manifest) VerifyChecksum(wasmBytes []byte) error {
	if m.Checksum == "" {
		return nil
	}
	sum := sha256.Sum256(wasmBytes)
	got := hex.EncodeToString(sum[:])
	if got != m.Checksum {
		return fmt.Errorf("module: checksum mismatch for %s: expected %s, got %s", m.Name, m.Checksum, got)
	}
	return nil
}

// HasCapability reports whether the manifest declares cap.
func (m *Manifest) HasCapability(cap string) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// configJSON marshals an arbitrary config map for passing to a module's
// init export.
func configJSON(cfg map[string]string) ([]byte, error) {
	return json.Marshal(cfg)
}
