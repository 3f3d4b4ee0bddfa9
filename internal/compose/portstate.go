package compose

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Port state lives under the workspace tooling directory as a single flat
// JSON document, e.g. {"POSTGRES_HOST_PORT": 5433}. It is written by the dev
// flow after Compose reports its bindings and read by later test/exec runs.
const (
	toolingDirName    = ".gkm"
	portStateFileName = "ports.json"
)

// PortStatePath returns the fixed location of the port state document for a
// workspace root.
func PortStatePath(root string) string {
	return filepath.Join(root, toolingDirName, portStateFileName)
}

// SavePortState replaces the persisted var-to-port mapping wholesale. The
// write goes to a temp file first and is renamed into place so a concurrent
// reader can never observe a truncated document.
func SavePortState(root string, ports map[string]int) error {
	path := PortStatePath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create tooling directory: %w", err)
	}
	data, err := json.MarshalIndent(ports, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode port state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), portStateFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp port state: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write port state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp port state: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace port state: %w", err)
	}
	return nil
}

// LoadPortState reads the persisted mapping. A missing file is the normal
// first-run condition and yields an empty map.
func LoadPortState(root string) (map[string]int, error) {
	data, err := os.ReadFile(PortStatePath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]int{}, nil
		}
		return nil, fmt.Errorf("failed to read port state: %w", err)
	}
	ports := map[string]int{}
	if err := json.Unmarshal(data, &ports); err != nil {
		return nil, fmt.Errorf("failed to parse port state: %w", err)
	}
	return ports, nil
}
