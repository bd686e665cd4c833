package hostsettings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// JSONFile stores settings as an indented JSON object.
type JSONFile struct {
	Path string
}

// Load reads the file. A missing file yields no values.
func (f JSONFile) Load() (map[string]any, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.Path, err)
	}
	return values, nil
}

// Save replaces the file with values. The file is written next to its final
// location first and renamed into place.
func (f JSONFile) Save(values map[string]any) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return err
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.Path)
}

// Close does nothing.
func (JSONFile) Close() error { return nil }
