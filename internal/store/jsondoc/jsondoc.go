// Package jsondoc persists small JSON state documents on disk.
package jsondoc

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"herald/internal/logging"
)

// Load decodes the document at path into v. A missing file leaves v
// untouched and returns nil. A file that cannot be decoded is reported as a
// warning and v is reset with reset, so callers always get a usable value.
func Load(path string, v any, reset func()) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		logging.Warn("state_file_corrupt", logging.Fields{"path": path, "error": err.Error()})
		if reset != nil {
			reset()
		}
	}
	return nil
}

// Save writes v as indented JSON, replacing path atomically.
func Save(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
