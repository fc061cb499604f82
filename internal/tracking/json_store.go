package tracking

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// JSONFileName is the tracking file inside the storage directory.
const JSONFileName = ".file_tracking"

// JSONStore keeps records as one JSON object keyed by absolute path.
type JSONStore struct {
	path string
}

// NewJSONStore returns a store writing to <storageDir>/.file_tracking.
func NewJSONStore(storageDir string) *JSONStore {
	return &JSONStore{path: filepath.Join(storageDir, JSONFileName)}
}

// Path returns the tracking file path.
func (s *JSONStore) Path() string { return s.path }

// Load reads the tracking file. A missing file is an empty map.
func (s *JSONStore) Load() (map[string]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Record{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	records := make(map[string]Record)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return records, nil
}

// Save writes records atomically through a temp file and rename.
func (s *JSONStore) Save(records map[string]Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode tracking: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write tracking: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace tracking: %w", err)
	}
	return nil
}

// Clear removes the tracking file.
func (s *JSONStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close is a no-op.
func (s *JSONStore) Close() error { return nil }

var _ Store = (*JSONStore)(nil)
