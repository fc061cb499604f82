// Package tracking records which source files have been indexed, so that
// incremental builds can skip files whose modification time and size are
// unchanged.
package tracking

import (
	"fmt"
	"strings"
)

// Record is the persisted fingerprint of one indexed file.
type Record struct {
	FilePath     string   `json:"filePath" db:"file_path"`
	FileName     string   `json:"fileName" db:"file_name"`
	LastModified int64    `json:"lastModified" db:"last_modified"` // epoch ms
	FileSize     int64    `json:"fileSize" db:"file_size"`
	IndexedAt    int64    `json:"indexedAt" db:"indexed_at"` // epoch ms
	DocumentIDs  []string `json:"documentIds,omitempty" db:"-"`
}

// Stats summarizes the tracked files.
type Stats struct {
	TrackedFiles int   `json:"trackedFiles"`
	TotalBytes   int64 `json:"totalBytes"`
}

// Store persists the full record map keyed by absolute path.
type Store interface {
	// Load returns the persisted records. A missing store yields an empty map.
	Load() (map[string]Record, error)
	// Save replaces the persisted records with records.
	Save(records map[string]Record) error
	// Clear deletes all persisted records.
	Clear() error
	Close() error
}

// OpenStore returns the store for backend ("json", "sqlite", or "" for json)
// rooted at storageDir.
func OpenStore(backend, storageDir string) (Store, error) {
	switch strings.ToLower(backend) {
	case "", "json":
		return NewJSONStore(storageDir), nil
	case "sqlite":
		return NewSQLiteStore(storageDir)
	default:
		return nil, fmt.Errorf("unknown tracking backend %q", backend)
	}
}
