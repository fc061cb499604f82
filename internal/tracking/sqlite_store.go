package tracking

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteFileName is the tracking database inside the storage directory.
const SQLiteFileName = "tracking.db"

const trackingSchema = `
CREATE TABLE IF NOT EXISTS file_tracking (
	file_path     TEXT PRIMARY KEY,
	file_name     TEXT NOT NULL,
	last_modified INTEGER NOT NULL,
	file_size     INTEGER NOT NULL,
	indexed_at    INTEGER NOT NULL,
	document_ids  TEXT NOT NULL DEFAULT '[]'
)`

// SQLiteStore keeps records in a single SQLite table.
type SQLiteStore struct {
	db   *sqlx.DB
	path string
}

// trackingRow is Record with the id list flattened to JSON text.
type trackingRow struct {
	Record
	DocumentIDsJSON string `db:"document_ids"`
}

// NewSQLiteStore opens (or creates) <storageDir>/tracking.db.
func NewSQLiteStore(storageDir string) (*SQLiteStore, error) {
	path := filepath.Join(storageDir, SQLiteFileName)

	// modernc.org/sqlite registers as "sqlite" (pure Go, no CGO).
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tracking database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(trackingSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize tracking schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string { return s.path }

// Load reads every row.
func (s *SQLiteStore) Load() (map[string]Record, error) {
	var rows []trackingRow
	err := s.db.Select(&rows, `SELECT file_path, file_name, last_modified, file_size, indexed_at, document_ids FROM file_tracking`)
	if err != nil {
		return nil, fmt.Errorf("failed to read tracking rows: %w", err)
	}

	records := make(map[string]Record, len(rows))
	for _, row := range rows {
		rec := row.Record
		if row.DocumentIDsJSON != "" {
			if err := json.Unmarshal([]byte(row.DocumentIDsJSON), &rec.DocumentIDs); err != nil {
				return nil, fmt.Errorf("corrupt document ids for %s: %w", rec.FilePath, err)
			}
		}
		records[rec.FilePath] = rec
	}
	return records, nil
}

// Save replaces all rows inside one transaction.
func (s *SQLiteStore) Save(records map[string]Record) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM file_tracking`); err != nil {
		return fmt.Errorf("failed to clear tracking rows: %w", err)
	}

	const insert = `INSERT INTO file_tracking
		(file_path, file_name, last_modified, file_size, indexed_at, document_ids)
		VALUES (:file_path, :file_name, :last_modified, :file_size, :indexed_at, :document_ids)`

	for _, rec := range records {
		ids, err := json.Marshal(rec.DocumentIDs)
		if err != nil {
			return fmt.Errorf("failed to encode document ids: %w", err)
		}
		if rec.DocumentIDs == nil {
			ids = []byte("[]")
		}
		if _, err := tx.NamedExec(insert, trackingRow{Record: rec, DocumentIDsJSON: string(ids)}); err != nil {
			return fmt.Errorf("failed to insert tracking row for %s: %w", rec.FilePath, err)
		}
	}

	return tx.Commit()
}

// Clear deletes every row.
func (s *SQLiteStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM file_tracking`)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
