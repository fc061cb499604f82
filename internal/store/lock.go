package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	kberrors "github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/errors"
)

// LockFileName is the lock file inside the storage directory.
const LockFileName = ".lock"

// StorageLock is an exclusive cross-process lock on a storage directory.
// One indexing run holds it at a time.
type StorageLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewStorageLock returns an unlocked lock for <storageDir>/.lock.
func NewStorageLock(storageDir string) *StorageLock {
	path := filepath.Join(storageDir, LockFileName)
	return &StorageLock{path: path, flock: flock.New(path)}
}

// Acquire takes the lock without blocking. A lock held elsewhere yields an
// IndexLockHeld error.
func (l *StorageLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return kberrors.New(kberrors.ErrCodeStorageUnreachable, "failed to create storage directory", err).
			WithDetail("path", filepath.Dir(l.path))
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return kberrors.IndexLockHeld(l.path)
	}
	l.locked = true
	return nil
}

// Release unlocks. Safe to call when not locked.
func (l *StorageLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *StorageLock) Path() string { return l.path }

// IsLocked reports whether this process holds the lock.
func (l *StorageLock) IsLocked() bool { return l.locked }
