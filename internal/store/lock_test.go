package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/errors"
)

func TestStorageLock_SecondHolderGetsIndexLockHeld(t *testing.T) {
	// Given: a lock held on a storage directory
	dir := t.TempDir()
	first := NewStorageLock(dir)
	require.NoError(t, first.Acquire())
	defer func() { _ = first.Release() }()
	assert.True(t, first.IsLocked())

	// When: another lock on the same directory is acquired
	err := NewStorageLock(dir).Acquire()

	// Then: it fails with IndexLockHeld
	require.Error(t, err)
	assert.True(t, kberrors.HasCode(err, kberrors.ErrCodeIndexLockHeld))
}

func TestStorageLock_ReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	first := NewStorageLock(dir)
	require.NoError(t, first.Acquire())
	require.NoError(t, first.Release())
	require.NoError(t, first.Release())

	second := NewStorageLock(dir)
	require.NoError(t, second.Acquire())
	assert.NoError(t, second.Release())
}

func TestBuildStopWordMap(t *testing.T) {
	m := BuildStopWordMap([]string{"The", "a", "的"})

	assert.Contains(t, m, "the")
	assert.Contains(t, m, "的")
	assert.Len(t, m, 3)
}
