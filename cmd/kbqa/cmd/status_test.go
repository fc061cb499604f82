package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/ui"
)

func TestStatusCmd_BeforeIndexing(t *testing.T) {
	setupProject(t)

	out, err := execute(t, "status")

	require.NoError(t, err)
	assert.Contains(t, out, "kbqa status")
	assert.Contains(t, out, "never")
}

func TestStatusCmd_JSON(t *testing.T) {
	root := setupProject(t)
	mustIndex(t)

	out, err := execute(t, "status", "--json")
	require.NoError(t, err)

	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, root, info.SourceDir)
	assert.Equal(t, "json", info.TrackingBackend)
	assert.Equal(t, 3, info.TrackedFiles)
	assert.Positive(t, info.TrackedBytes)
	assert.GreaterOrEqual(t, info.Documents, 3)
	assert.Equal(t, info.Documents, info.Vectors)
	assert.Equal(t, "static", info.Embedder.Backend)
	assert.False(t, info.LastIndexed.IsZero())
}

func TestStatusCmd_SQLiteTracking(t *testing.T) {
	// Given: the sqlite tracking backend
	setupProject(t)
	t.Setenv("KBQA_TRACKING_BACKEND", "sqlite")
	mustIndex(t)

	// When: reading status
	out, err := execute(t, "status", "--json")
	require.NoError(t, err)

	// Then: the records were persisted through sqlite
	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "sqlite", info.TrackingBackend)
	assert.Equal(t, 3, info.TrackedFiles)
}
