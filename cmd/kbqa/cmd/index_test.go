package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/index"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/ui"
)

func TestIndexCmd_FullBuild(t *testing.T) {
	// Given: a project with three documents
	root := setupProject(t)

	// When: indexing it
	out := mustIndex(t)

	// Then: every file is indexed and the stores exist
	assert.Contains(t, out, "Complete: 3/3 files indexed")
	assert.Contains(t, out, "Embedder: static")
	assert.DirExists(t, filepath.Join(root, ".kbqa", lexicalDirName))
	assert.FileExists(t, filepath.Join(root, ".kbqa", vectorFileName))
}

func TestIndexCmd_SecondFullBuildLeavesIndex(t *testing.T) {
	setupProject(t)
	mustIndex(t)

	// When: running a full build again without --rebuild
	out := mustIndex(t)

	// Then: nothing is reindexed and the user is pointed at the options
	assert.Contains(t, out, "Complete: 0/0 files indexed")
	assert.Contains(t, out, "--incremental")
}

func TestIndexCmd_Incremental(t *testing.T) {
	root := setupProject(t)
	mustIndex(t)

	// Given: one file changed and one removed
	changed := filepath.Join(root, "billing.txt")
	writeFile(t, changed, "Invoices are issued on the fifteenth. Refunds take five working days.")
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(changed, future, future))
	require.NoError(t, os.Remove(filepath.Join(root, "guides", "vpn.md")))

	// When: running an incremental build
	out := mustIndex(t, "--incremental")

	// Then: only the change is processed and the removal is reported
	assert.Contains(t, out, "Complete: 1/1 files indexed")
	assert.Contains(t, out, "Removed: 1 vanished files")

	// And search sees the new content only
	out, err := execute(t, "search", "--keyword", "refunds")
	require.NoError(t, err)
	assert.Contains(t, out, "billing.txt")

	out, err = execute(t, "search", "--keyword", "gateway")
	require.NoError(t, err)
	assert.Contains(t, out, "No results found")
}

func TestIndexCmd_Rebuild(t *testing.T) {
	setupProject(t)
	mustIndex(t)

	out := mustIndex(t, "--rebuild")

	assert.Contains(t, out, "Complete: 3/3 files indexed")
}

func TestIndexCmd_PathArgument(t *testing.T) {
	// Given: documents in a subdirectory passed as the argument
	root := setupProject(t)

	// When: indexing only that directory
	out := mustIndex(t, filepath.Join(root, "guides"))

	// Then: one file is indexed
	assert.Contains(t, out, "Complete: 1/1 files indexed")
}

func TestIndexCmd_RebuildAndIncrementalExclusive(t *testing.T) {
	setupProject(t)

	_, err := execute(t, "index", "--rebuild", "--incremental")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestToProgressEvent(t *testing.T) {
	tests := []struct {
		in   index.Stage
		want ui.Stage
	}{
		{index.StageScanning, ui.StageScanning},
		{index.StageIndexing, ui.StageIndexing},
		{index.StageCommitting, ui.StageCommitting},
		{index.StageComplete, ui.StageComplete},
	}
	for _, tt := range tests {
		ev := toProgressEvent(index.Progress{Stage: tt.in, Current: 2, Total: 5, File: "a.md"})
		assert.Equal(t, tt.want, ev.Stage)
		assert.Equal(t, 2, ev.Current)
		assert.Equal(t, 5, ev.Total)
		assert.Equal(t, "a.md", ev.CurrentFile)
	}
}

func TestCompletionStats(t *testing.T) {
	stats := completionStats(index.BuildResult{
		TotalFiles:     4,
		SuccessCount:   3,
		FailedCount:    1,
		RemovedCount:   2,
		TotalDocuments: 7,
		BuildTimeMs:    1500,
	}, ui.EmbedderInfo{Backend: "static"})

	assert.Equal(t, 4, stats.Files)
	assert.Equal(t, 3, stats.Success)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2, stats.Removed)
	assert.Equal(t, 7, stats.Documents)
	assert.Equal(t, 1500*time.Millisecond, stats.Duration)
	assert.Equal(t, "static", stats.Embedder.Backend)
}
