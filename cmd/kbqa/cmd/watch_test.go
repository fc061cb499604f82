package cmd

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/index"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/output"
)

// syncBuffer is a bytes.Buffer safe for one writer and one poller.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestReportBuild(t *testing.T) {
	tests := []struct {
		name   string
		result index.BuildResult
		want   []string
	}{
		{
			name:   "nothing changed",
			result: index.BuildResult{},
			want:   []string{"Index is up to date"},
		},
		{
			name:   "changed files",
			result: index.BuildResult{TotalFiles: 2, SuccessCount: 2, TotalDocuments: 3, RemovedCount: 1},
			want:   []string{"Indexed 2/2 changed files (3 documents), removed 1"},
		},
		{
			name:   "failures are reported",
			result: index.BuildResult{TotalFiles: 3, SuccessCount: 2, FailedCount: 1},
			want:   []string{"Indexed 2/3", "1 files failed"},
		},
		{
			name:   "removals only",
			result: index.BuildResult{RemovedCount: 2},
			want:   []string{"removed 2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a writer over a buffer
			buf := new(bytes.Buffer)

			// When: reporting the build
			err := reportBuild(output.New(buf), tt.result)

			// Then: the summary names the counts
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestReportBuild_RunErrorIsReturned(t *testing.T) {
	// Given: a build that failed as a whole
	runErr := errors.New("storage unreachable")

	// When: reporting it
	err := reportBuild(output.New(new(bytes.Buffer)), index.BuildResult{Err: runErr})

	// Then: the run error is surfaced
	assert.ErrorIs(t, err, runErr)
}

func TestRunWatch_IndexesNewFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("watches the filesystem")
	}

	// Given: a project being watched
	root := setupProject(t)
	writeFile(t, filepath.Join(root, projectConfigFile), "paths:\n  watch_debounce: 50ms\n")

	buf := &syncBuffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runWatch(ctx, cmd, "", &watchOptions{offline: true}) }()

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(buf.String()), []byte("Watching"))
	}, 10*time.Second, 20*time.Millisecond, buf.String())

	// When: a document is added
	writeFile(t, filepath.Join(root, "onboarding.md"), "# Onboarding\n\nNew hires receive a laptop on their first day.")

	// Then: an incremental build indexes just that file
	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(buf.String()), []byte("Indexed 1/1 changed files"))
	}, 15*time.Second, 50*time.Millisecond, buf.String())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
