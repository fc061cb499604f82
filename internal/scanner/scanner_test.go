package scanner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/logging"
)

func touch(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("content of "+rel), 0o644))
}

func paths(files []*FileInfo) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, filepath.ToSlash(f.Path))
	}
	return out
}

func txtOrMD(path string) bool {
	return strings.HasSuffix(path, ".txt") || strings.HasSuffix(path, ".md")
}

func TestScanner_FiltersBySupportAndSorts(t *testing.T) {
	// Given: a directory with two supported files and one unsupported
	root := t.TempDir()
	touch(t, root, "b.md")
	touch(t, root, "a.txt")
	touch(t, root, "weird.xyz")

	// When: scanning with a parser filter
	files, err := New(logging.Discard()).Scan(context.Background(), Options{RootDir: root, Supports: txtOrMD})

	// Then: only supported files, sorted by path
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.md"}, paths(files))
	assert.True(t, filepath.IsAbs(files[0].AbsPath))
	assert.Equal(t, int64(len("content of a.txt")), files[0].Size)
	assert.False(t, files[0].ModTime.IsZero())
}

func TestScanner_SkipsHiddenAndStorageDirs(t *testing.T) {
	// Given: hidden directories and a storage directory with files
	root := t.TempDir()
	touch(t, root, "docs/keep.txt")
	touch(t, root, ".git/config.txt")
	touch(t, root, ".kbqa/tracking.txt")
	touch(t, root, "store/data.txt")

	// When: scanning with store/ as a skip directory
	files, err := New(logging.Discard()).Scan(context.Background(), Options{
		RootDir:  root,
		SkipDirs: []string{filepath.Join(root, "store")},
	})

	// Then: only the regular document remains
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/keep.txt"}, paths(files))
}

func TestScanner_ExcludePatterns(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "guide.md")
	touch(t, root, "drafts/wip.md")
	touch(t, root, "deep/drafts/older.md")
	touch(t, root, "archive/2020/old.md")
	touch(t, root, "notes/tmp.log.txt")
	touch(t, root, "app.min.js")
	touch(t, root, ".env.local")
	touch(t, root, "server.pem")

	files, err := New(nil).Scan(context.Background(), Options{
		RootDir:         root,
		ExcludePatterns: []string{"**/drafts/**", "archive/**", "*.log.txt", "**/*.min.js"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"guide.md"}, paths(files))
}

func TestScanner_SkipsSymlinksByDefault(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	touch(t, root, "real.txt")
	require.NoError(t, os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")))

	files, err := New(nil).Scan(context.Background(), Options{RootDir: root})
	require.NoError(t, err)
	assert.Equal(t, []string{"real.txt"}, paths(files))

	files, err = New(nil).Scan(context.Background(), Options{RootDir: root, FollowSymlinks: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"link.txt", "real.txt"}, paths(files))
}

func TestScanner_RootErrors(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "file.txt")

	_, err := New(nil).Scan(context.Background(), Options{RootDir: filepath.Join(root, "missing")})
	assert.Error(t, err)

	_, err = New(nil).Scan(context.Background(), Options{RootDir: filepath.Join(root, "file.txt")})
	assert.Error(t, err)
}

func TestScanner_CancelledContext(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a.txt")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(nil).Scan(ctx, Options{RootDir: root})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatchFilePattern(t *testing.T) {
	tests := []struct {
		pattern string
		relPath string
		want    bool
	}{
		{"*.tmp", "a/b/x.tmp", true},
		{"*.tmp", "a/b/x.txt", false},
		{"**/*.min.js", "lib/app.min.js", true},
		{"docs/*.md", "docs/a.md", true},
		{"docs/*.md", "other/docs/a.md", false},
		{"**/docs/a.md", "x/docs/a.md", true},
		{"archive/**", "archive/y/z.md", true},
		{"archive/**", "archived/z.md", false},
		{"**/node_modules/**", "web/node_modules/pkg/index.js", true},
		{"README.md", "sub/README.md", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.relPath, func(t *testing.T) {
			rel := filepath.FromSlash(tt.relPath)
			assert.Equal(t, tt.want, matchFilePattern(filepath.Base(rel), rel, tt.pattern))
		})
	}
}

func TestExcluded(t *testing.T) {
	patterns := []string{"**/node_modules/**", "drafts/**", "*.tmp"}

	tests := []struct {
		rel   string
		isDir bool
		want  bool
	}{
		{"docs/guide.md", false, false},
		{"docs", true, false},
		{".git/config", false, true},
		{"docs/.cache", true, true},
		{"web/node_modules/x/readme.md", false, true},
		{"drafts/note.md", false, true},
		{"drafts", true, true},
		{"notes/scratch.tmp", false, true},
		{"config/.env", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, Excluded(filepath.FromSlash(tt.rel), tt.isDir, patterns))
		})
	}
}
