// Package scanner discovers the indexable files under a knowledge-base
// directory, applying exclusion patterns and the parser's extension filter.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileInfo contains metadata about a discovered file.
type FileInfo struct {
	Path    string    // Relative to the root
	AbsPath string    // Absolute path
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
}

// Options configures a scan.
type Options struct {
	// RootDir is the directory to scan.
	RootDir string

	// ExcludePatterns are glob-like patterns (see matchFilePattern).
	ExcludePatterns []string

	// SkipDirs are absolute directories never descended into, such as
	// the index storage directory.
	SkipDirs []string

	// Supports filters files by type. Nil accepts every file.
	Supports func(path string) bool

	// FollowSymlinks enables following symbolic links to files.
	FollowSymlinks bool
}

// Scanner walks a directory tree.
type Scanner struct {
	logger *slog.Logger
}

// New creates a Scanner.
func New(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{logger: logger}
}

// Scan returns every indexable file under opts.RootDir, sorted by path.
// Unreadable entries are skipped; a missing or non-directory root is an error.
func (s *Scanner) Scan(ctx context.Context, opts Options) ([]*FileInfo, error) {
	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}

	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", absRoot)
	}

	skip := make(map[string]struct{}, len(opts.SkipDirs))
	for _, dir := range opts.SkipDirs {
		if abs, err := filepath.Abs(dir); err == nil {
			skip[abs] = struct{}{}
		}
	}

	var files []*FileInfo
	unsupported := 0

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			s.logger.Debug("scan_entry_unreadable", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}

		if d.IsDir() {
			if _, ok := skip[path]; ok || isHidden(d.Name()) || shouldExcludeDir(relPath, opts.ExcludePatterns) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			if !opts.FollowSymlinks {
				return nil
			}
			target, err := os.Stat(path)
			if err != nil || !target.Mode().IsRegular() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}

		if shouldExcludeFile(relPath, opts.ExcludePatterns) {
			return nil
		}
		if opts.Supports != nil && !opts.Supports(path) {
			unsupported++
			return nil
		}

		fi, err := os.Stat(path)
		if err != nil {
			return nil
		}

		files = append(files, &FileInfo{
			Path:    relPath,
			AbsPath: path,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan %s: %w", absRoot, err)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	s.logger.Debug("scan_complete",
		slog.String("root", absRoot),
		slog.Int("files", len(files)),
		slog.Int("unsupported", unsupported))

	return files, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

func shouldExcludeDir(relPath string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchDirPattern(relPath, pattern) {
			return true
		}
	}
	return false
}

func shouldExcludeFile(relPath string, patterns []string) bool {
	baseName := filepath.Base(relPath)
	for _, pattern := range sensitiveFilePatterns {
		if matchFilePattern(baseName, relPath, pattern) {
			return true
		}
	}
	for _, pattern := range patterns {
		if matchFilePattern(baseName, relPath, pattern) {
			return true
		}
	}
	return false
}

// Sensitive file patterns that are never indexed.
var sensitiveFilePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"id_rsa",
	"id_ed25519",
	".netrc",
}
