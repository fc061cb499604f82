package scanner

import (
	"path/filepath"
	"strings"
)

// matchDirPattern reports whether a directory path matches an exclusion
// pattern. Supported forms: "**/name/**", "dir/**" and exact paths.
func matchDirPattern(relPath, pattern string) bool {
	pattern = filepath.FromSlash(pattern)
	sep := string(filepath.Separator)

	if strings.HasPrefix(pattern, "**"+sep) {
		name := strings.TrimSuffix(strings.TrimPrefix(pattern, "**"+sep), sep+"**")
		if strings.ContainsAny(name, "*?[") {
			return false
		}
		for _, part := range strings.Split(relPath, sep) {
			if part == name {
				return true
			}
		}
		return false
	}

	if prefix, ok := strings.CutSuffix(pattern, sep+"**"); ok {
		return relPath == prefix || strings.HasPrefix(relPath, prefix+sep)
	}

	return relPath == pattern
}

// matchFilePattern reports whether a file matches an exclusion pattern.
// Patterns with a directory part are matched against the relative path,
// others against the base name; "**/" matches any depth.
func matchFilePattern(baseName, relPath, pattern string) bool {
	pattern = filepath.FromSlash(pattern)
	sep := string(filepath.Separator)

	if strings.HasPrefix(pattern, "**"+sep) {
		rest := strings.TrimPrefix(pattern, "**"+sep)
		if strings.HasSuffix(rest, sep+"**") {
			// Directory pattern: any parent directory matches.
			dirs := strings.Split(filepath.Dir(relPath), sep)
			for i := range dirs {
				if matchDirPattern(strings.Join(dirs[:i+1], sep), pattern) {
					return true
				}
			}
			return false
		}
		if strings.Contains(rest, sep) {
			return globMatch(rest, relPath) || strings.HasSuffix(relPath, sep+rest)
		}
		return globMatch(rest, baseName)
	}

	if prefix, ok := strings.CutSuffix(pattern, sep+"**"); ok {
		return strings.HasPrefix(relPath, prefix+sep)
	}

	if strings.Contains(pattern, sep) {
		return globMatch(pattern, relPath)
	}
	return globMatch(pattern, baseName)
}

func globMatch(pattern, name string) bool {
	matched, err := filepath.Match(pattern, name)
	return err == nil && matched
}

// Excluded reports whether a scan with patterns would skip relPath: a
// hidden path component, an excluded directory, or an excluded or
// sensitive file.
func Excluded(relPath string, isDir bool, patterns []string) bool {
	relPath = filepath.Clean(relPath)
	parts := strings.Split(relPath, string(filepath.Separator))
	for _, part := range parts {
		if isHidden(part) {
			return true
		}
	}
	dirs := parts
	if !isDir {
		dirs = parts[:len(parts)-1]
	}
	for i := range dirs {
		if shouldExcludeDir(strings.Join(dirs[:i+1], string(filepath.Separator)), patterns) {
			return true
		}
	}
	return !isDir && shouldExcludeFile(relPath, patterns)
}
