// Package parser extracts plain text from source files.
package parser

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	kberrors "github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/errors"
)

// Parser turns a file into text content.
type Parser interface {
	// Parse returns the text content of path. Unsupported extensions yield
	// an UnsupportedFormat error; unreadable content yields ParseFailure.
	Parse(path string) (string, error)

	// Supports reports whether Parse handles path's extension.
	Supports(path string) bool
}

// binarySniffLen is how much of a file is checked for NUL bytes.
const binarySniffLen = 8 * 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DefaultExtensions are the plain-text family handled by TextParser.
var DefaultExtensions = []string{
	".txt", ".md", ".markdown", ".csv", ".log", ".json", ".yaml", ".yml",
	".xml", ".html", ".htm", ".rst", ".ini", ".toml", ".java", ".go",
	".py", ".js", ".ts", ".sql", ".sh",
}

// TextParser reads plain-text files. HTML is reduced to its visible text.
type TextParser struct {
	extensions map[string]struct{}
}

// NewTextParser creates a parser for the given extensions, or
// DefaultExtensions when none are given.
func NewTextParser(extensions ...string) *TextParser {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	set := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return &TextParser{extensions: set}
}

// Extensions returns the supported extensions, sorted.
func (p *TextParser) Extensions() []string {
	exts := make([]string, 0, len(p.extensions))
	for ext := range p.extensions {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Supports implements Parser.
func (p *TextParser) Supports(path string) bool {
	_, ok := p.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Parse implements Parser.
func (p *TextParser) Parse(path string) (string, error) {
	if !p.Supports(path) {
		return "", kberrors.UnsupportedFormat(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", kberrors.ParseFailure(path, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return "", kberrors.ParseFailure(path, fmt.Errorf("binary content"))
	}
	if !utf8.Valid(data) {
		return "", kberrors.ParseFailure(path, fmt.Errorf("invalid UTF-8"))
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return StripHTML(string(data)), nil
	default:
		return string(data), nil
	}
}

var _ Parser = (*TextParser)(nil)

var (
	invisibleTags = regexp.MustCompile(`(?is)<(script|style|noscript|head|svg)[^>]*>.*?</(script|style|noscript|head|svg)>`)
	htmlComments  = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockTags     = regexp.MustCompile(`(?i)</?(p|div|br|hr|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	allTags       = regexp.MustCompile(`<[^>]+>`)
	multiSpaces   = regexp.MustCompile(`[ \t]+`)
)

// StripHTML removes markup and returns the readable text, one block per line.
func StripHTML(content string) string {
	content = invisibleTags.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")
	content = blockTags.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = multiSpaces.ReplaceAllString(content, " ")

	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
