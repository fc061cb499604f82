// Package output formats CLI messages and search results.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/index"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/search"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/store"
)

// snippetLines is the number of content lines shown per text result.
const snippetLines = 3

// Writer provides formatted output for CLI.
type Writer struct {
	out io.Writer
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a status message with an icon.
// Errors from writing are ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Code prints an indented block.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Result is the JSON form of one retrieved document.
type Result struct {
	Rank       int     `json:"rank"`
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	FilePath   string  `json:"file_path,omitempty"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

// ToResults converts documents in rank order.
func ToResults(docs []*store.Document) []Result {
	results := make([]Result, 0, len(docs))
	for i, d := range docs {
		results = append(results, Result{
			Rank:       i + 1,
			DocumentID: d.ID,
			Title:      d.Title,
			FilePath:   metaString(d, index.MetaFilePath),
			Score:      metaFloat(d, search.MetaScore),
			Content:    d.Content,
		})
	}
	return results
}

// Results prints documents as a numbered list with short snippets.
func (w *Writer) Results(query string, docs []*store.Document) {
	if len(docs) == 0 {
		w.Status("", fmt.Sprintf("No results found for %q", query))
		return
	}

	w.Statusf("🔍", "Found %d results for %q:", len(docs), query)
	w.Newline()
	for _, r := range ToResults(docs) {
		location := r.FilePath
		if location == "" {
			location = r.Title
		}
		w.Statusf("", "%d. %s (score: %.3f)", r.Rank, location, r.Score)
		for _, line := range Snippet(r.Content, snippetLines) {
			w.Status("", "   "+line)
		}
		w.Newline()
	}
}

// Explanation prints the scoring breakdown of a query.
func (w *Writer) Explanation(ex *search.Explanation, weights search.Weights) {
	rule := strings.Repeat("═", 40)
	w.Status("", rule)
	w.Status("", "SEARCH EXPLANATION")
	w.Status("", rule)
	w.Status("", fmt.Sprintf("Query: %q", ex.Query))
	w.Status("", fmt.Sprintf("Keywords: %s", strings.Join(ex.Keywords, " ")))
	w.Newline()

	if ex.VectorUsed {
		w.Status("", "Mode: Hybrid (lexical + vector)")
		w.Status("", fmt.Sprintf("Lexical Results: %d (weight: %.2f)", ex.LexicalHits, weights.Lexical))
		w.Status("", fmt.Sprintf("Vector Results: %d (weight: %.2f)", ex.VectorHits, weights.Vector))
	} else {
		w.Status("", "Mode: Keyword only (vector search unavailable)")
		w.Status("", fmt.Sprintf("Lexical Results: %d", ex.LexicalHits))
	}
	w.Status("", fmt.Sprintf("Candidates: %d, kept: %d, took %s", ex.Candidates, len(ex.Entries), ex.Duration))
	w.Status("", rule)
	w.Newline()

	for i, e := range ex.Entries {
		w.Statusf("", "%d. %s (score: %.3f)", i+1, e.DocumentID, e.FusedScore)
		lexical := "absent"
		if e.LexicalRank > 0 {
			lexical = fmt.Sprintf("rank %d (score: %.3f)", e.LexicalRank, e.LexicalScore)
		}
		vector := "absent"
		if e.InVector {
			vector = fmt.Sprintf("similarity %.3f", e.VectorSimilarity)
		}
		w.Status("", fmt.Sprintf("      Lexical: %s | Vector: %s", lexical, vector))
	}
}

// Snippet returns up to n non-empty lines of content.
func Snippet(content string, n int) []string {
	lines := make([]string, 0, n)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > 120 {
			line = line[:117] + "..."
		}
		lines = append(lines, line)
		if len(lines) == n {
			break
		}
	}
	return lines
}

func metaString(d *store.Document, key string) string {
	if v, ok := d.Metadata[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func metaFloat(d *store.Document, key string) float64 {
	if v, ok := d.Metadata[key].(float64); ok {
		return v
	}
	return 0
}
