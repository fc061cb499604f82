package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/search"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/store"
)

func testDocs() []*store.Document {
	return []*store.Document{
		{ID: "a", Title: "guide.md", Content: "Install\n\nrun make\nthen test\nextra", Metadata: map[string]any{"filePath": "/kb/guide.md", "score": 0.91}},
		{ID: "b", Title: "notes", Content: "one line", Metadata: map[string]any{"score": 0.4}},
	}
}

func TestWriter_Status_PrintsIconAndMessage(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a status message with and without icon
	w.Status("🔍", "Searching...")
	w.Status("", "indented")

	// Then: output has icon and indentation
	assert.Equal(t, "🔍 Searching...\n   indented\n", buf.String())
}

func TestWriter_SuccessWarningError(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Successf("Indexed %d files", 3)
	w.Warningf("skipped %d", 1)
	w.Error("failed")

	out := buf.String()
	assert.Contains(t, out, "✅ Indexed 3 files")
	assert.Contains(t, out, "skipped 1")
	assert.Contains(t, out, "❌ failed")
}

func TestWriter_Code_IndentsLines(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Code("a\nb")

	assert.Equal(t, "\n  a\n  b\n\n", buf.String())
}

func TestWriter_Results(t *testing.T) {
	// Given: two documents
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing results
	w.Results("install", testDocs())

	// Then: each result has a location, score and snippet
	out := buf.String()
	assert.Contains(t, out, `Found 2 results for "install":`)
	assert.Contains(t, out, "1. /kb/guide.md (score: 0.910)")
	assert.Contains(t, out, "2. notes (score: 0.400)")
	assert.Contains(t, out, "then test")
	assert.NotContains(t, out, "extra")
}

func TestWriter_Results_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Results("nothing", nil)

	assert.Contains(t, buf.String(), `No results found for "nothing"`)
}

func TestWriter_JSON(t *testing.T) {
	// Given: results as JSON
	buf := &bytes.Buffer{}
	require.NoError(t, New(buf).JSON(ToResults(testDocs())))

	// Then: rank, path and score survive
	var got []Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, "/kb/guide.md", got[0].FilePath)
	assert.Equal(t, 0.91, got[0].Score)
	assert.Empty(t, got[1].FilePath)
}

func TestWriter_Explanation(t *testing.T) {
	tests := []struct {
		name   string
		ex     *search.Explanation
		expect []string
	}{
		{
			name: "hybrid",
			ex: &search.Explanation{
				Query: "install guide", Keywords: []string{"install", "guide"},
				VectorUsed: true, LexicalHits: 3, VectorHits: 2, Candidates: 4,
				Entries: []*search.ScoreEntry{
					{DocumentID: "a", LexicalRank: 1, LexicalScore: 1, VectorSimilarity: 0.8, InVector: true, FusedScore: 0.86},
					{DocumentID: "b", VectorSimilarity: 0.5, InVector: true, FusedScore: 0.35},
				},
				Duration: 3 * time.Millisecond,
			},
			expect: []string{
				"Mode: Hybrid", "Lexical Results: 3 (weight: 0.30)", "Vector Results: 2 (weight: 0.70)",
				"1. a (score: 0.860)", "Lexical: rank 1 (score: 1.000) | Vector: similarity 0.800",
				"Lexical: absent | Vector: similarity 0.500", "Candidates: 4, kept: 2",
			},
		},
		{
			name: "keyword fallback",
			ex: &search.Explanation{
				Query: "x", Keywords: []string{"x"}, LexicalHits: 1, Candidates: 1,
				Entries: []*search.ScoreEntry{{DocumentID: "k", LexicalRank: 1, LexicalScore: 1, FusedScore: 1}},
			},
			expect: []string{"Mode: Keyword only", "Vector: absent", "1.000"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			New(buf).Explanation(tt.ex, search.DefaultWeights())
			for _, s := range tt.expect {
				assert.Contains(t, buf.String(), s)
			}
		})
	}
}

func TestSnippet(t *testing.T) {
	// Blank lines are skipped and long lines truncated
	lines := Snippet("\n  first  \n\n"+strings.Repeat("x", 200)+"\nthird\nfourth", 3)

	require.Len(t, lines, 3)
	assert.Equal(t, "first", lines[0])
	assert.Len(t, lines[1], 120)
	assert.True(t, strings.HasSuffix(lines[1], "..."))
	assert.Equal(t, "third", lines[2])
}
