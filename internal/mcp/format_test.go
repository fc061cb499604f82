package mcp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/runtimecfg"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/store"
)

func TestFormatSearchResults_Empty(t *testing.T) {
	assert.Equal(t, `No results found for "nothing"`, FormatSearchResults(SearchOutput{Query: "nothing"}))
}

func TestFormatSearchResults(t *testing.T) {
	// Given: two results, one without a path
	out := SearchOutput{
		Query: "install",
		Mode:  "hybrid",
		Results: []SearchResultOutput{
			{DocumentID: "a", Title: "guide.md", FilePath: "/kb/guide.md", Score: 0.851, Content: "run make"},
			{DocumentID: "b", Title: "notes", Score: 0.4, Content: strings.Repeat("x", snippetRunes+10)},
		},
	}

	// When: formatting
	md := FormatSearchResults(out)

	// Then: headers, scores and truncated content appear
	assert.Contains(t, md, `## Search Results for "install"`)
	assert.Contains(t, md, "Found 2 results (hybrid mode)")
	assert.Contains(t, md, "### 1. /kb/guide.md (score: 0.851)")
	assert.Contains(t, md, "### 2. notes (score: 0.400)")
	assert.Contains(t, md, "...")
	assert.NotContains(t, md, strings.Repeat("x", snippetRunes+1))
}

func TestFormatSearchConfig(t *testing.T) {
	md := FormatSearchConfig(runtimecfg.Info{HybridTopK: 5, MinScoreThreshold: 0.3, UsingOverrides: true})

	assert.Contains(t, md, "- hybrid_top_k: 5")
	assert.Contains(t, md, "- min_score_threshold: 0.3")
	assert.Contains(t, md, "Runtime overrides are active.")
}

func TestToSearchResultOutput_MissingMetadata(t *testing.T) {
	// Given: a document without metadata
	d := &store.Document{ID: "x", Title: "t", Content: "c"}

	// When: converting
	r := ToSearchResultOutput(d)

	// Then: optional fields stay empty
	assert.Equal(t, "x", r.DocumentID)
	assert.Empty(t, r.FilePath)
	assert.Zero(t, r.Score)
}

func TestSnippet_Runes(t *testing.T) {
	assert.Equal(t, "知识...", snippet("知识库问答", 2))
	assert.Equal(t, "short", snippet("short", 10))
}
