package mcp

import (
	"fmt"
	"strings"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/index"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/runtimecfg"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/search"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/store"
)

// snippetRunes caps the content shown per result in markdown output.
const snippetRunes = 600

// ToSearchResultOutput converts a retrieved document.
func ToSearchResultOutput(d *store.Document) SearchResultOutput {
	return SearchResultOutput{
		DocumentID: d.ID,
		Title:      d.Title,
		FileName:   metaString(d, index.MetaFileName),
		FilePath:   metaString(d, index.MetaFilePath),
		Score:      metaFloat(d, search.MetaScore),
		Content:    d.Content,
	}
}

// FormatSearchResults renders results as markdown.
func FormatSearchResults(out SearchOutput) string {
	if len(out.Results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", out.Query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", out.Query)
	fmt.Fprintf(&sb, "Found %d result", len(out.Results))
	if len(out.Results) != 1 {
		sb.WriteString("s")
	}
	fmt.Fprintf(&sb, " (%s mode)\n\n", out.Mode)

	for i, r := range out.Results {
		source := r.FilePath
		if source == "" {
			source = r.Title
		}
		fmt.Fprintf(&sb, "### %d. %s (score: %.3f)\n", i+1, source, r.Score)
		fmt.Fprintf(&sb, "Document: `%s`\n\n", r.DocumentID)
		sb.WriteString("```\n")
		sb.WriteString(snippet(r.Content, snippetRunes))
		sb.WriteString("\n```\n\n")
	}
	return sb.String()
}

// FormatSearchConfig renders retrieval parameters as markdown.
func FormatSearchConfig(info runtimecfg.Info) string {
	var sb strings.Builder
	sb.WriteString("## Search Configuration\n\n")
	fmt.Fprintf(&sb, "- lexical_top_k: %d\n", info.LexicalTopK)
	fmt.Fprintf(&sb, "- vector_top_k: %d\n", info.VectorTopK)
	fmt.Fprintf(&sb, "- hybrid_top_k: %d\n", info.HybridTopK)
	fmt.Fprintf(&sb, "- documents_per_query: %d\n", info.DocumentsPerQuery)
	fmt.Fprintf(&sb, "- min_score_threshold: %g\n", info.MinScoreThreshold)
	if info.UsingOverrides {
		sb.WriteString("\nRuntime overrides are active.\n")
	} else {
		sb.WriteString("\nUsing configured defaults.\n")
	}
	return sb.String()
}

func snippet(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "..."
}

func metaString(d *store.Document, key string) string {
	if v, ok := d.Metadata[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func metaFloat(d *store.Document, key string) float64 {
	switch v := d.Metadata[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}
