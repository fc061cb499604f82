package search

import (
	"context"
	"time"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/store"
)

// Searcher is the query surface used by the CLI and the MCP server.
type Searcher interface {
	// HybridSearch returns documents ordered by fused score, best first.
	HybridSearch(ctx context.Context, query string) ([]*store.Document, error)

	// KeywordSearch returns lexical results in rank order.
	KeywordSearch(ctx context.Context, query string) ([]*store.Document, error)

	// Explain runs the hybrid pipeline and returns the scoring breakdown.
	Explain(ctx context.Context, query string) (*Explanation, error)
}

// Explanation describes how a query was scored.
type Explanation struct {
	Query    string   `json:"query"`
	Keywords []string `json:"keywords"`

	// VectorUsed is false when the query fell back to lexical-only search.
	VectorUsed bool `json:"vector_used"`

	LexicalHits int `json:"lexical_hits"`
	VectorHits  int `json:"vector_hits"`

	// Candidates is the number of distinct documents before filtering.
	Candidates int `json:"candidates"`

	// Entries are the surviving entries, best first.
	Entries []*ScoreEntry `json:"entries"`

	Duration time.Duration `json:"duration"`
}
