package mcp

import (
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/async"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/runtimecfg"
)

// SearchInput is the input schema for hybrid_search and keyword_search.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the question or keywords to search for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results; defaults to the configured hybrid_top_k"`
}

// SearchOutput is the output schema for the search tools.
type SearchOutput struct {
	Query      string               `json:"query"`
	Mode       string               `json:"mode" jsonschema:"hybrid, or keyword when vector search is unavailable or not requested"`
	Results    []SearchResultOutput `json:"results"`
	Count      int                  `json:"count"`
	DurationMs int64                `json:"duration_ms"`
}

// SearchResultOutput is one retrieved document.
type SearchResultOutput struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	FileName   string  `json:"file_name,omitempty"`
	FilePath   string  `json:"file_path,omitempty"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

// ConfigInput is the input schema for get_search_config and reset_search_config.
type ConfigInput struct{}

// UpdateConfigInput is the input schema for update_search_config.
// Omitted fields keep their current value.
type UpdateConfigInput struct {
	LexicalTopK       *int     `json:"lexical_top_k,omitempty" jsonschema:"lexical candidates per query, at least 1"`
	VectorTopK        *int     `json:"vector_top_k,omitempty" jsonschema:"vector candidates per query, at least 1"`
	HybridTopK        *int     `json:"hybrid_top_k,omitempty" jsonschema:"results returned after fusion, at least 1"`
	DocumentsPerQuery *int     `json:"documents_per_query,omitempty" jsonschema:"documents handed to answer generation, at least 1"`
	MinScoreThreshold *float64 `json:"min_score_threshold,omitempty" jsonschema:"minimum fused score between 0 and 1"`
}

func (in UpdateConfigInput) update() runtimecfg.Update {
	return runtimecfg.Update{
		LexicalTopK:       in.LexicalTopK,
		VectorTopK:        in.VectorTopK,
		HybridTopK:        in.HybridTopK,
		DocumentsPerQuery: in.DocumentsPerQuery,
		MinScoreThreshold: in.MinScoreThreshold,
	}
}

// IndexStatusInput is the input schema for index_status (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput is the output schema for index_status.
type IndexStatusOutput struct {
	SourceDir    string        `json:"source_dir"`
	StoragePath  string        `json:"storage_path"`
	TrackedFiles int           `json:"tracked_files"`
	TrackedBytes int64         `json:"tracked_bytes"`
	Documents    int           `json:"documents"`
	Vectors      int           `json:"vectors"`
	LastIndexed  string        `json:"last_indexed,omitempty"`
	Embeddings   EmbeddingInfo `json:"embeddings"`

	// Indexing is set while the server builds the index in the background.
	Indexing *async.Snapshot `json:"indexing,omitempty"`
}

// EmbeddingInfo describes the vector side of retrieval.
type EmbeddingInfo struct {
	Provider   string `json:"provider" jsonschema:"ollama, static, or none"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`

	// VectorAvailable is false once the vector side fails or was never configured.
	VectorAvailable bool `json:"vector_available"`
}
