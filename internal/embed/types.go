// Package embed turns text into vectors for the vector index. It offers a
// deterministic offline embedder, an Ollama HTTP embedder, and an LRU
// cache that wraps either.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// StaticDimensions is the embedding dimension of StaticEmbedder.
	StaticDimensions = 256

	// DefaultBatchSize is the default number of texts per Ollama request.
	DefaultBatchSize = 32

	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 30 * time.Second
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding of one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for several texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector returns v scaled to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
