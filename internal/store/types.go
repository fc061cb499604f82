// Package store holds the lexical (bleve) and vector (HNSW) indexes that
// back retrieval, plus the storage directory lock.
package store

import (
	"context"
	"fmt"
	"maps"
)

// Document is the unit stored in both indexes.
type Document struct {
	ID       string
	Title    string
	Content  string
	Metadata map[string]any
}

// Clone returns a copy with its own metadata map.
func (d *Document) Clone() *Document {
	c := *d
	c.Metadata = maps.Clone(d.Metadata)
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	return &c
}

// LexicalResult is one ranked lexical hit.
type LexicalResult struct {
	ID    string
	Score float64
}

// VectorResult is one vector hit.
type VectorResult struct {
	ID string
	// Similarity is the cosine similarity, 1 - cosine distance.
	Similarity float64
}

// LexicalIndex is a full-text index. Writes are buffered until Commit.
type LexicalIndex interface {
	// Index queues doc for the next commit, replacing any doc with the same ID.
	Index(ctx context.Context, doc *Document) error
	// Delete queues removal of ids for the next commit.
	Delete(ctx context.Context, ids []string) error
	// Commit makes queued writes visible to Search, Get and Count.
	Commit(ctx context.Context) error
	// Search returns up to limit hits in rank order.
	Search(ctx context.Context, query string, limit int) ([]*LexicalResult, error)
	// Get returns the stored document, or nil when id is unknown.
	Get(ctx context.Context, id string) (*Document, error)
	// DeleteAll drops every document, committed or pending.
	DeleteAll(ctx context.Context) error
	// Count returns the committed document count.
	Count() (int, error)
	Close() error
}

// VectorIndex is a nearest-neighbour index over document embeddings.
type VectorIndex interface {
	// Add inserts or replaces the vector for id.
	Add(ctx context.Context, id string, vector []float32) error
	// Search returns up to limit hits with similarity >= minSimilarity, best first.
	Search(ctx context.Context, vector []float32, limit int, minSimilarity float64) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	DeleteAll(ctx context.Context) error
	Count() int
	Dimensions() int
	// Save persists the index. In-memory indexes return nil.
	Save() error
	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'kbqa index --rebuild')", e.Expected, e.Got)
}
