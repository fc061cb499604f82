// Package chunk splits large documents into overlapping, boundary-aware
// chunks that are indexed as independent documents.
package chunk

import (
	"fmt"
	"log/slog"
	"maps"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/store"
)

// Chunk size defaults, in characters (runes).
const (
	DefaultChunkSize    = 2000
	DefaultChunkOverlap = 400
)

// Metadata keys set on every chunk.
const (
	MetaParentDocID    = "parentDocId"
	MetaParentTitle    = "parentTitle"
	MetaChunkIndex     = "chunkIndex"
	MetaTotalChunks    = "totalChunks"
	MetaChunkStart     = "chunkStart"
	MetaChunkEnd       = "chunkEnd"
	MetaIsChunk        = "isChunk"
	MetaOriginalLength = "originalLength"
)

// boundaries are the runes a chunk prefers to end on.
var boundaries = map[rune]struct{}{
	'\n': {}, '。': {}, '.': {}, '！': {}, '!': {}, '？': {}, '?': {},
}

// Options configures the chunker.
type Options struct {
	ChunkSize    int // Maximum runes per chunk (default: DefaultChunkSize)
	ChunkOverlap int // Runes shared by consecutive chunks (default: DefaultChunkOverlap)
	MaxChunks    int // 0 means unlimited
}

// Chunker implements sliding-window chunking with sentence boundary search.
type Chunker struct {
	options Options
	logger  *slog.Logger
}

// NewChunker creates a chunker. Non-positive sizes fall back to the
// defaults and an overlap that is not below the size is reduced to a
// fifth of it.
func NewChunker(opts Options, logger *slog.Logger) *Chunker {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 5
	}
	if opts.MaxChunks < 0 {
		opts.MaxChunks = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{options: opts, logger: logger}
}

// Options returns the effective options.
func (c *Chunker) Options() Options { return c.options }

// span is a half-open rune range of the parent content.
type span struct {
	start, end int
}

// Chunk splits doc. A document that fits in one chunk is returned as the
// only element, unchanged.
func (c *Chunker) Chunk(doc *store.Document) []*store.Document {
	if doc == nil {
		return nil
	}

	runes := []rune(doc.Content)
	if len(runes) <= c.options.ChunkSize {
		return []*store.Document{doc}
	}

	spans := c.split(runes, doc.ID)
	total := len(spans)

	chunks := make([]*store.Document, 0, total)
	for i, sp := range spans {
		meta := maps.Clone(doc.Metadata)
		if meta == nil {
			meta = make(map[string]any, 8)
		}
		meta[MetaParentDocID] = doc.ID
		meta[MetaParentTitle] = doc.Title
		meta[MetaChunkIndex] = i
		meta[MetaTotalChunks] = total
		meta[MetaChunkStart] = sp.start
		meta[MetaChunkEnd] = sp.end
		meta[MetaIsChunk] = true
		meta[MetaOriginalLength] = len(runes)

		chunks = append(chunks, &store.Document{
			ID:       ChunkID(doc.ID, i),
			Title:    fmt.Sprintf("%s (chunk %d/%d)", doc.Title, i+1, total),
			Content:  string(runes[sp.start:sp.end]),
			Metadata: meta,
		})
	}

	c.logger.Debug("document_chunked",
		slog.String("doc_id", doc.ID),
		slog.Int("length", len(runes)),
		slog.Int("chunks", total))

	return chunks
}

func (c *Chunker) split(runes []rune, docID string) []span {
	size, overlap := c.options.ChunkSize, c.options.ChunkOverlap
	n := len(runes)

	var spans []span
	start := 0
	for start < n {
		if c.options.MaxChunks > 0 && len(spans) >= c.options.MaxChunks {
			c.logger.Warn("chunk_limit_reached",
				slog.String("doc_id", docID),
				slog.Int("max_chunks", c.options.MaxChunks),
				slog.Int("dropped_chars", n-start))
			break
		}

		end := start + size
		if end >= n {
			end = n
		} else {
			end = boundaryCut(runes, start, end, size/2)
		}
		spans = append(spans, span{start: start, end: end})

		if end >= n {
			break
		}
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return spans
}

// boundaryCut returns the position right after the last boundary rune in
// (ideal-maxBack, ideal], never at or before start. Without a boundary
// the cut stays at ideal.
func boundaryCut(runes []rune, start, ideal, maxBack int) int {
	limit := ideal - maxBack
	if limit < start {
		limit = start
	}
	for i := ideal - 1; i >= limit; i-- {
		if _, ok := boundaries[runes[i]]; ok {
			return i + 1
		}
	}
	return ideal
}

// ChunkID returns the id of chunk i of parent.
func ChunkID(parentID string, i int) string {
	return fmt.Sprintf("%s_chunk_%d", parentID, i)
}

// IsChunk reports whether doc was produced by Chunk.
func IsChunk(doc *store.Document) bool {
	if doc == nil {
		return false
	}
	v, _ := doc.Metadata[MetaIsChunk].(bool)
	return v
}
