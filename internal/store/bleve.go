package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	kberrors "github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/errors"
)

// boltOpenTimeout bounds the wait for the index file lock another process holds.
var boltOpenTimeout = time.Second

const (
	// StopFilterName is the registered stop word token filter.
	StopFilterName = "kbqa_stop"

	// AnalyzerName is the analyzer applied to title and content.
	AnalyzerName = "kbqa_text"

	fieldTitle   = "title"
	fieldContent = "content"
	fieldMeta    = "meta"
)

func init() {
	_ = registry.RegisterTokenFilter(StopFilterName, stopFilterConstructor)
}

// BleveIndex implements LexicalIndex on bleve v2 (BM25 scoring).
type BleveIndex struct {
	mu      sync.RWMutex
	index   bleve.Index
	batch   *bleve.Batch
	pending int
	path    string
	closed  bool
	logger  *slog.Logger
}

// bleveDocument is the stored shape of a Document.
type bleveDocument struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Meta    string `json:"meta"`
}

// NewBleveIndex opens the index at path, creating it when missing.
// A corrupt index is cleared and recreated. An empty path gives an
// in-memory index.
func NewBleveIndex(path string, logger *slog.Logger) (*BleveIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}

	idx, err := openBleve(path, logger)
	if err != nil {
		return nil, err
	}

	return &BleveIndex{
		index:  idx,
		batch:  idx.NewBatch(),
		path:   path,
		logger: logger,
	}, nil
}

func openBleve(path string, logger *slog.Logger) (bleve.Index, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	if path == "" {
		return bleve.NewMemOnly(indexMapping)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}

	if validErr := validateIndexIntegrity(path); validErr != nil {
		logger.Warn("lexical_index_corrupted",
			slog.String("path", path),
			slog.String("error", validErr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w", path, err)
		}
	}

	idx, err := bleve.OpenUsing(path, map[string]interface{}{"bolt_timeout": boltOpenTimeout.String()})
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, indexMapping)
	}
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, kberrors.IndexLockHeld(filepath.Join(path, "root.bolt"))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open lexical index: %w", err)
	}
	return idx, nil
}

// validateIndexIntegrity checks index_meta.json before opening.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// createIndexMapping stores title, content and meta; only title and content are searchable.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(AnalyzerName, map[string]any{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			StopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = AnalyzerName

	text := bleve.NewTextFieldMapping()
	text.Analyzer = AnalyzerName
	text.Store = true

	meta := bleve.NewTextFieldMapping()
	meta.Index = false
	meta.Store = true
	meta.IncludeInAll = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(fieldTitle, text)
	doc.AddFieldMappingsAt(fieldContent, text)
	doc.AddFieldMappingsAt(fieldMeta, meta)
	indexMapping.DefaultMapping = doc

	return indexMapping, nil
}

// Index queues doc. Documents without an ID get a random one.
func (b *BleveIndex) Index(ctx context.Context, doc *Document) error {
	if doc == nil {
		return nil
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata for %s: %w", doc.ID, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	if err := b.batch.Index(doc.ID, bleveDocument{
		Title:   doc.Title,
		Content: doc.Content,
		Meta:    string(meta),
	}); err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
	}
	b.pending++
	return nil
}

// Delete queues removal of ids.
func (b *BleveIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}
	for _, id := range ids {
		b.batch.Delete(id)
		b.pending++
	}
	return nil
}

// Commit executes the pending batch.
func (b *BleveIndex) Commit(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}
	if b.pending == 0 {
		return nil
	}

	if err := b.index.Batch(b.batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	b.logger.Debug("lexical_commit", slog.Int("operations", b.pending))
	b.batch = b.index.NewBatch()
	b.pending = 0
	return nil
}

// Pending returns the number of queued operations.
func (b *BleveIndex) Pending() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pending
}

// Search matches query against title and content.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]*LexicalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []*LexicalResult{}, nil
	}

	content := bleve.NewMatchQuery(query)
	content.SetField(fieldContent)
	title := bleve.NewMatchQuery(query)
	title.SetField(fieldTitle)

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(content, title))
	req.Size = limit

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]*LexicalResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, &LexicalResult{ID: hit.ID, Score: hit.Score})
	}
	return hits, nil
}

// Get loads the stored fields of id.
func (b *BleveIndex) Get(ctx context.Context, id string) (*Document, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}

	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{id}))
	req.Size = 1
	req.Fields = []string{fieldTitle, fieldContent, fieldMeta}

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get %s failed: %w", id, err)
	}
	if len(result.Hits) == 0 {
		return nil, nil
	}

	hit := result.Hits[0]
	doc := &Document{
		ID:       hit.ID,
		Title:    fieldString(hit.Fields, fieldTitle),
		Content:  fieldString(hit.Fields, fieldContent),
		Metadata: make(map[string]any),
	}
	if raw := fieldString(hit.Fields, fieldMeta); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("corrupt metadata for %s: %w", id, err)
		}
	}
	return doc, nil
}

// DeleteAll drops every document and any pending writes.
func (b *BleveIndex) DeleteAll(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	if err := b.index.Close(); err != nil {
		return fmt.Errorf("failed to close lexical index: %w", err)
	}
	if b.path != "" {
		if err := os.RemoveAll(b.path); err != nil {
			return fmt.Errorf("failed to remove lexical index: %w", err)
		}
	}

	idx, err := openBleve(b.path, b.logger)
	if err != nil {
		b.closed = true
		return err
	}
	b.index = idx
	b.batch = idx.NewBatch()
	b.pending = 0
	return nil
}

// Count returns the committed document count.
func (b *BleveIndex) Count() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, fmt.Errorf("index is closed")
	}
	n, err := b.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return int(n), nil
}

// Close closes the index. Pending writes are discarded.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

func fieldString(fields map[string]any, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

var _ LexicalIndex = (*BleveIndex)(nil)

func stopFilterConstructor(config map[string]any, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &stopFilter{stopWords: BuildStopWordMap(DefaultStopWords)}, nil
}

// stopFilter drops tokens found in DefaultStopWords.
type stopFilter struct {
	stopWords map[string]struct{}
}

// Filter implements analysis.TokenFilter.
func (f *stopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, isStop := f.stopWords[string(token.Term)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
