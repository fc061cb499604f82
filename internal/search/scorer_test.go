package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/config"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/embed"
	kberrors "github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/errors"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/logging"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/runtimecfg"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/store"
)

// fakeLexical returns a fixed ranking and records the last query.
type fakeLexical struct {
	mu        sync.Mutex
	ranking   []*store.LexicalResult
	docs      map[string]*store.Document
	err       error
	lastQuery string
	lastLimit int
}

func newFakeLexical(ids ...string) *fakeLexical {
	f := &fakeLexical{docs: map[string]*store.Document{}}
	for i, id := range ids {
		f.ranking = append(f.ranking, &store.LexicalResult{ID: id, Score: float64(10 - i)})
		f.docs[id] = &store.Document{ID: id, Title: "doc " + id, Content: "content " + id, Metadata: map[string]any{}}
	}
	return f
}

func (f *fakeLexical) Index(context.Context, *store.Document) error { return nil }
func (f *fakeLexical) Delete(context.Context, []string) error       { return nil }
func (f *fakeLexical) Commit(context.Context) error                 { return nil }
func (f *fakeLexical) DeleteAll(context.Context) error              { return nil }
func (f *fakeLexical) Count() (int, error)                          { return len(f.docs), nil }
func (f *fakeLexical) Close() error                                 { return nil }

func (f *fakeLexical) Search(_ context.Context, query string, limit int) ([]*store.LexicalResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = query
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.ranking) {
		return f.ranking[:limit], nil
	}
	return f.ranking, nil
}

func (f *fakeLexical) Get(_ context.Context, id string) (*store.Document, error) {
	return f.docs[id], nil
}

// fakeVector returns fixed similarities above the requested floor.
type fakeVector struct {
	hits     []*store.VectorResult
	err      error
	lastMin  float64
	searches atomic.Int64
}

func (f *fakeVector) Add(context.Context, string, []float32) error { return nil }
func (f *fakeVector) Delete(context.Context, []string) error       { return nil }
func (f *fakeVector) DeleteAll(context.Context) error              { return nil }
func (f *fakeVector) Count() int                                   { return len(f.hits) }
func (f *fakeVector) Dimensions() int                              { return 4 }
func (f *fakeVector) Save() error                                  { return nil }
func (f *fakeVector) Close() error                                 { return nil }

func (f *fakeVector) Search(_ context.Context, _ []float32, limit int, minSimilarity float64) ([]*store.VectorResult, error) {
	f.searches.Add(1)
	f.lastMin = minSimilarity
	if f.err != nil {
		return nil, f.err
	}
	var out []*store.VectorResult
	for _, h := range f.hits {
		if h.Similarity >= minSimilarity && len(out) < limit {
			out = append(out, h)
		}
	}
	return out, nil
}

// fakeEmbedder returns a constant vector or a fixed error.
type fakeEmbedder struct {
	err   error
	calls atomic.Int64
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int                { return 4 }
func (f *fakeEmbedder) ModelName() string              { return "fake" }
func (f *fakeEmbedder) Available(context.Context) bool { return f.err == nil }
func (f *fakeEmbedder) Close() error                   { return nil }

func newTestSettings() *runtimecfg.Settings {
	return runtimecfg.New(config.NewConfig().Search, logging.Discard())
}

func docIDs(docs []*store.Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

func TestScorer_HybridSearchFusesAndFilters(t *testing.T) {
	// Given: lexical [A B C D] and vector B=0.9, E=0.5
	lex := newFakeLexical("A", "B", "C", "D", "E")
	lex.ranking = lex.ranking[:4]
	vec := &fakeVector{hits: vectorResults("B", 0.9, "E", 0.5)}
	s := NewScorer(lex, vec, &fakeEmbedder{}, newTestSettings(), WithLogger(logging.Discard()))

	// When: searching with the default 0.3 score floor
	docs, err := s.HybridSearch(context.Background(), "what is the refund policy")

	// Then: C (0.15) and D (0.075) fall below the floor; A at exactly 0.3 stays
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "E", "A"}, docIDs(docs))
	assert.InDelta(t, 0.855, docs[0].Metadata[MetaScore], 1e-9)
	assert.Equal(t, "refund policy", lex.lastQuery)
	assert.Equal(t, 20, lex.lastLimit)
	assert.Equal(t, 0.4, vec.lastMin)
}

func TestScorer_HybridTopKOfEight(t *testing.T) {
	// Given: 8 documents all scoring above the floor
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	lex := newFakeLexical(ids...)
	var hits []*store.VectorResult
	for i, id := range ids {
		hits = append(hits, &store.VectorResult{ID: id, Similarity: 0.9 - float64(i)*0.05})
	}
	settings := newTestSettings()
	require.NoError(t, settings.SetHybridTopK(5))
	s := NewScorer(lex, &fakeVector{hits: hits}, &fakeEmbedder{}, settings, WithLogger(logging.Discard()))

	// When
	docs, err := s.HybridSearch(context.Background(), "query terms")

	// Then: exactly the 5 best survive
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, docIDs(docs))
}

func TestScorer_RuntimeOverridesApplyPerQuery(t *testing.T) {
	lex := newFakeLexical("A", "B", "C", "D")
	vec := &fakeVector{}
	settings := newTestSettings()
	s := NewScorer(lex, vec, &fakeEmbedder{}, settings, WithLogger(logging.Discard()))

	require.NoError(t, settings.Update(runtimecfg.Update{LexicalTopK: ptrInt(3), MinScoreThreshold: ptrFloat(0)}))
	docs, err := s.HybridSearch(context.Background(), "query terms")

	require.NoError(t, err)
	assert.Equal(t, 3, lex.lastLimit)
	assert.Equal(t, []string{"A", "B", "C"}, docIDs(docs))
}

func TestScorer_NoVectorEngineEqualsKeywordSearch(t *testing.T) {
	// Given: a scorer without a vector engine
	lex := newFakeLexical("A", "B", "C")
	s := NewScorer(lex, nil, nil, newTestSettings(), WithLogger(logging.Discard()))
	ctx := context.Background()

	// When: running both searches
	hybrid, err := s.HybridSearch(ctx, "refund policy")
	require.NoError(t, err)
	keyword, err := s.KeywordSearch(ctx, "refund policy")
	require.NoError(t, err)

	// Then: identical rank-order results limited by HybridTopK
	assert.Equal(t, docIDs(keyword), docIDs(hybrid))
	assert.Equal(t, []string{"A", "B", "C"}, docIDs(hybrid))
	assert.Equal(t, 10, lex.lastLimit)
	assert.False(t, s.VectorAvailable())
}

func TestScorer_KeywordScoresAreRankBased(t *testing.T) {
	// Given: lexical hits with raw scores 10, 9, 8 and 7
	lex := newFakeLexical("A", "B", "C", "D")
	s := NewScorer(lex, nil, nil, newTestSettings(), WithLogger(logging.Discard()))
	ctx := context.Background()

	// When: searching by keyword and in hybrid mode without vectors
	keyword, err := s.KeywordSearch(ctx, "refund policy")
	require.NoError(t, err)
	hybrid, err := s.HybridSearch(ctx, "refund policy")
	require.NoError(t, err)

	// Then: both carry 1 - i/N instead of the raw score
	want := []float64{1, 0.75, 0.5, 0.25}
	for _, docs := range [][]*store.Document{keyword, hybrid} {
		require.Len(t, docs, len(want))
		for i, d := range docs {
			assert.InDelta(t, want[i], d.Metadata[MetaScore], 1e-9, d.ID)
		}
	}
}

func TestScorer_VectorFailureFallsBackOnce(t *testing.T) {
	// Given: an embedder that fails
	lex := newFakeLexical("A", "B")
	emb := &fakeEmbedder{err: errors.New("connection refused")}
	vec := &fakeVector{}
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	s := NewScorer(lex, vec, emb, newTestSettings(), WithLogger(logger))
	ctx := context.Background()

	// When: querying twice
	first, err := s.HybridSearch(ctx, "refund policy")
	require.NoError(t, err)
	second, err := s.HybridSearch(ctx, "refund policy")
	require.NoError(t, err)

	// Then: both fall back to keyword results, the embedder is tried once,
	// and the unavailability is logged once
	assert.Equal(t, []string{"A", "B"}, docIDs(first))
	assert.Equal(t, docIDs(first), docIDs(second))
	assert.Equal(t, int64(1), emb.calls.Load())
	assert.False(t, s.VectorAvailable())
	assert.Equal(t, 1, strings.Count(buf.String(), "vector_engine_unavailable"))
}

func TestScorer_VectorSearchErrorFallsBack(t *testing.T) {
	lex := newFakeLexical("A")
	vec := &fakeVector{err: store.ErrDimensionMismatch{Expected: 768, Got: 4}}
	s := NewScorer(lex, vec, &fakeEmbedder{}, newTestSettings(), WithLogger(logging.Discard()))

	ex, err := s.Explain(context.Background(), "refund policy")

	require.NoError(t, err)
	assert.False(t, ex.VectorUsed)
	assert.Equal(t, []string{"A"}, entryIDs(ex.Entries))
}

func TestScorer_LexicalFailureFailsQuery(t *testing.T) {
	lex := newFakeLexical("A")
	lex.err = fmt.Errorf("index is closed")
	s := NewScorer(lex, &fakeVector{}, &fakeEmbedder{}, newTestSettings(), WithLogger(logging.Discard()))

	_, err := s.HybridSearch(context.Background(), "refund policy")

	require.Error(t, err)
	assert.True(t, kberrors.HasCode(err, kberrors.ErrCodeSearchFailed))
}

func TestScorer_StaleIDsAreDropped(t *testing.T) {
	// Given: the vector index knows an id the lexical store lost
	lex := newFakeLexical("A")
	vec := &fakeVector{hits: vectorResults("ghost", 0.95, "A", 0.9)}
	s := NewScorer(lex, vec, &fakeEmbedder{}, newTestSettings(), WithLogger(logging.Discard()))

	docs, err := s.HybridSearch(context.Background(), "refund policy")

	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, docIDs(docs))
}

func TestScorer_ResultsDoNotMutateStoredDocuments(t *testing.T) {
	lex := newFakeLexical("A")
	s := NewScorer(lex, nil, nil, newTestSettings(), WithLogger(logging.Discard()))

	_, err := s.HybridSearch(context.Background(), "refund policy")

	require.NoError(t, err)
	_, has := lex.docs["A"].Metadata[MetaScore]
	assert.False(t, has)
}

func TestScorer_EmptyQuery(t *testing.T) {
	s := NewScorer(newFakeLexical(), nil, nil, newTestSettings(), WithLogger(logging.Discard()))

	_, err := s.HybridSearch(context.Background(), "  ")

	require.Error(t, err)
	assert.True(t, kberrors.HasCode(err, kberrors.ErrCodeQueryEmpty))
}

func TestScorer_ContextDocuments(t *testing.T) {
	lex := newFakeLexical("a", "b", "c", "d", "e", "f", "g")
	settings := newTestSettings()
	require.NoError(t, settings.SetDocumentsPerQuery(2))
	s := NewScorer(lex, nil, nil, settings, WithLogger(logging.Discard()))

	docs, err := s.ContextDocuments(context.Background(), "refund policy")

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, docIDs(docs))
}

func TestScorer_ExplainBreakdown(t *testing.T) {
	lex := newFakeLexical("A", "B")
	vec := &fakeVector{hits: vectorResults("B", 0.8, "C", 0.6)}
	s := NewScorer(lex, vec, &fakeEmbedder{}, newTestSettings(), WithLogger(logging.Discard()))

	ex, err := s.Explain(context.Background(), "how to reset password")

	require.NoError(t, err)
	assert.True(t, ex.VectorUsed)
	assert.Equal(t, []string{"reset", "password"}, ex.Keywords)
	assert.Equal(t, 2, ex.LexicalHits)
	assert.Equal(t, 2, ex.VectorHits)
	assert.Equal(t, 3, ex.Candidates)
	require.NotEmpty(t, ex.Entries)
	assert.Equal(t, "B", ex.Entries[0].DocumentID)
	assert.True(t, ex.Entries[0].InBothLists())
}

func TestScorer_WithRealIndexes(t *testing.T) {
	// Given: bleve and HNSW in-memory indexes filled through the static embedder
	ctx := context.Background()
	lex, err := store.NewBleveIndex("", logging.Discard())
	require.NoError(t, err)
	defer func() { _ = lex.Close() }()
	vec, err := store.NewHNSWIndex("", embed.StaticDimensions)
	require.NoError(t, err)
	emb := embed.NewStaticEmbedder()

	docs := map[string]string{
		"pw":      "To reset your password open settings and choose reset password.",
		"refund":  "Refunds are issued within thirty days of purchase.",
		"deploy":  "Deploy the server with the provided container image.",
		"billing": "Billing questions go to the finance team.",
	}
	for id, content := range docs {
		require.NoError(t, lex.Index(ctx, &store.Document{ID: id, Title: id, Content: content}))
		v, err := emb.Embed(ctx, content)
		require.NoError(t, err)
		require.NoError(t, vec.Add(ctx, id, v))
	}
	require.NoError(t, lex.Commit(ctx))

	settings := newTestSettings()
	require.NoError(t, settings.SetMinScoreThreshold(0))
	s := NewScorer(lex, vec, emb, settings, WithLogger(logging.Discard()), WithSimilarityThreshold(0))

	// When
	results, err := s.HybridSearch(ctx, "how do I reset my password")

	// Then: the password document ranks first with its fused score attached
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "pw", results[0].ID)
	assert.Greater(t, results[0].Metadata[MetaScore].(float64), 0.3)
}

func ptrInt(v int) *int           { return &v }
func ptrFloat(v float64) *float64 { return &v }
