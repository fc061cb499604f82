package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/embed"
	kberrors "github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/errors"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/runtimecfg"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/store"
)

// MetaScore is the metadata key carrying a result's score.
const MetaScore = "score"

// Scorer runs hybrid retrieval over a lexical index and an optional vector
// index. Safe for concurrent use.
type Scorer struct {
	lexical  store.LexicalIndex
	vector   store.VectorIndex
	embedder embed.Embedder
	settings *runtimecfg.Settings
	keywords *KeywordExtractor
	logger   *slog.Logger

	weights             Weights
	similarityThreshold float64

	vectorDown     atomic.Bool
	vectorDownOnce sync.Once
}

var _ Searcher = (*Scorer)(nil)

// Option configures a Scorer.
type Option func(*Scorer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scorer) { s.logger = l }
}

// WithWeights overrides the fusion weights from the search config.
func WithWeights(w Weights) Option {
	return func(s *Scorer) { s.weights = w }
}

// WithSimilarityThreshold overrides the vector similarity floor.
func WithSimilarityThreshold(t float64) Option {
	return func(s *Scorer) { s.similarityThreshold = t }
}

// NewScorer creates a scorer. vector and embedder may be nil, in which case
// every hybrid query is answered by keyword search. Weights, the similarity
// threshold and keyword filtering come from settings' static defaults.
func NewScorer(lexical store.LexicalIndex, vector store.VectorIndex, embedder embed.Embedder, settings *runtimecfg.Settings, opts ...Option) *Scorer {
	defaults := settings.Defaults()

	s := &Scorer{
		lexical:             lexical,
		vector:              vector,
		embedder:            embedder,
		settings:            settings,
		keywords:            NewKeywordExtractor(defaults),
		logger:              slog.Default(),
		weights:             Weights{Lexical: defaults.LexicalWeight, Vector: defaults.VectorWeight},
		similarityThreshold: defaults.SimilarityThreshold,
	}
	if s.weights.Lexical == 0 && s.weights.Vector == 0 {
		s.weights = DefaultWeights()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VectorAvailable reports whether hybrid queries still use the vector side.
func (s *Scorer) VectorAvailable() bool {
	return s.vector != nil && s.embedder != nil && !s.vectorDown.Load()
}

// Settings returns the runtime settings the scorer reads on every query.
func (s *Scorer) Settings() *runtimecfg.Settings { return s.settings }

// Weights returns the fusion weights.
func (s *Scorer) Weights() Weights { return s.weights }

// markVectorUnavailable disables the vector side for the scorer's lifetime.
func (s *Scorer) markVectorUnavailable(err error) {
	s.vectorDown.Store(true)
	s.vectorDownOnce.Do(func() {
		s.logger.Warn("vector_engine_unavailable",
			slog.String("code", kberrors.ErrCodeVectorEngineUnavailable),
			slog.String("error", err.Error()),
			slog.String("fallback", "keyword search"))
	})
}

// HybridSearch returns up to HybridTopK documents scoring at least
// MinScoreThreshold, best first. Each document's metadata carries its fused
// score under MetaScore. Without a working vector engine the result equals
// KeywordSearch.
func (s *Scorer) HybridSearch(ctx context.Context, query string) ([]*store.Document, error) {
	ex, err := s.Explain(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, ex.Entries), nil
}

// ContextDocuments returns the first DocumentsPerQuery hybrid results, the
// set a question-answering caller should cite.
func (s *Scorer) ContextDocuments(ctx context.Context, query string) ([]*store.Document, error) {
	docs, err := s.HybridSearch(ctx, query)
	if err != nil {
		return nil, err
	}
	if n := s.settings.DocumentsPerQuery(); len(docs) > n {
		docs = docs[:n]
	}
	return docs, nil
}

// KeywordSearch returns up to HybridTopK lexical results in rank order.
// Each document's metadata carries its lexical score under MetaScore.
func (s *Scorer) KeywordSearch(ctx context.Context, query string) ([]*store.Document, error) {
	if strings.TrimSpace(query) == "" {
		return nil, kberrors.New(kberrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	entries, _, err := s.keywordEntries(ctx, s.keywords.Query(query))
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, entries), nil
}

// Explain runs the retrieval pipeline and returns the per-document scoring.
// When the vector side is unavailable or fails, the entries are the keyword
// search ranking and VectorUsed is false.
func (s *Scorer) Explain(ctx context.Context, query string) (*Explanation, error) {
	if strings.TrimSpace(query) == "" {
		return nil, kberrors.New(kberrors.ErrCodeQueryEmpty, "query is empty", nil)
	}

	started := time.Now()
	ex := &Explanation{Query: query, Keywords: s.keywords.Extract(query)}
	kwQuery := strings.Join(ex.Keywords, " ")

	if s.VectorAvailable() {
		lexical, vector, vecErr, err := s.parallelSearch(ctx, query, kwQuery)
		if err != nil {
			return nil, err
		}
		if vecErr == nil {
			fused := Fuse(lexical, vector, s.weights)
			minScore := s.settings.MinScoreThreshold()
			ex.VectorUsed = true
			ex.LexicalHits = len(lexical)
			ex.VectorHits = len(vector)
			ex.Candidates = len(fused)
			ex.Entries = Select(fused, minScore, s.settings.HybridTopK())
			ex.Duration = time.Since(started)

			if dropped := ex.Candidates - len(ex.Entries); dropped > 0 {
				s.logger.Debug("hybrid_results_filtered",
					slog.Int("dropped", dropped),
					slog.Float64("min_score", minScore),
					slog.Int("kept", len(ex.Entries)))
			}
			s.logger.Info("hybrid_search_complete",
				slog.String("keywords", kwQuery),
				slog.Int("lexical_hits", ex.LexicalHits),
				slog.Int("vector_hits", ex.VectorHits),
				slog.Int("candidates", ex.Candidates),
				slog.Int("results", len(ex.Entries)),
				slog.Duration("duration", ex.Duration))
			return ex, nil
		}
		s.markVectorUnavailable(vecErr)
	}

	entries, hits, err := s.keywordEntries(ctx, kwQuery)
	if err != nil {
		return nil, err
	}
	ex.LexicalHits = hits
	ex.Candidates = hits
	ex.Entries = entries
	ex.Duration = time.Since(started)

	s.logger.Info("keyword_search_complete",
		slog.String("keywords", kwQuery),
		slog.Int("results", len(entries)),
		slog.Duration("duration", ex.Duration))
	return ex, nil
}

// parallelSearch runs the lexical and vector sub-queries concurrently. A
// lexical failure fails the query; a vector failure is returned as vecErr
// so the caller can fall back.
func (s *Scorer) parallelSearch(ctx context.Context, query, kwQuery string) (
	lexical []*store.LexicalResult,
	vector []*store.VectorResult,
	vecErr error,
	err error,
) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var searchErr error
		lexical, searchErr = s.lexical.Search(gctx, kwQuery, s.settings.LexicalTopK())
		if searchErr != nil {
			return kberrors.New(kberrors.ErrCodeSearchFailed, "lexical search failed", searchErr)
		}
		return nil
	})

	// The vector side embeds the full question, not the keywords.
	g.Go(func() error {
		embedding, embedErr := s.embedder.Embed(gctx, query)
		if embedErr != nil {
			vecErr = fmt.Errorf("embed query: %w", embedErr)
			return nil
		}
		var searchErr error
		vector, searchErr = s.vector.Search(gctx, embedding, s.settings.VectorTopK(), s.similarityThreshold)
		if searchErr != nil {
			vecErr = fmt.Errorf("vector search: %w", searchErr)
		}
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, nil, waitErr
	}
	// A cancelled query is not a vector engine failure.
	if vecErr != nil && ctx.Err() != nil {
		return nil, nil, nil, ctx.Err()
	}
	return lexical, vector, vecErr, nil
}

// keywordEntries runs the lexical query alone with the HybridTopK limit.
// Entries keep the index's rank order; FusedScore is the rank-based
// LexicalScore so keyword results share the hybrid score scale.
func (s *Scorer) keywordEntries(ctx context.Context, kwQuery string) ([]*ScoreEntry, int, error) {
	hits, err := s.lexical.Search(ctx, kwQuery, s.settings.HybridTopK())
	if err != nil {
		return nil, 0, kberrors.New(kberrors.ErrCodeSearchFailed, "keyword search failed", err)
	}
	entries := make([]*ScoreEntry, 0, len(hits))
	n := float64(len(hits))
	for i, h := range hits {
		score := 1 - float64(i)/n
		entries = append(entries, &ScoreEntry{
			DocumentID:   h.ID,
			LexicalRank:  i + 1,
			LexicalScore: score,
			FusedScore:   score,
		})
	}
	return entries, len(hits), nil
}

// resolve loads each entry's document, dropping ids the index no longer has.
func (s *Scorer) resolve(ctx context.Context, entries []*ScoreEntry) []*store.Document {
	docs := make([]*store.Document, 0, len(entries))
	for _, e := range entries {
		doc, err := s.lexical.Get(ctx, e.DocumentID)
		if err != nil || doc == nil {
			attrs := []any{
				slog.String("id", e.DocumentID),
				slog.Float64("score", e.FusedScore),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			s.logger.Warn("search_result_unresolved", attrs...)
			continue
		}
		doc = doc.Clone()
		doc.Metadata[MetaScore] = e.FusedScore
		docs = append(docs, doc)
	}
	return docs
}
