package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/errors"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/store"
)

func TestNewServer_RequiresDependencies(t *testing.T) {
	t.Run("nil searcher", func(t *testing.T) {
		_, err := NewServer(Deps{})
		require.Error(t, err)
	})

	t.Run("nil settings", func(t *testing.T) {
		_, err := NewServer(Deps{Searcher: &mockSearcher{}})
		require.Error(t, err)
	})

	t.Run("valid deps", func(t *testing.T) {
		s := newTestServer(t, &mockSearcher{}, nil, nil)
		assert.NotNil(t, s.MCPServer())
	})
}

func TestServer_HybridSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns documents in order", func(t *testing.T) {
		// Given: a searcher with two hybrid results and a working vector side
		searcher := &mockSearcher{
			hybrid: []*store.Document{
				doc("a", "guide.md", "install steps", 0.85),
				doc("b", "faq.md", "common questions", 0.42),
			},
			vectorAvailable: true,
		}
		s := newTestServer(t, searcher, nil, nil)

		// When: calling hybrid_search
		res, out, err := s.handleHybridSearch(ctx, nil, SearchInput{Query: "how to install"})

		// Then: results carry ids, paths and scores
		require.NoError(t, err)
		assert.Equal(t, "how to install", searcher.lastQuery)
		assert.Equal(t, "hybrid", out.Mode)
		require.Len(t, out.Results, 2)
		assert.Equal(t, "a", out.Results[0].DocumentID)
		assert.Equal(t, "/kb/guide.md", out.Results[0].FilePath)
		assert.InDelta(t, 0.85, out.Results[0].Score, 1e-9)
		assert.Equal(t, 2, out.Count)

		// And: the text content is markdown
		require.NotNil(t, res)
		require.Len(t, res.Content, 1)
		text, ok := res.Content[0].(*mcp.TextContent)
		require.True(t, ok)
		assert.Contains(t, text.Text, "how to install")
	})

	t.Run("keyword mode when vector side is down", func(t *testing.T) {
		// Given: a searcher whose vector side is unavailable
		searcher := &mockSearcher{hybrid: []*store.Document{doc("a", "a.md", "x", 1)}}
		s := newTestServer(t, searcher, nil, nil)

		// When: calling hybrid_search
		_, out, err := s.handleHybridSearch(ctx, nil, SearchInput{Query: "x"})

		// Then: the mode reports the fallback
		require.NoError(t, err)
		assert.Equal(t, "keyword", out.Mode)
	})

	t.Run("limit truncates results", func(t *testing.T) {
		// Given: three results
		searcher := &mockSearcher{hybrid: []*store.Document{
			doc("a", "a.md", "x", 0.9), doc("b", "b.md", "x", 0.8), doc("c", "c.md", "x", 0.7),
		}}
		s := newTestServer(t, searcher, nil, nil)

		// When: asking for two
		_, out, err := s.handleHybridSearch(ctx, nil, SearchInput{Query: "x", Limit: 2})

		// Then: only the top two return
		require.NoError(t, err)
		assert.Len(t, out.Results, 2)
		assert.Equal(t, "b", out.Results[1].DocumentID)
	})

	t.Run("empty query is invalid", func(t *testing.T) {
		s := newTestServer(t, &mockSearcher{}, nil, nil)

		_, _, err := s.handleHybridSearch(ctx, nil, SearchInput{Query: "   "})

		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	})

	t.Run("negative limit is invalid", func(t *testing.T) {
		s := newTestServer(t, &mockSearcher{}, nil, nil)

		_, _, err := s.handleHybridSearch(ctx, nil, SearchInput{Query: "x", Limit: -1})

		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	})

	t.Run("search errors are mapped", func(t *testing.T) {
		searcher := &mockSearcher{err: kberrors.New(kberrors.ErrCodeSearchFailed, "lexical search failed", errors.New("boom"))}
		s := newTestServer(t, searcher, nil, nil)

		_, _, err := s.handleHybridSearch(ctx, nil, SearchInput{Query: "x"})

		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrCodeInternalError, mcpErr.Code)
		assert.Contains(t, mcpErr.Message, "lexical search failed")
	})
}

func TestServer_KeywordSearch(t *testing.T) {
	// Given: a searcher with keyword results and a working vector side
	searcher := &mockSearcher{
		keyword:         []*store.Document{doc("k", "k.md", "exact term", 1)},
		vectorAvailable: true,
	}
	s := newTestServer(t, searcher, nil, nil)

	// When: calling keyword_search
	_, out, err := s.handleKeywordSearch(context.Background(), nil, SearchInput{Query: "exact"})

	// Then: the mode is keyword and the document's score is passed through
	require.NoError(t, err)
	assert.Equal(t, "keyword", out.Mode)
	require.Len(t, out.Results, 1)
	assert.InDelta(t, 1.0, out.Results[0].Score, 1e-9)
}

func TestServer_SearchConfigTools(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t, &mockSearcher{}, nil, nil)

	// Given: the defaults
	_, info, err := s.handleGetConfig(ctx, nil, ConfigInput{})
	require.NoError(t, err)
	assert.Equal(t, 10, info.HybridTopK)
	assert.False(t, info.UsingOverrides)

	// When: updating hybrid_top_k and the threshold
	topK := 5
	threshold := 0.5
	_, info, err = s.handleUpdateConfig(ctx, nil, UpdateConfigInput{HybridTopK: &topK, MinScoreThreshold: &threshold})

	// Then: the overrides apply
	require.NoError(t, err)
	assert.Equal(t, 5, info.HybridTopK)
	assert.Equal(t, 0.5, info.MinScoreThreshold)
	assert.Equal(t, 20, info.LexicalTopK)
	assert.True(t, info.UsingOverrides)

	// When: an invalid update mixes a valid and an invalid field
	bad := 0
	lexical := 3
	_, _, err = s.handleUpdateConfig(ctx, nil, UpdateConfigInput{LexicalTopK: &lexical, VectorTopK: &bad})

	// Then: it is rejected without applying anything
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	_, info, _ = s.handleGetConfig(ctx, nil, ConfigInput{})
	assert.Equal(t, 20, info.LexicalTopK)

	// When: resetting
	_, info, err = s.handleResetConfig(ctx, nil, ConfigInput{})

	// Then: the defaults are back
	require.NoError(t, err)
	assert.Equal(t, 10, info.HybridTopK)
	assert.Equal(t, 0.3, info.MinScoreThreshold)
	assert.False(t, info.UsingOverrides)
}

func TestServer_IndexStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("uses the status func", func(t *testing.T) {
		// Given: a status provider
		status := func(context.Context) (*IndexStatusOutput, error) {
			return &IndexStatusOutput{
				SourceDir:    "/kb",
				TrackedFiles: 3,
				Documents:    4,
				Embeddings:   EmbeddingInfo{Provider: "static", Dimensions: 256},
			}, nil
		}
		s := newTestServer(t, &mockSearcher{vectorAvailable: true}, nil, status)

		// When: calling index_status
		_, out, err := s.handleIndexStatus(ctx, nil, IndexStatusInput{})

		// Then: the status is returned with vector availability
		require.NoError(t, err)
		assert.Equal(t, 3, out.TrackedFiles)
		assert.Equal(t, 4, out.Documents)
		assert.True(t, out.Embeddings.VectorAvailable)
	})

	t.Run("without a status func", func(t *testing.T) {
		s := newTestServer(t, &mockSearcher{}, nil, nil)

		_, out, err := s.handleIndexStatus(ctx, nil, IndexStatusInput{})

		require.NoError(t, err)
		assert.Zero(t, out.Documents)
		assert.False(t, out.Embeddings.VectorAvailable)
	})

	t.Run("status errors are mapped", func(t *testing.T) {
		status := func(context.Context) (*IndexStatusOutput, error) {
			return nil, kberrors.New(kberrors.ErrCodeCorruptIndex, "index is corrupt", nil)
		}
		s := newTestServer(t, &mockSearcher{}, nil, status)

		_, _, err := s.handleIndexStatus(ctx, nil, IndexStatusInput{})

		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrCodeIndexNotFound, mcpErr.Code)
	})
}

func TestServer_ServeUnknownTransport(t *testing.T) {
	s := newTestServer(t, &mockSearcher{}, nil, nil)

	err := s.Serve(context.Background(), "carrier-pigeon", "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
}
