package mcp

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/config"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/runtimecfg"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/store"
)

type mockSearcher struct {
	hybrid          []*store.Document
	keyword         []*store.Document
	err             error
	vectorAvailable bool
	lastQuery       string
}

func (m *mockSearcher) HybridSearch(_ context.Context, q string) ([]*store.Document, error) {
	m.lastQuery = q
	return m.hybrid, m.err
}

func (m *mockSearcher) KeywordSearch(_ context.Context, q string) ([]*store.Document, error) {
	m.lastQuery = q
	return m.keyword, m.err
}

func (m *mockSearcher) VectorAvailable() bool { return m.vectorAvailable }

type mockDocuments struct {
	docs map[string]*store.Document
	err  error
}

func (m *mockDocuments) Get(_ context.Context, id string) (*store.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.docs[id], nil
}

func doc(id, title, content string, score float64) *store.Document {
	return &store.Document{
		ID:      id,
		Title:   title,
		Content: content,
		Metadata: map[string]any{
			"fileName": title,
			"filePath": "/kb/" + title,
			"score":    score,
		},
	}
}

func newTestServer(t *testing.T, searcher *mockSearcher, docs *mockDocuments, status StatusFunc) *Server {
	t.Helper()
	if docs == nil {
		docs = &mockDocuments{}
	}
	s, err := NewServer(Deps{
		Searcher:  searcher,
		Settings:  runtimecfg.New(config.NewConfig().Search, slog.New(slog.DiscardHandler)),
		Documents: docs,
		Status:    status,
		Logger:    slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	return s
}
