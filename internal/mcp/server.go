package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/runtimecfg"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/store"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/pkg/version"
)

// Searcher is the retrieval surface the server needs. *search.Scorer
// implements it.
type Searcher interface {
	HybridSearch(ctx context.Context, query string) ([]*store.Document, error)
	KeywordSearch(ctx context.Context, query string) ([]*store.Document, error)
	VectorAvailable() bool
}

// DocumentStore loads stored documents for resource reads.
type DocumentStore interface {
	Get(ctx context.Context, id string) (*store.Document, error)
}

// StatusFunc reports the current index state for index_status.
type StatusFunc func(ctx context.Context) (*IndexStatusOutput, error)

// Deps are the collaborators of a Server. Status is optional.
type Deps struct {
	Searcher  Searcher
	Settings  *runtimecfg.Settings
	Documents DocumentStore
	Status    StatusFunc
	Logger    *slog.Logger
}

// Server is the MCP server for kbqa.
type Server struct {
	mcp    *mcp.Server
	deps   Deps
	logger *slog.Logger
}

// ToolNames lists the registered tools in registration order.
var ToolNames = []string{
	"hybrid_search",
	"keyword_search",
	"get_search_config",
	"update_search_config",
	"reset_search_config",
	"index_status",
}

// NewServer creates a server and registers its tools and resources.
func NewServer(deps Deps) (*Server, error) {
	if deps.Searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if deps.Settings == nil {
		return nil, errors.New("search settings are required")
	}
	if deps.Documents == nil {
		return nil, errors.New("document store is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		deps:   deps,
		logger: logger,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "kbqa",
			Version: version.Version,
		}, nil),
	}

	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "hybrid_search",
		Description: "Search the knowledge base. Combines keyword relevance with semantic similarity and returns the best matching documents with their text.",
	}, s.handleHybridSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "keyword_search",
		Description: "Keyword-only search over the knowledge base. Use for exact terms, identifiers, or when semantic search is unavailable.",
	}, s.handleKeywordSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_search_config",
		Description: "Show the effective retrieval parameters and whether runtime overrides are active.",
	}, s.handleGetConfig)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "update_search_config",
		Description: "Change retrieval parameters for this server process. Omitted fields are unchanged; nothing is applied if any value is invalid.",
	}, s.handleUpdateConfig)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reset_search_config",
		Description: "Drop every runtime override and return to the configured defaults.",
	}, s.handleResetConfig)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report indexed file and document counts and which embedder serves vector search.",
	}, s.handleIndexStatus)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(ToolNames)))
}

func (s *Server) handleHybridSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	return s.search(ctx, "hybrid_search", input, s.deps.Searcher.HybridSearch)
}

func (s *Server) handleKeywordSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	return s.search(ctx, "keyword_search", input, s.deps.Searcher.KeywordSearch)
}

func (s *Server) search(
	ctx context.Context,
	tool string,
	input SearchInput,
	run func(context.Context, string) ([]*store.Document, error),
) (*mcp.CallToolResult, SearchOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	if input.Limit < 0 {
		return nil, SearchOutput{}, NewInvalidParamsError("limit must not be negative")
	}

	start := time.Now()
	requestID := generateRequestID()

	docs, err := run(ctx, input.Query)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.String("tool", tool),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	if input.Limit > 0 && len(docs) > input.Limit {
		docs = docs[:input.Limit]
	}

	mode := "keyword"
	if tool == "hybrid_search" && s.deps.Searcher.VectorAvailable() {
		mode = "hybrid"
	}

	out := SearchOutput{
		Query:      input.Query,
		Mode:       mode,
		Results:    make([]SearchResultOutput, 0, len(docs)),
		Count:      len(docs),
		DurationMs: duration.Milliseconds(),
	}
	for _, d := range docs {
		out.Results = append(out.Results, ToSearchResultOutput(d))
	}

	s.logger.Info("mcp_search_complete",
		slog.String("request_id", requestID),
		slog.String("tool", tool),
		slog.String("mode", mode),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(docs)))

	return textResult(FormatSearchResults(out)), out, nil
}

func (s *Server) handleGetConfig(_ context.Context, _ *mcp.CallToolRequest, _ ConfigInput) (
	*mcp.CallToolResult,
	runtimecfg.Info,
	error,
) {
	info := s.deps.Settings.Snapshot()
	return textResult(FormatSearchConfig(info)), info, nil
}

func (s *Server) handleUpdateConfig(_ context.Context, _ *mcp.CallToolRequest, input UpdateConfigInput) (
	*mcp.CallToolResult,
	runtimecfg.Info,
	error,
) {
	if err := s.deps.Settings.Update(input.update()); err != nil {
		return nil, runtimecfg.Info{}, MapError(err)
	}
	info := s.deps.Settings.Snapshot()
	return textResult(FormatSearchConfig(info)), info, nil
}

func (s *Server) handleResetConfig(_ context.Context, _ *mcp.CallToolRequest, _ ConfigInput) (
	*mcp.CallToolResult,
	runtimecfg.Info,
	error,
) {
	s.deps.Settings.Reset()
	info := s.deps.Settings.Snapshot()
	return textResult(FormatSearchConfig(info)), info, nil
}

func (s *Server) handleIndexStatus(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out := &IndexStatusOutput{}
	if s.deps.Status != nil {
		status, err := s.deps.Status(ctx)
		if err != nil {
			return nil, nil, MapError(err)
		}
		out = status
	}
	out.Embeddings.VectorAvailable = s.deps.Searcher.VectorAvailable()
	return nil, out, nil
}

// Serve runs the server on transport ("stdio" or "http") until ctx ends.
// addr is used by the http transport only.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("mcp_server_starting",
		slog.String("transport", transport),
		slog.String("addr", addr))

	var err error
	switch transport {
	case "", "stdio":
		err = s.mcp.Run(ctx, &mcp.StdioTransport{})
	case "http":
		err = s.serveHTTP(ctx, addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, http)", transport)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// generateRequestID creates a short id for log correlation.
func generateRequestID() string {
	return uuid.NewString()[:8]
}
