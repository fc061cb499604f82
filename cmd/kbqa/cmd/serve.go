package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/async"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/index"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/logging"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/mcp"
)

type serveOptions struct {
	transport string
	addr      string
	offline   bool
	noIndex   bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve retrieval over the Model Context Protocol",
		Long: `Start an MCP server exposing hybrid_search, keyword_search, the runtime
search configuration tools, and index_status.

On stdio, stdout carries JSON-RPC only; logs go to ~/.kbqa/logs/kbqa.log.
Unless --no-index is given, an incremental build runs in the background
while the server already answers from the existing index.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "", "Transport: stdio or http (default: server.transport)")
	cmd.Flags().StringVar(&opts.addr, "addr", "127.0.0.1:8765", "Listen address for the http transport")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use static embeddings (no Ollama)")
	cmd.Flags().BoolVar(&opts.noIndex, "no-index", false, "Do not refresh the index on startup")

	return cmd
}

func runServe(ctx context.Context, opts *serveOptions) error {
	p, err := loadProject(".", "")
	if err != nil {
		return err
	}

	level := p.cfg.Server.LogLevel
	if debugMode {
		level = "debug"
	}
	cleanup, err := logging.SetupServeMode(level)
	if err != nil {
		return err
	}
	defer cleanup()
	logger := slog.Default()

	eng, err := openEngine(ctx, p, openOptions{offline: opts.offline, write: true}, logger)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	var indexer *async.BackgroundIndexer
	if !opts.noIndex {
		indexer = async.NewBackgroundIndexer(func(ctx context.Context, report func(index.Progress)) index.BuildResult {
			pipeline, err := eng.pipeline(report)
			if err != nil {
				return index.BuildResult{Err: err}
			}
			return pipeline.BuildIncremental(ctx, eng.project.sourceDir())
		}, logger)
		if err := indexer.Start(ctx); err != nil {
			return err
		}
		defer indexer.Stop()
	}

	server, err := mcp.NewServer(mcp.Deps{
		Searcher:  eng.scorer,
		Settings:  eng.settings,
		Documents: eng.lexical,
		Status:    serveStatus(eng, indexer),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	transport := opts.transport
	if transport == "" {
		transport = p.cfg.Server.Transport
	}
	return server.Serve(ctx, transport, opts.addr)
}

// serveStatus answers index_status from the engine and, when one ran,
// the background build.
func serveStatus(eng *engine, indexer *async.BackgroundIndexer) mcp.StatusFunc {
	return func(context.Context) (*mcp.IndexStatusOutput, error) {
		info, err := eng.status()
		if err != nil {
			return nil, err
		}

		out := &mcp.IndexStatusOutput{
			SourceDir:    info.SourceDir,
			StoragePath:  info.StoragePath,
			TrackedFiles: info.TrackedFiles,
			TrackedBytes: info.TrackedBytes,
			Documents:    info.Documents,
			Vectors:      info.Vectors,
			Embeddings: mcp.EmbeddingInfo{
				Provider:   info.Embedder.Backend,
				Model:      info.Embedder.Model,
				Dimensions: info.Embedder.Dimensions,
			},
		}
		if !info.LastIndexed.IsZero() {
			out.LastIndexed = info.LastIndexed.Format(time.RFC3339)
		}
		if indexer != nil {
			snap := indexer.Progress().Snapshot()
			out.Indexing = &snap
		}
		return out, nil
	}
}
