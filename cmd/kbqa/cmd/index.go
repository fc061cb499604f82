package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/index"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/output"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/ui"
)

type indexOptions struct {
	rebuild     bool
	incremental bool
	offline     bool
	noTUI       bool
}

func newIndexCmd() *cobra.Command {
	opts := &indexOptions{}

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a document directory for searching",
		Long: `Index a directory so it can be searched.

Every supported text file is parsed, split into overlapping chunks, and
added to the keyword index and, when an embedder is available, to the
vector index.

A full build (the default) indexes every file, but leaves an index that
already holds documents untouched unless --rebuild is given. --incremental
indexes only files whose modification time or size changed and removes
documents of deleted files.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if opts.rebuild && opts.incremental {
				return fmt.Errorf("--rebuild and --incremental are mutually exclusive")
			}

			var source string
			if len(args) > 0 {
				source = args[0]
			}
			return runIndex(ctx, cmd, source, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.rebuild, "rebuild", false, "Clear the existing index and rebuild from scratch")
	cmd.Flags().BoolVar(&opts.incremental, "incremental", false, "Index only changed files and drop deleted ones")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use static embeddings (no Ollama)")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Disable TUI mode, use plain text output")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, source string, opts *indexOptions) error {
	start := "."
	if source != "" {
		start = source
	}
	p, err := loadProject(start, source)
	if err != nil {
		return err
	}

	eng, err := openEngine(ctx, p, openOptions{offline: opts.offline, resetVectors: opts.rebuild, write: true}, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.noTUI),
		ui.WithNoColor(noColor || ui.DetectNoColor()),
		ui.WithSourceDir(p.sourceDir()),
	))
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	pipeline, err := eng.pipeline(func(ev index.Progress) {
		renderer.UpdateProgress(toProgressEvent(ev))
	})
	if err != nil {
		return err
	}

	slog.Info("index_started",
		slog.String("source", p.sourceDir()),
		slog.Bool("rebuild", opts.rebuild),
		slog.Bool("incremental", opts.incremental))

	var result index.BuildResult
	if opts.incremental {
		result = pipeline.BuildIncremental(ctx, p.sourceDir())
	} else {
		result = pipeline.BuildFull(ctx, p.sourceDir(), opts.rebuild)
	}

	if result.Err != nil {
		renderer.AddError(ui.ErrorEvent{Err: result.Err})
	}
	renderer.Complete(completionStats(result, eng.embedderInfo()))
	if err := renderer.Stop(); err != nil {
		return err
	}

	if result.Err == nil && !opts.rebuild && !opts.incremental && result.TotalFiles == 0 && result.TotalDocuments > 0 {
		out := output.New(cmd.OutOrStdout())
		out.Status("💡", "The index already holds documents. Use --incremental to pick up changes or --rebuild to start over.")
	}
	return result.Err
}

func toProgressEvent(ev index.Progress) ui.ProgressEvent {
	stage := ui.StageScanning
	switch ev.Stage {
	case index.StageIndexing:
		stage = ui.StageIndexing
	case index.StageCommitting:
		stage = ui.StageCommitting
	case index.StageComplete:
		stage = ui.StageComplete
	}
	return ui.ProgressEvent{
		Stage:       stage,
		Current:     ev.Current,
		Total:       ev.Total,
		CurrentFile: ev.File,
	}
}

func completionStats(r index.BuildResult, emb ui.EmbedderInfo) ui.CompletionStats {
	return ui.CompletionStats{
		Files:        r.TotalFiles,
		Success:      r.SuccessCount,
		Failed:       r.FailedCount,
		Skipped:      r.SkippedCount,
		Removed:      r.RemovedCount,
		Documents:    r.TotalDocuments,
		Duration:     time.Duration(r.BuildTimeMs) * time.Millisecond,
		PeakMemoryMB: r.PeakMemoryMB,
		Embedder:     emb,
	}
}
