package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/index"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/output"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/watcher"
)

type watchOptions struct {
	offline bool
	poll    bool
}

func newWatchCmd() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Keep the index up to date as documents change",
		Long: `Run an incremental build, then watch the document directory and
re-index whenever files are created, modified, or deleted.

Changes are batched over paths.watch_debounce before each build. When
native file notifications are unavailable the directory is polled.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var source string
			if len(args) > 0 {
				source = args[0]
			}
			return runWatch(ctx, cmd, source, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use static embeddings (no Ollama)")
	cmd.Flags().BoolVar(&opts.poll, "poll", false, "Poll for changes instead of using file notifications")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, source string, opts *watchOptions) error {
	start := "."
	if source != "" {
		start = source
	}
	p, err := loadProject(start, source)
	if err != nil {
		return err
	}

	eng, err := openEngine(ctx, p, openOptions{offline: opts.offline, write: true}, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	pipeline, err := eng.pipeline(nil)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if err := reportBuild(out, pipeline.BuildIncremental(ctx, p.sourceDir())); err != nil {
		return err
	}

	w, err := watcher.New(p.sourceDir(), watcher.Options{
		Debounce:     p.cfg.Paths.Debounce(),
		Ignore:       ignoreFunc(p),
		ForcePolling: opts.poll,
		Logger:       slog.Default(),
	})
	if err != nil {
		return err
	}
	defer w.Stop()

	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	out.Statusf("👀", "Watching %s (%s). Press Ctrl+C to stop.", p.sourceDir(), w.Mode())

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-runErr:
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err

		case err := <-w.Errors():
			slog.Warn("watch_error", slog.String("error", err.Error()))

		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			slog.Debug("watch_batch", slog.Int("events", len(batch)))
			if err := reportBuild(out, pipeline.BuildIncremental(ctx, p.sourceDir())); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				out.Warningf("Incremental build failed: %v", err)
			}
		}
	}
}

// reportBuild prints a one-line summary of an incremental build.
func reportBuild(out *output.Writer, r index.BuildResult) error {
	if r.Err != nil {
		return r.Err
	}
	if r.TotalFiles == 0 && r.RemovedCount == 0 {
		out.Status("✓", "Index is up to date")
		return nil
	}
	out.Successf("Indexed %d/%d changed files (%d documents), removed %d, in %dms",
		r.SuccessCount, r.TotalFiles, r.TotalDocuments, r.RemovedCount, r.BuildTimeMs)
	if r.FailedCount > 0 {
		out.Warningf("%d files failed", r.FailedCount)
	}
	return nil
}
