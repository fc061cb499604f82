package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/output"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/search"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/store"
)

type searchOptions struct {
	keyword bool
	explain bool
	limit   int
	format  string
	offline bool
}

// searchResponse is the JSON shape of a search.
type searchResponse struct {
	Query       string              `json:"query"`
	Mode        string              `json:"mode"`
	Results     []output.Result     `json:"results"`
	Explanation *search.Explanation `json:"explanation,omitempty"`
}

func newSearchCmd() *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed documents",
		Long: `Search the knowledge base with hybrid retrieval.

Results fuse keyword relevance (weight 0.3 by default) with embedding
similarity (0.7). Documents below the minimum score are dropped. When no
embedder is available the search is keyword only.

Examples:
  kbqa search "reset a password"
  kbqa search --keyword "ERR_404"
  kbqa search --explain "quarterly report"
  kbqa search --format json "onboarding"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.keyword, "keyword", "k", false, "Keyword (BM25) search only")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show how each result was scored")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum results (default: search.hybrid_top_k)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use static embeddings (no Ollama)")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts *searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("invalid format %q (supported: text, json)", opts.format)
	}
	if opts.limit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}

	p, err := loadProject(".", "")
	if err != nil {
		return err
	}

	eng, err := openEngine(ctx, p, openOptions{offline: opts.offline}, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	var docs []*store.Document
	if opts.keyword {
		docs, err = eng.scorer.KeywordSearch(ctx, query)
	} else {
		docs, err = eng.scorer.HybridSearch(ctx, query)
	}
	if err != nil {
		return err
	}
	if opts.limit > 0 && len(docs) > opts.limit {
		docs = docs[:opts.limit]
	}

	var explanation *search.Explanation
	if opts.explain {
		if explanation, err = eng.scorer.Explain(ctx, query); err != nil {
			return err
		}
	}

	mode := "keyword"
	if !opts.keyword && eng.scorer.VectorAvailable() {
		mode = "hybrid"
	}

	out := output.New(cmd.OutOrStdout())
	if opts.format == "json" {
		return out.JSON(searchResponse{
			Query:       query,
			Mode:        mode,
			Results:     output.ToResults(docs),
			Explanation: explanation,
		})
	}

	if explanation != nil {
		out.Explanation(explanation, eng.scorer.Weights())
		out.Newline()
	}
	out.Results(query, docs)
	return nil
}
