package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index state",
		Long: `Show the document and storage directories, how many files and documents
are indexed, which embedder serves vector search, and when the index was
last updated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProject(".", "")
			if err != nil {
				return err
			}
			eng, err := openEngine(cmd.Context(), p, openOptions{}, slog.Default())
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			info, err := eng.status()
			if err != nil {
				return err
			}

			r := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor || ui.DetectNoColor())
			if jsonOutput {
				return r.RenderJSON(info)
			}
			return r.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
