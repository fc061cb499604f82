package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/output"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that this machine and project can host an index",
		Long: `Run preflight checks: the document directory is readable, the storage
directory is writable with enough free disk space, no other process is
indexing, and the configured embedder responds.

Exits with an error when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProject(".", "")
			if err != nil {
				return err
			}

			checker := preflight.New(
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithVerbose(verbose),
			)
			results := checker.RunAll(cmd.Context(), p.cfg, p.root)

			if jsonOutput {
				if err := output.New(cmd.OutOrStdout()).JSON(map[string]any{
					"status": checker.SummaryStatus(results),
					"checks": results,
				}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return fmt.Errorf("preflight checks failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")

	return cmd
}
