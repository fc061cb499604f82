package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/output"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/pkg/version"
)

type versionOptions struct {
	json  bool
	short bool
}

func newVersionCmd() *cobra.Command {
	opts := &versionOptions{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the kbqa version",
		Long: `Print the kbqa version, the commit and date it was built from, and the
storage layout it reads and writes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printVersion(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "Print build information as JSON")
	cmd.Flags().BoolVar(&opts.short, "short", false, "Print the version number only")

	return cmd
}

func printVersion(w io.Writer, opts *versionOptions) error {
	switch {
	case opts.short:
		_, err := fmt.Fprintln(w, version.Short())
		return err
	case opts.json:
		return output.New(w).JSON(version.GetInfo())
	}
	_, err := fmt.Fprintf(w, "%s\nstorage: %s/ (bleve), %s (hnsw, cosine)\n",
		version.String(), lexicalDirName, vectorFileName)
	return err
}
