// Package cmd provides the CLI commands for kbqa.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	kberrors "github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/errors"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/logging"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/profiling"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/pkg/version"
)

// Profiling flags
var (
	profileOpts    profiling.Options
	profileSession *profiling.Session
)

// Logging flags
var (
	debugMode      bool
	noColor        bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the kbqa CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kbqa",
		Short: "Hybrid retrieval over a local document knowledge base",
		Long: `kbqa indexes a directory of documents and retrieves the passages most
relevant to a question, fusing keyword (BM25) relevance with embedding
similarity.

Typical use:
  kbqa index ./docs          build or refresh the index
  kbqa search "how do I..."  query it from the terminal
  kbqa serve                 expose it to assistants over MCP`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("kbqa version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.kbqa/logs/")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().StringVar(&profileOpts.CPUPath, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.HeapPath, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.TracePath, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging installs the CLI logger and starts profiling if
// flags are set. serve replaces the logger with a file-only one.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	logger, cleanup, err := logging.Setup(logging.CLIConfig(debugMode))
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	if debugMode {
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}

	if profileOpts.Enabled() {
		profileSession, err = profiling.Start(profileOpts)
		if err != nil {
			return err
		}
	}
	return nil
}

// stopProfilingAndLogging stops profiling and flushes the log file.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profileSession != nil {
		err = profileSession.Stop()
		profileSession = nil
	}

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// Execute runs the root command and prints a failure the way the error
// package formats it.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, kberrors.FormatForCLI(err, debugMode))
	}
	return err
}
