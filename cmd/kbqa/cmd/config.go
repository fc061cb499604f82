package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/config"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/output"
)

// projectConfigFile is the name config init writes.
const projectConfigFile = ".kbqa.yaml"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage kbqa configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/kbqa/config.yaml)
  3. Project config (.kbqa.yaml, .kbqa.yml or .kbqa.toml)
  4. .env in the project root
  5. Environment variables (KBQA_*)`,
		Example: `  # Write a project config with the defaults
  kbqa config init

  # Show effective configuration (merged from all sources)
  kbqa config show --json`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force bool
		user  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the defaults",
		Long: `Write the default configuration to .kbqa.yaml in the project root, or
with --user to the user configuration file. An existing file is kept
unless --force is given, in which case it is backed up first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force, user)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file (a backup is kept)")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the project config")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProject(".", "")
			if err != nil {
				return err
			}
			if jsonOutput {
				return output.New(cmd.OutOrStdout()).JSON(p.cfg)
			}
			data, err := yaml.Marshal(p.cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print configuration file paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProject(".", "")
			if err != nil {
				return err
			}
			projectPath := config.ProjectConfigPath(p.root)
			if projectPath == "" {
				projectPath = filepath.Join(p.root, projectConfigFile) + " (not created)"
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "user:    %s\n", config.GetUserConfigPath())
			_, _ = fmt.Fprintf(out, "project: %s\n", projectPath)
			return nil
		},
	}
}

func runConfigInit(cmd *cobra.Command, force, user bool) error {
	out := output.New(cmd.OutOrStdout())

	var path string
	if user {
		path = config.GetUserConfigPath()
	} else {
		p, err := loadProject(".", "")
		if err != nil {
			return err
		}
		path = config.ProjectConfigPath(p.root)
		if path == "" {
			path = filepath.Join(p.root, projectConfigFile)
		}
	}

	if _, err := os.Stat(path); err == nil {
		if !force {
			out.Warning("Configuration already exists")
			out.Statusf("📁", "Location: %s", path)
			out.Status("💡", "Use --force to overwrite it (a backup is kept)")
			return nil
		}
		backup, err := config.BackupFile(path)
		if err != nil {
			return err
		}
		out.Statusf("💾", "Backed up to %s", backup)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := config.NewConfig().WriteYAML(path); err != nil {
		return err
	}
	out.Successf("Wrote %s", path)
	return nil
}
