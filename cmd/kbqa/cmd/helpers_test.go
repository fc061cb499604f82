package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// testDocs is a small knowledge base.
var testDocs = map[string]string{
	"password-reset.md": "# Password reset\n\nTo reset a forgotten password open Settings, choose Security and click Reset password. A reset link is emailed to you.",
	"billing.txt":       "Invoices are issued on the first day of each month. Billing questions go to the finance team.",
	"guides/vpn.md":     "# VPN\n\nInstall the VPN client, sign in with your company account and connect to the nearest gateway.",
}

// setupProject creates a project directory with testDocs, makes it the
// working directory and isolates config and logs from the real home.
func setupProject(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	for name, content := range testDocs {
		writeFile(t, filepath.Join(root, name), content)
	}

	t.Chdir(root)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("KBQA_EMBEDDINGS_PROVIDER", "static")
	t.Setenv("NO_COLOR", "1")
	return root
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// mustIndex builds the index of the current project.
func mustIndex(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, append([]string{"index", "--no-tui"}, args...)...)
	require.NoError(t, err, out)
	return out
}
