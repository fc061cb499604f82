package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_ListsSubcommands(t *testing.T) {
	// Given: the root command
	cmd := NewRootCmd()

	// Then: every subcommand is registered
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"index", "search", "watch", "serve", "status", "doctor", "config", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCmd_Help(t *testing.T) {
	setupProject(t)

	out, err := execute(t, "--help")

	require.NoError(t, err)
	assert.Contains(t, out, "kbqa")
	assert.Contains(t, out, "--debug")
	assert.Contains(t, out, "--profile-cpu")
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	setupProject(t)

	_, err := execute(t, "frobnicate")

	assert.Error(t, err)
}

func TestRootCmd_ProfileFlags(t *testing.T) {
	// Given: a heap profile requested for a quick command
	root := setupProject(t)
	heap := filepath.Join(root, "mem.prof")

	// When: running it
	_, err := execute(t, "--profile-mem", heap, "version", "--short")

	// Then: the profile is written after the command
	require.NoError(t, err)
	assert.FileExists(t, heap)
}
