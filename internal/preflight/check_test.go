package preflight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/config"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/embed"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/store"
)

type namedEmbedder struct {
	*embed.StaticEmbedder
	name string
}

func (e namedEmbedder) ModelName() string { return e.name }

func factoryReturning(e embed.Embedder, err error) Option {
	return WithEmbedderFactory(func(context.Context, config.EmbeddingsConfig) (embed.Embedder, error) {
		return e, err
	})
}

func TestCheckStatus_String(t *testing.T) {
	assert.Equal(t, "PASS", StatusPass.String())
	assert.Equal(t, "WARN", StatusWarn.String())
	assert.Equal(t, "FAIL", StatusFail.String())
	assert.Equal(t, "UNKNOWN", CheckStatus(99).String())
}

func TestCheckResult_JSON(t *testing.T) {
	// Given: a failed check
	r := CheckResult{Name: "disk_space", Status: StatusFail, Message: "full", Required: true}

	// When: encoding it
	data, err := json.Marshal(r)
	require.NoError(t, err)

	// Then: the status is written by name
	assert.Contains(t, string(data), `"status":"fail"`)
}

func TestCheckResult_IsCritical(t *testing.T) {
	assert.True(t, CheckResult{Status: StatusFail, Required: true}.IsCritical())
	assert.False(t, CheckResult{Status: StatusFail}.IsCritical())
	assert.False(t, CheckResult{Status: StatusWarn, Required: true}.IsCritical())
}

func TestChecker_SummaryStatus(t *testing.T) {
	c := New()

	tests := []struct {
		name    string
		results []CheckResult
		want    string
	}{
		{"all pass", []CheckResult{{Status: StatusPass}, {Status: StatusPass, Required: true}}, "ready"},
		{"warning", []CheckResult{{Status: StatusPass}, {Status: StatusWarn}}, "ready_with_warnings"},
		{"optional failure", []CheckResult{{Status: StatusFail}}, "ready_with_warnings"},
		{"critical failure", []CheckResult{{Status: StatusWarn}, {Status: StatusFail, Required: true}}, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.SummaryStatus(tt.results))
			assert.Equal(t, tt.want == "failed", c.HasCriticalFailures(tt.results))
		})
	}
}

func TestChecker_CheckSourceDir(t *testing.T) {
	c := New()
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.Equal(t, StatusPass, c.CheckSourceDir(dir).Status)
	assert.Equal(t, StatusFail, c.CheckSourceDir(file).Status)

	missing := c.CheckSourceDir(filepath.Join(dir, "missing"))
	assert.Equal(t, StatusFail, missing.Status)
	assert.True(t, missing.IsCritical())
}

func TestChecker_CheckWritePermissions(t *testing.T) {
	// Given: a storage directory that does not exist yet
	storage := filepath.Join(t.TempDir(), ".kbqa")

	// When: checking it
	result := New().CheckWritePermissions(storage)

	// Then: it is created and left without probe files
	assert.Equal(t, StatusPass, result.Status)
	entries, err := os.ReadDir(storage)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestChecker_CheckDiskSpace(t *testing.T) {
	result := New().CheckDiskSpace(t.TempDir())
	assert.NotEqual(t, "", result.Message)
	assert.True(t, result.Required)

	missing := New().CheckDiskSpace(filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, StatusFail, missing.Status)
}

func TestChecker_CheckIndexLock(t *testing.T) {
	storage := t.TempDir()

	// Given: a free storage directory
	assert.Equal(t, StatusPass, New().CheckIndexLock(storage).Status)

	// Given: a lock held by an indexing run
	lock := store.NewStorageLock(storage)
	require.NoError(t, lock.Acquire())
	defer func() { _ = lock.Release() }()

	// Then: the check warns without failing
	result := New().CheckIndexLock(storage)
	assert.Equal(t, StatusWarn, result.Status)
	assert.False(t, result.IsCritical())
}

func TestChecker_CheckEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		result := New().CheckEmbedder(ctx, config.EmbeddingsConfig{Provider: "none"})
		assert.Equal(t, StatusWarn, result.Status)
	})

	t.Run("invalid provider", func(t *testing.T) {
		result := New().CheckEmbedder(ctx, config.EmbeddingsConfig{Provider: "bogus"})
		assert.Equal(t, StatusFail, result.Status)
		assert.False(t, result.IsCritical())
	})

	t.Run("static", func(t *testing.T) {
		result := New().CheckEmbedder(ctx, config.EmbeddingsConfig{Provider: "static"})
		assert.Equal(t, StatusPass, result.Status)
		assert.Contains(t, result.Message, "static")
	})

	t.Run("auto fell back to static", func(t *testing.T) {
		c := New(factoryReturning(embed.NewStaticEmbedder(), nil))
		result := c.CheckEmbedder(ctx, config.EmbeddingsConfig{})
		assert.Equal(t, StatusWarn, result.Status)
		assert.Contains(t, result.Message, "Ollama unreachable")
	})

	t.Run("ollama ready", func(t *testing.T) {
		e := namedEmbedder{StaticEmbedder: embed.NewStaticEmbedder(), name: "nomic-embed-text"}
		c := New(factoryReturning(e, nil))
		result := c.CheckEmbedder(ctx, config.EmbeddingsConfig{Provider: "ollama"})
		assert.Equal(t, StatusPass, result.Status)
		assert.Contains(t, result.Message, "nomic-embed-text")
	})

	t.Run("ollama unreachable", func(t *testing.T) {
		c := New(factoryReturning(nil, errors.New("connection refused")))
		result := c.CheckEmbedder(ctx, config.EmbeddingsConfig{Provider: "ollama"})
		assert.Equal(t, StatusFail, result.Status)
		assert.False(t, result.IsCritical())
		assert.NotEmpty(t, result.Details)
	})
}

func TestChecker_RunAllAndPrint(t *testing.T) {
	// Given: a project with documents and static embeddings
	root := t.TempDir()
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "static"

	var buf bytes.Buffer
	c := New(WithOutput(&buf), WithVerbose(true))

	// When: running every check
	results := c.RunAll(context.Background(), cfg, root)
	c.PrintResults(results)

	// Then: every check reports and none is critical
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"source_dir", "write_permissions", "disk_space", "file_descriptors", "index_lock", "embedder"}, names)
	assert.Contains(t, buf.String(), "kbqa System Check")
	assert.Contains(t, buf.String(), "[PASS] source_dir")
	assert.Contains(t, buf.String(), "Status:")
}

func TestExistingParent(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, dir, existingParent(filepath.Join(dir, "a", "b")))
	assert.Equal(t, dir, existingParent(dir))
}
