package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusRenderer_Render(t *testing.T) {
	// Given: an indexed knowledge base
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)
	info := StatusInfo{
		SourceDir:       "/kb",
		StoragePath:     "/kb/.kbqa",
		TrackingBackend: "json",
		TrackedFiles:    3,
		TrackedBytes:    2048,
		Documents:       5,
		Vectors:         5,
		Embedder:        EmbedderInfo{Backend: "static", Model: "hash", Dimensions: 256},
		LastIndexed:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	// When: rendering
	require.NoError(t, r.Render(info))

	// Then: every field appears
	out := buf.String()
	assert.Contains(t, out, "kbqa status")
	assert.Contains(t, out, "/kb/.kbqa")
	assert.Contains(t, out, "3 (2.00 KB)")
	assert.Contains(t, out, "static, hash, 256 dims")
	assert.NotContains(t, out, "never")
	assert.NotContains(t, out, "\x1b[")
}

func TestStatusRenderer_RenderNeverIndexed(t *testing.T) {
	// Given: an empty knowledge base without an embedder
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering
	require.NoError(t, r.Render(StatusInfo{SourceDir: "/kb", Embedder: EmbedderInfo{Backend: "none"}}))

	// Then: it reports no index and no vectors
	assert.Contains(t, buf.String(), "never")
	assert.Contains(t, buf.String(), "vector search disabled")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	// Given: status info
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering JSON
	require.NoError(t, r.RenderJSON(StatusInfo{SourceDir: "/kb", Documents: 2}))

	// Then: it decodes back and omits the zero time
	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "/kb", got["sourceDir"])
	assert.EqualValues(t, 2, got["documents"])
	assert.NotContains(t, got, "lastIndexed")
}
