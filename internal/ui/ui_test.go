package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStage_StringAndIcon(t *testing.T) {
	tests := []struct {
		stage Stage
		name  string
		icon  string
	}{
		{StageScanning, "Scanning", "SCAN"},
		{StageIndexing, "Indexing", "INDEX"},
		{StageCommitting, "Committing", "COMMIT"},
		{StageComplete, "Complete", "DONE"},
		{Stage(99), "Unknown", "???"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.stage.String())
			assert.Equal(t, tt.icon, tt.stage.Icon())
		})
	}
}

func TestNewConfig_Options(t *testing.T) {
	// Given/When: a config with every option
	buf := &bytes.Buffer{}
	cfg := NewConfig(buf, WithForcePlain(true), WithNoColor(true), WithSourceDir("/kb"))

	// Then: all fields are set
	assert.Same(t, buf, cfg.Output)
	assert.True(t, cfg.ForcePlain)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "/kb", cfg.SourceDir)
}

func TestNewRenderer_NonTTYIsPlain(t *testing.T) {
	// Given: a buffer, which is not a terminal
	buf := &bytes.Buffer{}

	// When: creating a renderer
	r := NewRenderer(NewConfig(buf))

	// Then: the plain renderer is chosen
	assert.IsType(t, &PlainRenderer{}, r)
	assert.False(t, IsTTY(buf))
}

func TestDetectCI(t *testing.T) {
	// Given: CI is set
	t.Setenv("CI", "true")

	// Then: CI is detected
	assert.True(t, DetectCI())
}

func TestDetectNoColor(t *testing.T) {
	// Given: NO_COLOR is set, even to an empty value
	t.Setenv("NO_COLOR", "")

	// Then: no-color is detected
	assert.True(t, DetectNoColor())
}
