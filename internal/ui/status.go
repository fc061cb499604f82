package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/optimizer"
)

// StatusInfo is the state reported by the status command.
type StatusInfo struct {
	SourceDir       string       `json:"sourceDir"`
	StoragePath     string       `json:"storagePath"`
	TrackingBackend string       `json:"trackingBackend"`
	TrackedFiles    int          `json:"trackedFiles"`
	TrackedBytes    int64        `json:"trackedBytes"`
	Documents       int          `json:"documents"`
	Vectors         int          `json:"vectors"`
	Embedder        EmbedderInfo `json:"embedder"`
	LastIndexed     time.Time    `json:"lastIndexed,omitzero"`
}

// StatusRenderer prints StatusInfo as text or JSON.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer writing to out.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor || !IsTTY(out))}
}

// Render writes a human readable summary.
func (r *StatusRenderer) Render(info StatusInfo) error {
	var b strings.Builder
	row := func(label, value string) {
		fmt.Fprintf(&b, "  %s %s\n", r.styles.Label.Render(fmt.Sprintf("%-12s", label+":")), value)
	}

	b.WriteString(r.styles.Header.Render("kbqa status") + "\n")
	row("Source", info.SourceDir)
	row("Storage", info.StoragePath)
	row("Tracking", info.TrackingBackend)
	row("Files", fmt.Sprintf("%d (%s)", info.TrackedFiles, optimizer.FormatBytes(uint64(max(info.TrackedBytes, 0)))))
	row("Documents", fmt.Sprintf("%d", info.Documents))

	vectors := fmt.Sprintf("%d", info.Vectors)
	if info.Embedder.Backend != "" && info.Embedder.Backend != "none" {
		vectors += fmt.Sprintf(" (%s, %s, %d dims)", info.Embedder.Backend, info.Embedder.Model, info.Embedder.Dimensions)
	} else {
		vectors += r.styles.Dim.Render(" (vector search disabled)")
	}
	row("Vectors", vectors)

	if info.LastIndexed.IsZero() {
		row("Indexed", r.styles.Warning.Render("never"))
	} else {
		row("Indexed", info.LastIndexed.Local().Format(time.DateTime))
	}

	_, err := io.WriteString(r.out, b.String())
	return err
}

// RenderJSON writes info as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}
