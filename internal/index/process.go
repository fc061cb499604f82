package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	kberrors "github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/errors"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/scanner"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/store"
)

// Metadata keys set on every indexed document.
const (
	MetaFileName      = "fileName"
	MetaFileSize      = "fileSize"
	MetaFilePath      = "filePath"
	MetaFileExtension = "fileExtension"
	MetaLastModified  = "lastModified"
	MetaIndexTime     = "indexTime"
)

// DocumentID derives the id of a file's document from its absolute path,
// modification time and size.
func DocumentID(absPath string, mtime time.Time, size int64) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", absPath, mtime.UnixMilli(), size)))
	return hex.EncodeToString(h[:])[:16]
}

// prepared is a parsed and chunked file waiting to be written.
type prepared struct {
	file    *scanner.FileInfo
	docs    []*store.Document
	vectors [][]float32 // parallel to docs; nil when not embedded
	chars   int
}

func (f *prepared) ids() []string {
	ids := make([]string, len(f.docs))
	for i, d := range f.docs {
		ids[i] = d.ID
	}
	return ids
}

// prepare parses, truncates, chunks and embeds one file. A nil result with
// a nil error means the file was skipped.
func (p *Pipeline) prepare(ctx context.Context, f *scanner.FileInfo, logger *slog.Logger) (*prepared, error) {
	if !p.deps.Optimizer.CheckFileSize(f.Size) {
		logger.Warn("file_oversized",
			slog.String("code", kberrors.ErrCodeFileTooLarge),
			slog.String("path", f.Path),
			slog.Int64("size", f.Size))
		return nil, nil
	}

	content, err := p.deps.Parser.Parse(f.AbsPath)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		logger.Debug("file_empty", slog.String("path", f.Path))
		return nil, nil
	}

	chars := utf8.RuneCountInString(content)
	if limit := p.cfg.MaxContentChars; limit > 0 && chars > limit {
		content = string([]rune(content)[:limit])
		logger.Info("content_truncated",
			slog.String("code", kberrors.ErrCodeContentTruncated),
			slog.String("path", f.Path),
			slog.Int("chars", chars),
			slog.Int("kept", limit),
			slog.Float64("discarded_percent", float64(chars-limit)*100/float64(chars)))
		chars = limit
	}

	now := time.Now()
	doc := &store.Document{
		ID:      DocumentID(f.AbsPath, f.ModTime, f.Size),
		Title:   filepath.Base(f.AbsPath),
		Content: content,
		Metadata: map[string]any{
			MetaFileName:      filepath.Base(f.AbsPath),
			MetaFileSize:      f.Size,
			MetaFilePath:      f.AbsPath,
			MetaFileExtension: strings.TrimPrefix(strings.ToLower(filepath.Ext(f.AbsPath)), "."),
			MetaLastModified:  f.ModTime.UnixMilli(),
			MetaIndexTime:     now.UnixMilli(),
		},
	}

	docs := []*store.Document{doc}
	opt := p.deps.Optimizer
	if opt.NeedsForceChunking(chars) || opt.ShouldAutoChunk(chars) {
		docs = p.deps.Chunker.Chunk(doc)
	}

	pf := &prepared{file: f, docs: docs, chars: chars}
	if p.vectorEnabled() {
		pf.vectors = p.embed(ctx, pf, logger)
	}
	return pf, nil
}

// embed returns one vector per document, or nil when embedding failed.
// Failed documents are still indexed lexically.
func (p *Pipeline) embed(ctx context.Context, pf *prepared, logger *slog.Logger) [][]float32 {
	texts := make([]string, len(pf.docs))
	for i, d := range pf.docs {
		texts[i] = d.Title + "\n" + d.Content
	}
	vectors, err := p.deps.Embedder.EmbedBatch(ctx, texts)
	if err == nil && len(vectors) != len(texts) {
		err = fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	if err != nil {
		logger.Debug("embedding_failed",
			slog.String("path", pf.file.Path),
			slog.String("error", err.Error()))
		return nil
	}
	return vectors
}

// apply queues the file's documents in the lexical index, adds their
// vectors, and deletes documents from a previous version of the file.
// Callers hold commitMu.
func (p *Pipeline) apply(ctx context.Context, pf *prepared, logger *slog.Logger) error {
	if rec, ok := p.deps.Detector.Record(pf.file.AbsPath); ok {
		if stale := staleIDs(rec.DocumentIDs, pf.ids()); len(stale) > 0 {
			if err := p.deleteDocuments(ctx, stale); err != nil {
				return fmt.Errorf("delete previous documents: %w", err)
			}
		}
	}

	for i, doc := range pf.docs {
		if err := p.deps.Lexical.Index(ctx, doc); err != nil {
			return kberrors.New(kberrors.ErrCodeIndexFailed, "failed to index document", err).
				WithDetail("id", doc.ID)
		}
		if pf.vectors == nil {
			continue
		}
		if err := p.deps.Vector.Add(ctx, doc.ID, pf.vectors[i]); err != nil {
			logger.Debug("vector_add_failed",
				slog.String("id", doc.ID),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// commit makes queued writes visible and marks the committed files as
// indexed. Callers hold commitMu.
func (p *Pipeline) commit(ctx context.Context, pending []*prepared, st *runState) {
	if err := p.deps.Lexical.Commit(ctx); err != nil {
		st.failed.Add(int64(len(pending)))
		st.logger.Error("batch_commit_failed",
			slog.Int("files", len(pending)),
			slog.String("error", err.Error()))
		return
	}
	for _, pf := range pending {
		p.deps.Detector.MarkIndexed(pf.file.AbsPath, pf.file.ModTime, pf.file.Size, pf.ids()...)
	}
	st.success.Add(int64(len(pending)))
}

func staleIDs(old, current []string) []string {
	keep := make(map[string]struct{}, len(current))
	for _, id := range current {
		keep[id] = struct{}{}
	}
	var stale []string
	for _, id := range old {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	return stale
}

func (p *Pipeline) fileFailed(st *runState, f *scanner.FileInfo, err error) {
	st.failed.Add(1)
	st.logger.Warn("file_index_failed",
		slog.String("path", f.Path),
		slog.String("code", kberrors.GetCode(err)),
		slog.String("error", err.Error()))
}
