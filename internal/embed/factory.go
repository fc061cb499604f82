package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/config"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderAuto tries Ollama and falls back to static
	ProviderAuto ProviderType = ""

	// ProviderOllama uses the Ollama API and fails when it is unavailable
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings
	ProviderStatic ProviderType = "static"

	// ProviderNone disables the vector engine
	ProviderNone ProviderType = "none"
)

// ParseProvider converts a config string to ProviderType
func ParseProvider(s string) (ProviderType, error) {
	switch p := ProviderType(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderAuto, ProviderOllama, ProviderStatic, ProviderNone:
		return p, nil
	default:
		return "", fmt.Errorf("unknown embeddings provider %q (want static, ollama or none)", s)
	}
}

// NewEmbedder creates the embedder configured in cfg, wrapped in an LRU
// cache. ProviderNone returns (nil, nil): no vector engine. An explicitly
// selected Ollama that cannot be reached is an error; auto-detection falls
// back to the static embedder instead.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig, logger *slog.Logger) (Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	var embedder Embedder
	switch provider {
	case ProviderNone:
		return nil, nil

	case ProviderStatic:
		embedder = NewStaticEmbedder()

	case ProviderOllama, ProviderAuto:
		ollama, err := NewOllamaEmbedder(ctx, ollamaConfigFrom(cfg, logger))
		switch {
		case err == nil:
			embedder = ollama
		case provider == ProviderOllama:
			return nil, fmt.Errorf("ollama unavailable: %w", err)
		default:
			logger.Warn("embedder_fallback",
				slog.String("from", string(ProviderOllama)),
				slog.String("to", string(ProviderStatic)),
				slog.String("error", err.Error()))
			embedder = NewStaticEmbedder()
		}
	}

	logger.Debug("embedder_ready",
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()))

	return NewCachedEmbedder(embedder, cfg.CacheSize), nil
}

func ollamaConfigFrom(cfg config.EmbeddingsConfig, logger *slog.Logger) OllamaConfig {
	oc := DefaultOllamaConfig()
	if cfg.OllamaHost != "" {
		oc.Host = cfg.OllamaHost
	}
	if cfg.Model != "" {
		oc.Model = cfg.Model
	}
	oc.Dimensions = cfg.Dimensions
	oc.Timeout = cfg.RequestTimeout()
	oc.RequestsPerSecond = cfg.RequestsPerSecond
	oc.Logger = logger
	return oc
}
