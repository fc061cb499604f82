package preflight

import (
	"context"
	"fmt"
	"time"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/config"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/embed"
)

// embedderCheckTimeout bounds the embedder probe.
const embedderCheckTimeout = 10 * time.Second

// CheckEmbedder opens the configured embedder and reports which backend
// serves vector search.
func (c *Checker) CheckEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) CheckResult {
	result := CheckResult{Name: "embedder"}

	provider, err := embed.ParseProvider(cfg.Provider)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	if provider == embed.ProviderNone {
		result.Status = StatusWarn
		result.Message = "disabled (lexical search only)"
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, embedderCheckTimeout)
	defer cancel()

	e, err := c.embedder(ctx, cfg)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		result.Details = "Start Ollama, or set embeddings.provider to static"
		return result
	}
	if e == nil {
		result.Status = StatusWarn
		result.Message = "disabled (lexical search only)"
		return result
	}
	defer func() { _ = e.Close() }()

	result.Message = fmt.Sprintf("%s (%d dims)", e.ModelName(), e.Dimensions())
	if provider == embed.ProviderAuto && e.ModelName() == embed.StaticModelName {
		result.Status = StatusWarn
		result.Message = "Ollama unreachable, using static embeddings"
		result.Details = fmt.Sprintf("host: %s", cfg.OllamaHost)
		return result
	}
	result.Status = StatusPass
	return result
}
