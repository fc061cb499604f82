package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	kberrors "github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/errors"
)

// Ollama API constants
const (
	// DefaultOllamaHost is the default Ollama API endpoint
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the default embedding model
	DefaultOllamaModel = "nomic-embed-text"

	// OllamaConnectTimeout bounds the startup health check
	OllamaConnectTimeout = 5 * time.Second
)

// OllamaConfig configures the Ollama embedder
type OllamaConfig struct {
	Host  string
	Model string

	// Dimensions overrides auto-detection (0 = detect from a probe request)
	Dimensions int

	// BatchSize is the number of texts per /api/embed request
	BatchSize int

	// Timeout bounds each request attempt
	Timeout time.Duration

	// RequestsPerSecond throttles calls to the server (0 = unlimited)
	RequestsPerSecond float64

	// Retry configures retries of transient failures
	Retry kberrors.RetryConfig

	// SkipHealthCheck skips the model lookup and dimension probe (for testing)
	SkipHealthCheck bool

	Logger *slog.Logger
}

// DefaultOllamaConfig returns sensible defaults
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:              DefaultOllamaHost,
		Model:             DefaultOllamaModel,
		BatchSize:         DefaultBatchSize,
		Timeout:           DefaultTimeout,
		RequestsPerSecond: 10,
		Retry:             kberrors.DefaultRetryConfig(),
	}
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaEmbedder generates embeddings using Ollama's HTTP API
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	limiter   *rate.Limiter
	config    OllamaConfig
	logger    *slog.Logger
	modelName string
	dims      int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder connects to Ollama, resolves the model and detects
// its dimension. An unreachable server yields EngineUnreachable.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = kberrors.DefaultRetryConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	// No client-wide timeout; each attempt gets its own context deadline.
	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     10 * time.Second,
	}

	e := &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		limiter:   rate.NewLimiter(limit, 1),
		config:    cfg,
		logger:    cfg.Logger,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, OllamaConnectTimeout+cfg.Timeout)
		defer cancel()

		name, err := e.findModel(checkCtx)
		if err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}
		e.modelName = name

		if e.dims == 0 {
			vecs, err := e.doEmbed(checkCtx, []string{"dimension probe"})
			if err != nil {
				transport.CloseIdleConnections()
				return nil, fmt.Errorf("failed to detect embedding dimensions: %w", err)
			}
			if len(vecs) == 0 || len(vecs[0]) == 0 {
				transport.CloseIdleConnections()
				return nil, kberrors.New(kberrors.ErrCodeEmbeddingFailed, "empty embedding returned", nil)
			}
			e.dims = len(vecs[0])
		}
	}

	if e.dims == 0 {
		return nil, kberrors.ConfigError("ollama dimensions unknown: set embeddings.dimensions", nil)
	}

	return e, nil
}

// findModel returns the installed model matching the configured name,
// with or without a tag.
func (e *OllamaEmbedder) findModel(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", kberrors.New(kberrors.ErrCodeEngineUnreachable, "failed to connect to Ollama", err).
			WithDetail("host", e.config.Host).
			WithSuggestion("Start Ollama with 'ollama serve' or use embeddings.provider: static")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", kberrors.New(kberrors.ErrCodeEngineUnreachable,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	want := strings.ToLower(e.config.Model)
	for _, m := range tags.Models {
		name := strings.ToLower(m.Name)
		base, _, _ := strings.Cut(name, ":")
		if name == want || base == want {
			return m.Name, nil
		}
	}

	return "", kberrors.New(kberrors.ErrCodeEngineUnreachable,
		fmt.Sprintf("embedding model %q is not installed", e.config.Model), nil).
		WithSuggestion(fmt.Sprintf("Run 'ollama pull %s'", e.config.Model))
}

// Embed generates the embedding of one text. Blank text gives a zero vector.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in requests of BatchSize.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	results := make([][]float32, len(texts))
	var idx []int
	var pending []string
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
			continue
		}
		idx = append(idx, i)
		pending = append(pending, text)
	}

	for start := 0; start < len(pending); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(pending))

		vecs, err := kberrors.RetryWithResult(ctx, e.config.Retry, func() ([][]float32, error) {
			return e.embedOnce(ctx, pending[start:end])
		})
		if err != nil {
			return nil, kberrors.New(kberrors.ErrCodeEmbeddingFailed, "ollama embedding failed", err)
		}
		if len(vecs) != end-start {
			return nil, kberrors.New(kberrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("expected %d embeddings, got %d", end-start, len(vecs)), nil)
		}
		for j, v := range vecs {
			results[idx[start+j]] = v
		}
	}
	return results, nil
}

// embedOnce waits for the rate limiter and runs one bounded request.
func (e *OllamaEmbedder) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	started := time.Now()
	vecs, err := e.doEmbed(attemptCtx, texts)
	if err != nil {
		e.logger.Debug("embedding_attempt_failed",
			slog.Int("texts", len(texts)),
			slog.Duration("elapsed", time.Since(started)),
			slog.String("error", err.Error()))
		return nil, err
	}
	return vecs, nil
}

// doEmbed performs a single /api/embed request. Transport errors and 5xx
// responses are retryable; other statuses are not.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.modelName, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, kberrors.New(kberrors.ErrCodeEngineTimeout, "ollama request timed out", err)
		}
		return nil, kberrors.New(kberrors.ErrCodeEngineUnreachable, "ollama request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		msg := fmt.Sprintf("embedding failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, kberrors.New(kberrors.ErrCodeEngineUnreachable, msg, nil)
		}
		return nil, kberrors.New(kberrors.ErrCodeEmbeddingFailed, msg, nil)
	}

	var apiResult ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
		return nil, kberrors.New(kberrors.ErrCodeEmbeddingFailed, "failed to decode response", err)
	}

	embeddings := make([][]float32, len(apiResult.Embeddings))
	for i, emb := range apiResult.Embeddings {
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		embeddings[i] = normalizeVector(vec)
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension
func (e *OllamaEmbedder) Dimensions() int { return e.dims }

// ModelName returns the resolved model name
func (e *OllamaEmbedder) ModelName() string { return e.modelName }

// Available checks that Ollama responds and still has the model.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}
	_, err := e.findModel(ctx)
	return err == nil
}

// Close releases idle connections
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
