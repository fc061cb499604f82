package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultStorageDir is the storage directory name, relative to the project root.
const DefaultStorageDir = ".kbqa"

// projectConfigNames are tried in order; the first one found wins.
var projectConfigNames = []string{".kbqa.yaml", ".kbqa.yml", ".kbqa.toml"}

// Config represents the complete kbqa configuration.
type Config struct {
	Version    int              `yaml:"version" toml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" toml:"paths" json:"paths"`
	Storage    StorageConfig    `yaml:"storage" toml:"storage" json:"storage"`
	Document   DocumentConfig   `yaml:"document" toml:"document" json:"document"`
	Search     SearchConfig     `yaml:"search" toml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" toml:"embeddings" json:"embeddings"`
	Tracking   TrackingConfig   `yaml:"tracking" toml:"tracking" json:"tracking"`
	Server     ServerConfig     `yaml:"server" toml:"server" json:"server"`
}

// PathsConfig configures which files are scanned.
type PathsConfig struct {
	// Source is the document directory. Empty means the project root.
	Source  string   `yaml:"source" toml:"source" json:"source"`
	Exclude []string `yaml:"exclude" toml:"exclude" json:"exclude"`
	// WatchDebounce is the quiet period before `kbqa watch` reindexes.
	WatchDebounce string `yaml:"watch_debounce" toml:"watch_debounce" json:"watch_debounce"`
}

// StorageConfig configures where indexes and tracking state live.
type StorageConfig struct {
	// Path is the storage directory. Relative paths resolve against the project root.
	Path string `yaml:"path" toml:"path" json:"path"`
}

// DocumentConfig configures ingestion limits, chunking and batching.
type DocumentConfig struct {
	MaxFileSizeMB        int64 `yaml:"max_file_size_mb" toml:"max_file_size_mb" json:"max_file_size_mb"`
	MaxContentSizeMB     int64 `yaml:"max_content_size_mb" toml:"max_content_size_mb" json:"max_content_size_mb"`
	AutoChunkThresholdMB int64 `yaml:"auto_chunk_threshold_mb" toml:"auto_chunk_threshold_mb" json:"auto_chunk_threshold_mb"`
	// MaxIndexContentChars caps the characters kept per file; the rest is discarded.
	MaxIndexContentChars int `yaml:"max_index_content_chars" toml:"max_index_content_chars" json:"max_index_content_chars"`

	ChunkSize    int `yaml:"chunk_size" toml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" toml:"chunk_overlap" json:"chunk_overlap"`
	// MaxChunks bounds chunks per document. 0 means unlimited.
	MaxChunks int `yaml:"max_chunks" toml:"max_chunks" json:"max_chunks"`

	BatchSize          int   `yaml:"batch_size" toml:"batch_size" json:"batch_size"`
	BatchMemoryMB      int64 `yaml:"batch_memory_mb" toml:"batch_memory_mb" json:"batch_memory_mb"`
	ParallelProcessing *bool `yaml:"parallel_processing" toml:"parallel_processing" json:"parallel_processing"`
	// Threads is the worker count for parallel mode. 0 means runtime.NumCPU().
	Threads int `yaml:"threads" toml:"threads" json:"threads"`
	// PoolShutdownTimeout bounds how long a parallel run waits for its workers.
	PoolShutdownTimeout string `yaml:"pool_shutdown_timeout" toml:"pool_shutdown_timeout" json:"pool_shutdown_timeout"`
}

// SearchConfig holds the static retrieval defaults.
// Runtime overrides for the top-K and threshold values live in runtimecfg.
type SearchConfig struct {
	LexicalTopK       int     `yaml:"lexical_top_k" toml:"lexical_top_k" json:"lexical_top_k"`
	VectorTopK        int     `yaml:"vector_top_k" toml:"vector_top_k" json:"vector_top_k"`
	HybridTopK        int     `yaml:"hybrid_top_k" toml:"hybrid_top_k" json:"hybrid_top_k"`
	DocumentsPerQuery int     `yaml:"documents_per_query" toml:"documents_per_query" json:"documents_per_query"`
	MinScoreThreshold float64 `yaml:"min_score_threshold" toml:"min_score_threshold" json:"min_score_threshold"`

	// SimilarityThreshold is the minimum cosine similarity for vector hits.
	SimilarityThreshold float64 `yaml:"similarity_threshold" toml:"similarity_threshold" json:"similarity_threshold"`

	// LexicalWeight and VectorWeight must sum to 1.0.
	LexicalWeight float64 `yaml:"lexical_weight" toml:"lexical_weight" json:"lexical_weight"`
	VectorWeight  float64 `yaml:"vector_weight" toml:"vector_weight" json:"vector_weight"`

	MinKeywordLength int      `yaml:"min_keyword_length" toml:"min_keyword_length" json:"min_keyword_length"`
	StopWords        []string `yaml:"stop_words" toml:"stop_words" json:"stop_words"`
	// DisableStopWords turns keyword filtering off entirely.
	DisableStopWords bool `yaml:"disable_stop_words" toml:"disable_stop_words" json:"disable_stop_words"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "static", "ollama", "none", or empty for auto-detection.
	Provider          string  `yaml:"provider" toml:"provider" json:"provider"`
	Model             string  `yaml:"model" toml:"model" json:"model"`
	Dimensions        int     `yaml:"dimensions" toml:"dimensions" json:"dimensions"`
	OllamaHost        string  `yaml:"ollama_host" toml:"ollama_host" json:"ollama_host"`
	Timeout           string  `yaml:"timeout" toml:"timeout" json:"timeout"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second" json:"requests_per_second"`
	CacheSize         int     `yaml:"cache_size" toml:"cache_size" json:"cache_size"`
}

// TrackingConfig selects the file tracking backend.
type TrackingConfig struct {
	// Backend is "json" (default) or "sqlite".
	Backend string `yaml:"backend" toml:"backend" json:"backend"`
}

// ServerConfig configures the MCP server and logging.
type ServerConfig struct {
	Transport string `yaml:"transport" toml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" toml:"log_level" json:"log_level"`
}

// defaultExcludePatterns are always excluded.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/*.min.js",
	"**/*.min.css",
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	parallel := true
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Exclude:       append([]string(nil), defaultExcludePatterns...),
			WatchDebounce: "500ms",
		},
		Storage: StorageConfig{
			Path: DefaultStorageDir,
		},
		Document: DocumentConfig{
			MaxFileSizeMB:        200,
			MaxContentSizeMB:     50,
			AutoChunkThresholdMB: 2,
			MaxIndexContentChars: 5_000_000,
			ChunkSize:            2000,
			ChunkOverlap:         400,
			MaxChunks:            0,
			BatchSize:            10,
			BatchMemoryMB:        100,
			ParallelProcessing:   &parallel,
			Threads:              0,
			PoolShutdownTimeout:  "60s",
		},
		Search: SearchConfig{
			LexicalTopK:         20,
			VectorTopK:          20,
			HybridTopK:          10,
			DocumentsPerQuery:   5,
			MinScoreThreshold:   0.3,
			SimilarityThreshold: 0.4,
			LexicalWeight:       0.3,
			VectorWeight:        0.7,
			MinKeywordLength:    2,
		},
		Embeddings: EmbeddingsConfig{
			Provider:          "",
			Model:             "nomic-embed-text",
			Dimensions:        0,
			OllamaHost:        "",
			Timeout:           "30s",
			RequestsPerSecond: 10,
			CacheSize:         1000,
		},
		Tracking: TrackingConfig{
			Backend: "json",
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// Parallel reports whether parallel ingestion is enabled.
func (d DocumentConfig) Parallel() bool {
	return d.ParallelProcessing == nil || *d.ParallelProcessing
}

// WorkerCount returns the configured thread count, defaulting to NumCPU.
func (d DocumentConfig) WorkerCount() int {
	if d.Threads > 0 {
		return d.Threads
	}
	return runtime.NumCPU()
}

// ShutdownTimeout parses PoolShutdownTimeout, defaulting to 60s.
func (d DocumentConfig) ShutdownTimeout() time.Duration {
	return parseDurationOr(d.PoolShutdownTimeout, 60*time.Second)
}

// Debounce parses WatchDebounce, defaulting to 500ms.
func (p PathsConfig) Debounce() time.Duration {
	return parseDurationOr(p.WatchDebounce, 500*time.Millisecond)
}

// RequestTimeout parses Timeout, defaulting to 30s.
func (e EmbeddingsConfig) RequestTimeout() time.Duration {
	return parseDurationOr(e.Timeout, 30*time.Second)
}

// StoragePath resolves the storage directory against root.
func (c *Config) StoragePath(root string) string {
	p := c.Storage.Path
	if p == "" {
		p = DefaultStorageDir
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// SourcePath resolves the document directory against root.
func (c *Config) SourcePath(root string) string {
	p := c.Paths.Source
	if p == "" {
		return root
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows the XDG Base Directory layout:
//   - $XDG_CONFIG_HOME/kbqa/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/kbqa/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kbqa", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "kbqa", "config.yaml")
	}
	return filepath.Join(home, ".config", "kbqa", "config.yaml")
}

// Load loads configuration for the project in dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/kbqa/config.yaml)
//  3. Project config (.kbqa.yaml, .kbqa.yml or .kbqa.toml in dir)
//  4. .env in dir (never overrides variables already set)
//  5. Environment variables (KBQA_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	userPath := GetUserConfigPath()
	if fileExists(userPath) {
		if err := cfg.loadFile(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if path := ProjectConfigPath(dir); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	dotenv, err := readDotEnv(dir)
	if err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides(func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return dotenv[key]
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ProjectConfigPath returns the project config file in dir, or "" if none exists.
func ProjectConfigPath(dir string) string {
	for _, name := range projectConfigNames {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func readDotEnv(dir string) (map[string]string, error) {
	path := filepath.Join(dir, ".env")
	if !fileExists(path) {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return env, nil
}

// loadFile parses a YAML or TOML file and merges its non-zero values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &parsed)
	} else {
		err = yaml.Unmarshal(data, &parsed)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Paths
	if other.Paths.Source != "" {
		c.Paths.Source = other.Paths.Source
	}
	if len(other.Paths.Exclude) > 0 {
		// Merge with defaults rather than replace
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}
	setString(&c.Paths.WatchDebounce, other.Paths.WatchDebounce)

	setString(&c.Storage.Path, other.Storage.Path)

	// Document
	d, od := &c.Document, other.Document
	setInt64(&d.MaxFileSizeMB, od.MaxFileSizeMB)
	setInt64(&d.MaxContentSizeMB, od.MaxContentSizeMB)
	setInt64(&d.AutoChunkThresholdMB, od.AutoChunkThresholdMB)
	setInt(&d.MaxIndexContentChars, od.MaxIndexContentChars)
	setInt(&d.ChunkSize, od.ChunkSize)
	setInt(&d.ChunkOverlap, od.ChunkOverlap)
	setInt(&d.MaxChunks, od.MaxChunks)
	setInt(&d.BatchSize, od.BatchSize)
	setInt64(&d.BatchMemoryMB, od.BatchMemoryMB)
	if od.ParallelProcessing != nil {
		v := *od.ParallelProcessing
		d.ParallelProcessing = &v
	}
	setInt(&d.Threads, od.Threads)
	setString(&d.PoolShutdownTimeout, od.PoolShutdownTimeout)

	// Search. Zero is not a practical weight or threshold in a file;
	// explicit zeros can be set through KBQA_* variables.
	s, osr := &c.Search, other.Search
	setInt(&s.LexicalTopK, osr.LexicalTopK)
	setInt(&s.VectorTopK, osr.VectorTopK)
	setInt(&s.HybridTopK, osr.HybridTopK)
	setInt(&s.DocumentsPerQuery, osr.DocumentsPerQuery)
	setFloat(&s.MinScoreThreshold, osr.MinScoreThreshold)
	setFloat(&s.SimilarityThreshold, osr.SimilarityThreshold)
	setFloat(&s.LexicalWeight, osr.LexicalWeight)
	setFloat(&s.VectorWeight, osr.VectorWeight)
	setInt(&s.MinKeywordLength, osr.MinKeywordLength)
	if len(osr.StopWords) > 0 {
		s.StopWords = osr.StopWords
	}
	if osr.DisableStopWords {
		s.DisableStopWords = true
	}

	// Embeddings
	e, oe := &c.Embeddings, other.Embeddings
	setString(&e.Provider, oe.Provider)
	setString(&e.Model, oe.Model)
	setInt(&e.Dimensions, oe.Dimensions)
	setString(&e.OllamaHost, oe.OllamaHost)
	setString(&e.Timeout, oe.Timeout)
	setFloat(&e.RequestsPerSecond, oe.RequestsPerSecond)
	setInt(&e.CacheSize, oe.CacheSize)

	setString(&c.Tracking.Backend, other.Tracking.Backend)

	setString(&c.Server.Transport, other.Server.Transport)
	setString(&c.Server.LogLevel, other.Server.LogLevel)
}

// applyEnvOverrides applies KBQA_* overrides read through getenv.
func (c *Config) applyEnvOverrides(getenv func(string) string) {
	if v := getenv("KBQA_SOURCE_PATH"); v != "" {
		c.Paths.Source = v
	}
	if v := getenv("KBQA_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}

	// Weights and thresholds accept explicit zero values here.
	if v := getenv("KBQA_LEXICAL_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.LexicalWeight = w
		}
	}
	if v := getenv("KBQA_VECTOR_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
		}
	}
	if v := getenv("KBQA_MIN_SCORE_THRESHOLD"); v != "" {
		if t, err := parseFloat64(v); err == nil && t >= 0 && t <= 1 {
			c.Search.MinScoreThreshold = t
		}
	}
	if v := getenv("KBQA_HYBRID_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.HybridTopK = k
		}
	}

	if v := getenv("KBQA_PARALLEL"); v != "" {
		p := strings.EqualFold(v, "true") || v == "1"
		c.Document.ParallelProcessing = &p
	}
	if v := getenv("KBQA_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Document.Threads = n
		}
	}

	if v := getenv("KBQA_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := getenv("KBQA_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := getenv("KBQA_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := getenv("KBQA_TRACKING_BACKEND"); v != "" {
		c.Tracking.Backend = v
	}
	if v := getenv("KBQA_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	d := c.Document
	if d.ChunkSize <= 0 {
		return fmt.Errorf("document.chunk_size must be positive, got %d", d.ChunkSize)
	}
	if d.ChunkOverlap < 0 || d.ChunkOverlap >= d.ChunkSize {
		return fmt.Errorf("document.chunk_overlap must be in [0, chunk_size), got %d", d.ChunkOverlap)
	}
	if d.MaxChunks < 0 {
		return fmt.Errorf("document.max_chunks must be non-negative, got %d", d.MaxChunks)
	}
	if d.BatchSize <= 0 {
		return fmt.Errorf("document.batch_size must be positive, got %d", d.BatchSize)
	}
	if d.MaxFileSizeMB <= 0 || d.MaxContentSizeMB <= 0 || d.AutoChunkThresholdMB <= 0 || d.BatchMemoryMB <= 0 {
		return fmt.Errorf("document size limits must be positive")
	}
	if d.MaxIndexContentChars <= 0 {
		return fmt.Errorf("document.max_index_content_chars must be positive, got %d", d.MaxIndexContentChars)
	}
	if d.Threads < 0 {
		return fmt.Errorf("document.threads must be non-negative, got %d", d.Threads)
	}
	if d.PoolShutdownTimeout != "" {
		if _, err := time.ParseDuration(d.PoolShutdownTimeout); err != nil {
			return fmt.Errorf("document.pool_shutdown_timeout: %w", err)
		}
	}

	s := c.Search
	for name, k := range map[string]int{
		"lexical_top_k":       s.LexicalTopK,
		"vector_top_k":        s.VectorTopK,
		"hybrid_top_k":        s.HybridTopK,
		"documents_per_query": s.DocumentsPerQuery,
	} {
		if k <= 0 {
			return fmt.Errorf("search.%s must be positive, got %d", name, k)
		}
	}
	if !unitInterval(s.MinScoreThreshold) {
		return fmt.Errorf("search.min_score_threshold must be between 0 and 1, got %f", s.MinScoreThreshold)
	}
	if !unitInterval(s.SimilarityThreshold) {
		return fmt.Errorf("search.similarity_threshold must be between 0 and 1, got %f", s.SimilarityThreshold)
	}
	if !unitInterval(s.LexicalWeight) || !unitInterval(s.VectorWeight) {
		return fmt.Errorf("search weights must be between 0 and 1")
	}
	if sum := s.LexicalWeight + s.VectorWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("lexical_weight + vector_weight must equal 1.0, got %.2f", sum)
	}

	if p := c.Embeddings.Provider; p != "" {
		valid := map[string]bool{"static": true, "ollama": true, "none": true}
		if !valid[strings.ToLower(p)] {
			return fmt.Errorf("embeddings.provider must be 'static', 'ollama', 'none', or empty (auto-detect), got %s", p)
		}
	}

	switch strings.ToLower(c.Tracking.Backend) {
	case "", "json", "sqlite":
	default:
		return fmt.Errorf("tracking.backend must be 'json' or 'sqlite', got %s", c.Tracking.Backend)
	}

	if !strings.EqualFold(c.Server.Transport, "stdio") {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// project config file. It returns startDir itself when neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	current := absDir
	for {
		if dirExists(filepath.Join(current, ".git")) || ProjectConfigPath(current) != "" {
			return current, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return absDir, nil
		}
		current = parent
	}
}

func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setInt64(dst *int64, v int64) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// unitInterval reports whether v is in [0, 1]. NaN is not.
func unitInterval(v float64) bool {
	return v >= 0 && v <= 1
}
