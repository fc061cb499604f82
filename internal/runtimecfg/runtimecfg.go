// Package runtimecfg holds retrieval parameters that can be changed while
// the process runs. Unset values fall back to the static search config.
// Overrides live for the process lifetime only and are never persisted.
package runtimecfg

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/config"
	kberrors "github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/errors"
)

// Overrides are the runtime values set on top of the static defaults.
// A nil field means "use the default".
type Overrides struct {
	LexicalTopK       *int     `json:"lexical_top_k,omitempty"`
	VectorTopK        *int     `json:"vector_top_k,omitempty"`
	HybridTopK        *int     `json:"hybrid_top_k,omitempty"`
	DocumentsPerQuery *int     `json:"documents_per_query,omitempty"`
	MinScoreThreshold *float64 `json:"min_score_threshold,omitempty"`
}

// HasOverrides reports whether any field is set.
func (o *Overrides) HasOverrides() bool {
	if o == nil {
		return false
	}
	return o.LexicalTopK != nil || o.VectorTopK != nil || o.HybridTopK != nil ||
		o.DocumentsPerQuery != nil || o.MinScoreThreshold != nil
}

func (o *Overrides) clone() *Overrides {
	c := &Overrides{}
	if o == nil {
		return c
	}
	c.LexicalTopK = copyPtr(o.LexicalTopK)
	c.VectorTopK = copyPtr(o.VectorTopK)
	c.HybridTopK = copyPtr(o.HybridTopK)
	c.DocumentsPerQuery = copyPtr(o.DocumentsPerQuery)
	c.MinScoreThreshold = copyPtr(o.MinScoreThreshold)
	return c
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Update is a partial change applied by Settings.Update.
// It has the same shape as Overrides; nil fields are left untouched.
type Update = Overrides

// Info is a point-in-time view of the effective values.
type Info struct {
	LexicalTopK       int     `json:"lexical_top_k"`
	VectorTopK        int     `json:"vector_top_k"`
	HybridTopK        int     `json:"hybrid_top_k"`
	DocumentsPerQuery int     `json:"documents_per_query"`
	MinScoreThreshold float64 `json:"min_score_threshold"`
	UsingOverrides    bool    `json:"using_overrides"`
}

// Settings resolves retrieval parameters. Safe for concurrent use: readers
// see either the old or the new override set, never a partial one.
type Settings struct {
	defaults  config.SearchConfig
	overrides atomic.Pointer[Overrides]
	logger    *slog.Logger
}

// New creates Settings over the given static defaults.
func New(defaults config.SearchConfig, logger *slog.Logger) *Settings {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Settings{defaults: defaults, logger: logger}
	s.overrides.Store(&Overrides{})
	return s
}

// Defaults returns the static configuration.
func (s *Settings) Defaults() config.SearchConfig { return s.defaults }

// LexicalTopK returns the number of lexical candidates to fetch.
func (s *Settings) LexicalTopK() int {
	return intOr(s.overrides.Load().LexicalTopK, s.defaults.LexicalTopK)
}

// VectorTopK returns the number of vector candidates to fetch.
func (s *Settings) VectorTopK() int {
	return intOr(s.overrides.Load().VectorTopK, s.defaults.VectorTopK)
}

// HybridTopK returns the maximum number of fused results.
func (s *Settings) HybridTopK() int {
	return intOr(s.overrides.Load().HybridTopK, s.defaults.HybridTopK)
}

// DocumentsPerQuery returns how many documents a caller should cite.
func (s *Settings) DocumentsPerQuery() int {
	return intOr(s.overrides.Load().DocumentsPerQuery, s.defaults.DocumentsPerQuery)
}

// MinScoreThreshold returns the fused score floor.
func (s *Settings) MinScoreThreshold() float64 {
	if v := s.overrides.Load().MinScoreThreshold; v != nil {
		return *v
	}
	return s.defaults.MinScoreThreshold
}

func intOr(v *int, def int) int {
	if v != nil {
		return *v
	}
	return def
}

// SetLexicalTopK overrides LexicalTopK. n must be positive.
func (s *Settings) SetLexicalTopK(n int) error {
	return s.Update(Update{LexicalTopK: &n})
}

// SetVectorTopK overrides VectorTopK. n must be positive.
func (s *Settings) SetVectorTopK(n int) error {
	return s.Update(Update{VectorTopK: &n})
}

// SetHybridTopK overrides HybridTopK. n must be positive.
func (s *Settings) SetHybridTopK(n int) error {
	return s.Update(Update{HybridTopK: &n})
}

// SetDocumentsPerQuery overrides DocumentsPerQuery. n must be positive.
func (s *Settings) SetDocumentsPerQuery(n int) error {
	return s.Update(Update{DocumentsPerQuery: &n})
}

// SetMinScoreThreshold overrides MinScoreThreshold. t must be in [0, 1].
func (s *Settings) SetMinScoreThreshold(t float64) error {
	return s.Update(Update{MinScoreThreshold: &t})
}

// Validate checks every set field.
func (o *Overrides) Validate() error {
	if o == nil {
		return nil
	}
	positive := []struct {
		name string
		v    *int
	}{
		{"lexical_top_k", o.LexicalTopK},
		{"vector_top_k", o.VectorTopK},
		{"hybrid_top_k", o.HybridTopK},
		{"documents_per_query", o.DocumentsPerQuery},
	}
	for _, p := range positive {
		if p.v != nil && *p.v <= 0 {
			return kberrors.ValidationError(fmt.Sprintf("%s must be positive, got %d", p.name, *p.v), nil)
		}
	}
	if t := o.MinScoreThreshold; t != nil && !(*t >= 0 && *t <= 1) {
		return kberrors.ValidationError(fmt.Sprintf("min_score_threshold must be between 0 and 1, got %g", *t), nil)
	}
	return nil
}

// Update applies every set field of u at once. Nothing is applied when
// any field is invalid.
func (s *Settings) Update(u Update) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if !u.HasOverrides() {
		return nil
	}

	for {
		old := s.overrides.Load()
		next := old.clone()
		if u.LexicalTopK != nil {
			next.LexicalTopK = copyPtr(u.LexicalTopK)
		}
		if u.VectorTopK != nil {
			next.VectorTopK = copyPtr(u.VectorTopK)
		}
		if u.HybridTopK != nil {
			next.HybridTopK = copyPtr(u.HybridTopK)
		}
		if u.DocumentsPerQuery != nil {
			next.DocumentsPerQuery = copyPtr(u.DocumentsPerQuery)
		}
		if u.MinScoreThreshold != nil {
			next.MinScoreThreshold = copyPtr(u.MinScoreThreshold)
		}
		if s.overrides.CompareAndSwap(old, next) {
			break
		}
	}

	info := s.Snapshot()
	s.logger.Info("search_config_updated",
		slog.Int("lexical_top_k", info.LexicalTopK),
		slog.Int("vector_top_k", info.VectorTopK),
		slog.Int("hybrid_top_k", info.HybridTopK),
		slog.Int("documents_per_query", info.DocumentsPerQuery),
		slog.Float64("min_score_threshold", info.MinScoreThreshold))
	return nil
}

// Reset drops every override.
func (s *Settings) Reset() {
	s.overrides.Store(&Overrides{})
	s.logger.Info("search_config_reset")
}

// Overrides returns a copy of the current overrides.
func (s *Settings) Overrides() Overrides {
	return *s.overrides.Load().clone()
}

// Snapshot returns the effective values read from a single override set.
func (s *Settings) Snapshot() Info {
	o := s.overrides.Load()
	info := Info{
		LexicalTopK:       intOr(o.LexicalTopK, s.defaults.LexicalTopK),
		VectorTopK:        intOr(o.VectorTopK, s.defaults.VectorTopK),
		HybridTopK:        intOr(o.HybridTopK, s.defaults.HybridTopK),
		DocumentsPerQuery: intOr(o.DocumentsPerQuery, s.defaults.DocumentsPerQuery),
		MinScoreThreshold: s.defaults.MinScoreThreshold,
		UsingOverrides:    o.HasOverrides(),
	}
	if o.MinScoreThreshold != nil {
		info.MinScoreThreshold = *o.MinScoreThreshold
	}
	return info
}
