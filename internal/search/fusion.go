// Package search ranks documents by fusing a lexical ranking with vector
// similarity. Lexical results contribute by rank position and vector
// results by raw similarity, each scaled by a fixed weight.
package search

import (
	"sort"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/store"
)

// Default fusion weights. Vector recall dominates; lexical rank breaks ties.
const (
	DefaultLexicalWeight = 0.3
	DefaultVectorWeight  = 0.7
)

// Weights scale the two contributions to the fused score.
type Weights struct {
	Lexical float64
	Vector  float64
}

// DefaultWeights returns the 0.3/0.7 split.
func DefaultWeights() Weights {
	return Weights{Lexical: DefaultLexicalWeight, Vector: DefaultVectorWeight}
}

// ScoreEntry is the per-document breakdown of a fused score.
type ScoreEntry struct {
	DocumentID string `json:"document_id"`

	// LexicalRank is the 1-indexed position in the lexical list, 0 if absent.
	LexicalRank int `json:"lexical_rank"`

	// LexicalScore is 1 - i/N for 0-based rank i of N lexical results.
	LexicalScore float64 `json:"lexical_score"`

	// VectorSimilarity is the raw similarity, 0 if absent.
	VectorSimilarity float64 `json:"vector_similarity"`
	InVector         bool    `json:"in_vector"`

	// FusedScore is the weighted sum. In keyword-only mode it equals
	// LexicalScore.
	FusedScore float64 `json:"fused_score"`
}

// InBothLists reports whether both rankings returned the document.
func (e *ScoreEntry) InBothLists() bool {
	return e.LexicalRank > 0 && e.InVector
}

// Fuse combines the lexical ranking and vector hits into entries sorted
// best first. A document found by only one side keeps that side's
// contribution alone. Repeated ids keep their first occurrence.
//
// Sort order: FusedScore (desc) → in both lists → LexicalRank (asc, absent
// last) → DocumentID (asc).
func Fuse(lexical []*store.LexicalResult, vector []*store.VectorResult, w Weights) []*ScoreEntry {
	if len(lexical) == 0 && len(vector) == 0 {
		return []*ScoreEntry{}
	}

	entries := make(map[string]*ScoreEntry, len(lexical)+len(vector))
	get := func(id string) *ScoreEntry {
		e, ok := entries[id]
		if !ok {
			e = &ScoreEntry{DocumentID: id}
			entries[id] = e
		}
		return e
	}

	n := float64(len(lexical))
	for i, r := range lexical {
		e := get(r.ID)
		if e.LexicalRank > 0 {
			continue
		}
		e.LexicalRank = i + 1
		e.LexicalScore = 1 - float64(i)/n
		e.FusedScore += w.Lexical * e.LexicalScore
	}

	for _, r := range vector {
		e := get(r.ID)
		if e.InVector {
			continue
		}
		e.InVector = true
		e.VectorSimilarity = r.Similarity
		e.FusedScore += w.Vector * r.Similarity
	}

	results := make([]*ScoreEntry, 0, len(entries))
	for _, e := range entries {
		results = append(results, e)
	}
	sort.Slice(results, func(i, j int) bool {
		return less(results[i], results[j])
	})
	return results
}

func less(a, b *ScoreEntry) bool {
	if a.FusedScore != b.FusedScore {
		return a.FusedScore > b.FusedScore
	}
	if a.InBothLists() != b.InBothLists() {
		return a.InBothLists()
	}
	if a.LexicalRank != b.LexicalRank {
		if a.LexicalRank == 0 || b.LexicalRank == 0 {
			return a.LexicalRank > 0
		}
		return a.LexicalRank < b.LexicalRank
	}
	return a.DocumentID < b.DocumentID
}

// Select drops entries scoring below minScore and keeps at most topK.
// entries must already be sorted; topK <= 0 means no limit.
func Select(entries []*ScoreEntry, minScore float64, topK int) []*ScoreEntry {
	kept := make([]*ScoreEntry, 0, len(entries))
	for _, e := range entries {
		if e.FusedScore < minScore {
			continue
		}
		kept = append(kept, e)
		if topK > 0 && len(kept) == topK {
			break
		}
	}
	return kept
}
