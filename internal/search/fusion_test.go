package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/store"
)

func lexicalResults(ids ...string) []*store.LexicalResult {
	results := make([]*store.LexicalResult, len(ids))
	for i, id := range ids {
		results[i] = &store.LexicalResult{ID: id, Score: float64(len(ids) - i)}
	}
	return results
}

func vectorResults(pairs ...any) []*store.VectorResult {
	var results []*store.VectorResult
	for i := 0; i+1 < len(pairs); i += 2 {
		results = append(results, &store.VectorResult{ID: pairs[i].(string), Similarity: pairs[i+1].(float64)})
	}
	return results
}

func entryIDs(entries []*ScoreEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.DocumentID
	}
	return ids
}

func TestFuse_Arithmetic(t *testing.T) {
	// Given: lexical [A B C D] and vector hits B=0.9, E=0.5
	lex := lexicalResults("A", "B", "C", "D")
	vec := vectorResults("B", 0.9, "E", 0.5)

	// When: fusing with the default weights
	entries := Fuse(lex, vec, DefaultWeights())

	// Then: lexical rank i of N contributes 0.3*(1-i/N), vectors 0.7*sim
	require.Len(t, entries, 5)
	assert.Equal(t, []string{"B", "E", "A", "C", "D"}, entryIDs(entries))

	scores := map[string]float64{}
	for _, e := range entries {
		scores[e.DocumentID] = e.FusedScore
	}
	assert.InDelta(t, 0.3, scores["A"], 1e-9)
	assert.InDelta(t, 0.3*0.75+0.7*0.9, scores["B"], 1e-9)
	assert.InDelta(t, 0.15, scores["C"], 1e-9)
	assert.InDelta(t, 0.075, scores["D"], 1e-9)
	assert.InDelta(t, 0.35, scores["E"], 1e-9)
}

func TestFuse_EntryBreakdown(t *testing.T) {
	entries := Fuse(lexicalResults("A", "B"), vectorResults("B", 0.8), DefaultWeights())

	var b *ScoreEntry
	for _, e := range entries {
		if e.DocumentID == "B" {
			b = e
		}
	}
	require.NotNil(t, b)
	assert.Equal(t, 2, b.LexicalRank)
	assert.InDelta(t, 0.5, b.LexicalScore, 1e-9)
	assert.InDelta(t, 0.8, b.VectorSimilarity, 1e-9)
	assert.True(t, b.InBothLists())
}

func TestFuse_SingleListDocumentsStillScore(t *testing.T) {
	t.Run("lexical only", func(t *testing.T) {
		entries := Fuse(lexicalResults("A"), nil, DefaultWeights())
		require.Len(t, entries, 1)
		assert.InDelta(t, 0.3, entries[0].FusedScore, 1e-9)
	})

	t.Run("vector only", func(t *testing.T) {
		entries := Fuse(nil, vectorResults("Z", 1.0), DefaultWeights())
		require.Len(t, entries, 1)
		assert.InDelta(t, 0.7, entries[0].FusedScore, 1e-9)
		assert.Equal(t, 0, entries[0].LexicalRank)
	})

	t.Run("both empty", func(t *testing.T) {
		entries := Fuse(nil, nil, DefaultWeights())
		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	})
}

func TestFuse_TieBreaking(t *testing.T) {
	// Given: equal fused scores, one entry found by both sides
	w := Weights{Lexical: 0.5, Vector: 0.5}
	lex := lexicalResults("B", "C") // B: 0.5, C: 0.25
	vec := vectorResults("C", 0.5, "A", 1.0, "D", 1.0)

	entries := Fuse(lex, vec, w)

	// Then: C (0.5 and in both) ranks before B (0.5 lexical only);
	// A and D tie on 0.5 without lexical rank and order by id.
	assert.Equal(t, []string{"C", "B", "A", "D"}, entryIDs(entries))
}

func TestFuse_DuplicateIDsKeepFirst(t *testing.T) {
	lex := []*store.LexicalResult{{ID: "A"}, {ID: "A"}}

	entries := Fuse(lex, vectorResults("A", 0.5, "A", 0.9), DefaultWeights())

	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].LexicalRank)
	assert.InDelta(t, 0.3+0.35, entries[0].FusedScore, 1e-9)
}

func TestSelect_ThresholdAndTopK(t *testing.T) {
	// Given: 8 entries scored 0.8 down to 0.1
	var entries []*ScoreEntry
	for i := 0; i < 8; i++ {
		entries = append(entries, &ScoreEntry{DocumentID: string(rune('a' + i)), FusedScore: 0.8 - float64(i)*0.1})
	}

	t.Run("topK five of eight", func(t *testing.T) {
		got := Select(entries, 0, 5)
		assert.Equal(t, []string{"a", "b", "c", "d", "e"}, entryIDs(got))
	})

	t.Run("threshold drops low scores", func(t *testing.T) {
		got := Select(entries, 0.45, 10)
		assert.Equal(t, []string{"a", "b", "c", "d"}, entryIDs(got))
	})

	t.Run("threshold keeps equal scores", func(t *testing.T) {
		got := Select([]*ScoreEntry{{DocumentID: "x", FusedScore: 0.3}}, 0.3, 10)
		assert.Len(t, got, 1)
	})

	t.Run("no limit", func(t *testing.T) {
		assert.Len(t, Select(entries, 0, 0), 8)
	})
}
