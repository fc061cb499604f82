package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex implements VectorIndex on coder/hnsw with cosine distance.
// Deletes are lazy: the node stays in the graph but loses its ID mapping.
type HNSWIndex struct {
	mu   sync.RWMutex
	path string
	dims int

	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

// hnswMetadata is the gob-encoded sidecar of the graph file.
type hnswMetadata struct {
	IDMap      map[string]uint64
	NextKey    uint64
	Dimensions int
}

// NewHNSWIndex opens the index stored at path (graph at path, ID map at
// path+".meta"). Missing files give an empty index; an empty path gives an
// in-memory one. A stored index of a different dimension is an
// ErrDimensionMismatch.
func NewHNSWIndex(path string, dims int) (*HNSWIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", dims)
	}

	s := &HNSWIndex{path: path, dims: dims}
	s.reset()

	if path == "" {
		return s, nil
	}
	if _, err := os.Stat(path + ".meta"); os.IsNotExist(err) {
		return s, nil
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *HNSWIndex) reset() {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 40
	g.Ml = 0.25

	s.graph = g
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.nextKey = 0
}

// Add inserts or replaces the vector for id.
func (s *HNSWIndex) Add(ctx context.Context, id string, vector []float32) error {
	if len(vector) != s.dims {
		return ErrDimensionMismatch{Expected: s.dims, Got: len(vector)}
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalizeVectorInPlace(vec)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	if old, ok := s.idMap[id]; ok {
		delete(s.keyMap, old)
	}

	key := s.nextKey
	s.nextKey++
	s.graph.Add(hnsw.MakeNode(key, vec))
	s.idMap[id] = key
	s.keyMap[key] = id
	return nil
}

// Search returns hits with similarity >= minSimilarity, best first.
func (s *HNSWIndex) Search(ctx context.Context, vector []float32, limit int, minSimilarity float64) ([]*VectorResult, error) {
	if len(vector) != s.dims {
		return nil, ErrDimensionMismatch{Expected: s.dims, Got: len(vector)}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if limit <= 0 || len(s.idMap) == 0 {
		return []*VectorResult{}, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	normalizeVectorInPlace(query)

	// Ask for extra neighbours so lazily deleted nodes do not starve the result.
	k := limit + (s.graph.Len() - len(s.idMap))
	if k > s.graph.Len() {
		k = s.graph.Len()
	}

	results := make([]*VectorResult, 0, limit)
	for _, node := range s.graph.Search(query, k) {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		sim := 1.0 - float64(s.graph.Distance(query, node.Value))
		if sim < minSimilarity {
			continue
		}
		results = append(results, &VectorResult{ID: id, Similarity: sim})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes ids from the mapping.
func (s *HNSWIndex) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}
	for _, id := range ids {
		if key, ok := s.idMap[id]; ok {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

// DeleteAll discards the graph and removes the persisted files.
func (s *HNSWIndex) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}
	s.reset()
	if s.path != "" {
		for _, p := range []string{s.path, s.path + ".meta"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove %s: %w", p, err)
			}
		}
	}
	return nil
}

// Count returns the number of live vectors.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Dimensions returns the vector dimension.
func (s *HNSWIndex) Dimensions() int { return s.dims }

// Orphans returns the number of lazily deleted nodes still in the graph.
func (s *HNSWIndex) Orphans() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return s.graph.Len() - len(s.idMap)
}

// Save writes the graph and its ID map atomically (temp file + rename).
func (s *HNSWIndex) Save() error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := writeAtomic(s.path, func(f *os.File) error { return s.graph.Export(f) }); err != nil {
		return fmt.Errorf("failed to save vector graph: %w", err)
	}

	meta := hnswMetadata{IDMap: s.idMap, NextKey: s.nextKey, Dimensions: s.dims}
	if err := writeAtomic(s.path+".meta", func(f *os.File) error { return gob.NewEncoder(f).Encode(meta) }); err != nil {
		return fmt.Errorf("failed to save vector metadata: %w", err)
	}
	return nil
}

func (s *HNSWIndex) load() error {
	mf, err := os.Open(s.path + ".meta")
	if err != nil {
		return fmt.Errorf("open vector metadata: %w", err)
	}
	defer func() { _ = mf.Close() }()

	var meta hnswMetadata
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return fmt.Errorf("decode vector metadata: %w", err)
	}
	if meta.Dimensions != s.dims {
		return ErrDimensionMismatch{Expected: meta.Dimensions, Got: s.dims}
	}

	gf, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open vector graph: %w", err)
	}
	defer func() { _ = gf.Close() }()

	// coder/hnsw Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(gf)); err != nil {
		return fmt.Errorf("import vector graph: %w", err)
	}

	s.idMap = meta.IDMap
	if s.idMap == nil {
		s.idMap = make(map[string]uint64)
	}
	s.nextKey = meta.NextKey
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases the graph.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.graph = nil
	return nil
}

var _ VectorIndex = (*HNSWIndex)(nil)

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
