package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/coder/hnsw"
)

// HNSWConfig tunes the graph.
type HNSWConfig struct {
	// M is the max number of neighbors per node.
	M int
	// EfSearch is the candidate list size during search.
	EfSearch int
}

// DefaultHNSWConfig returns the graph settings used when config leaves them unset.
func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{M: 16, EfSearch: 64}
}

// IndexMeta describes a persisted graph. A graph is only reusable when its
// meta matches the live taxonomy and embedding model exactly.
type IndexMeta struct {
	Model      string
	Dimensions int
	Codes      []string

	// TextDigest fingerprints the texts the graph's vectors were embedded
	// from, in code order. See TextDigest.
	TextDigest string
	BuiltAt    time.Time
}

// HNSWIndex is the approximate backend. Node keys are entry positions. The
// graph only proposes candidates; scores come from the same dot product the
// brute-force backend uses, so both rank identically.
type HNSWIndex struct {
	graph   *hnsw.Graph[uint64]
	vectors [][]float32
	dims    int
	cfg     HNSWConfig
}

func newGraph(cfg HNSWConfig) *hnsw.Graph[uint64] {
	if cfg.M <= 0 {
		cfg.M = DefaultHNSWConfig().M
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = DefaultHNSWConfig().EfSearch
	}
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// NewHNSWIndex builds a graph over vectors, keyed by position.
func NewHNSWIndex(vectors [][]float32, cfg HNSWConfig) (*HNSWIndex, error) {
	norm, dims, err := NormalizeVectors(vectors)
	if err != nil {
		return nil, err
	}
	g := newGraph(cfg)
	for i, v := range norm {
		g.Add(hnsw.MakeNode(uint64(i), v))
	}
	return &HNSWIndex{graph: g, vectors: norm, dims: dims, cfg: cfg}, nil
}

// LoadHNSWIndex imports a graph saved by Save. vectors must be the entry
// vectors the graph was built from; a node count mismatch is an error.
func LoadHNSWIndex(path string, vectors [][]float32, cfg HNSWConfig) (*HNSWIndex, error) {
	norm, dims, err := NormalizeVectors(vectors)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()

	g := newGraph(cfg)
	// coder/hnsw Import requires an io.ByteReader
	if err := g.Import(bufio.NewReader(file)); err != nil {
		return nil, fmt.Errorf("failed to import graph: %w", err)
	}
	if g.Len() != len(norm) {
		return nil, fmt.Errorf("graph has %d nodes, expected %d", g.Len(), len(norm))
	}
	if cfg.EfSearch > 0 {
		g.EfSearch = cfg.EfSearch
	}
	return &HNSWIndex{graph: g, vectors: norm, dims: dims, cfg: cfg}, nil
}

// Search implements VectorIndex.
func (h *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	if k <= 0 || h.graph.Len() == 0 {
		return []VectorResult{}, nil
	}
	q, err := prepareQuery(ctx, query, h.dims)
	if err != nil {
		return nil, err
	}
	if k > len(h.vectors) {
		k = len(h.vectors)
	}

	nodes := h.graph.Search(q, k)
	results := make([]VectorResult, 0, len(nodes))
	for _, node := range nodes {
		pos := int(node.Key)
		if pos < 0 || pos >= len(h.vectors) {
			continue
		}
		results = append(results, VectorResult{Position: pos, Score: dot(q, h.vectors[pos])})
	}
	sortResults(results)
	return results, nil
}

func (h *HNSWIndex) Len() int         { return len(h.vectors) }
func (h *HNSWIndex) Dimensions() int  { return h.dims }
func (h *HNSWIndex) Backend() Backend { return BackendHNSW }

// Save persists the graph to path and meta to path+".meta", each through a
// temp file and rename.
func (h *HNSWIndex) Save(path string, meta IndexMeta) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := h.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	meta.Dimensions = h.dims
	return writeMeta(path+".meta", meta)
}

func writeMeta(path string, meta IndexMeta) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp file during cleanup", slog.String("error", closeErr.Error()))
		}
		os.Remove(tmp)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmp, path)
}

// ReadIndexMeta reads the metadata saved next to a graph at path.
func ReadIndexMeta(path string) (IndexMeta, error) {
	var meta IndexMeta
	file, err := os.Open(path + ".meta")
	if err != nil {
		return meta, fmt.Errorf("open metadata file: %w", err)
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return meta, fmt.Errorf("decode index metadata: %w", err)
	}
	return meta, nil
}

var _ VectorIndex = (*HNSWIndex)(nil)
