package store

import (
	"context"
)

// BruteForceIndex scores every stored vector against the query. It needs no
// build step, which makes it the fallback whenever no HNSW graph is usable.
type BruteForceIndex struct {
	vectors [][]float32
	dims    int
}

// NewBruteForceIndex normalizes vectors once and keeps them in entry order.
func NewBruteForceIndex(vectors [][]float32) (*BruteForceIndex, error) {
	norm, dims, err := NormalizeVectors(vectors)
	if err != nil {
		return nil, err
	}
	return &BruteForceIndex{vectors: norm, dims: dims}, nil
}

// Search implements VectorIndex with a full dot-product scan.
func (b *BruteForceIndex) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	if k <= 0 || len(b.vectors) == 0 {
		return []VectorResult{}, nil
	}
	q, err := prepareQuery(ctx, query, b.dims)
	if err != nil {
		return nil, err
	}

	results := make([]VectorResult, len(b.vectors))
	for i, v := range b.vectors {
		results[i] = VectorResult{Position: i, Score: dot(q, v)}
	}
	sortResults(results)
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (b *BruteForceIndex) Len() int         { return len(b.vectors) }
func (b *BruteForceIndex) Dimensions() int  { return b.dims }
func (b *BruteForceIndex) Backend() Backend { return BackendBrute }

var _ VectorIndex = (*BruteForceIndex)(nil)
