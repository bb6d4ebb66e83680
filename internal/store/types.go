// Package store holds the persistent and in-memory indexes behind the
// matcher: the vector index (HNSW or brute force), the SQLite embedding
// store, and the BM25 duty index.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrDimensionMismatch is returned when vectors disagree on length.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Backend names a VectorIndex implementation.
type Backend string

const (
	BackendHNSW  Backend = "hnsw"
	BackendBrute Backend = "brute"
)

// VectorResult is one semantic hit. Position indexes the taxonomy entry
// sequence the index was built from.
type VectorResult struct {
	Position int
	Score    float32
}

// VectorIndex finds the entries closest to a query vector by cosine
// similarity. Implementations must agree on ranking for the same vectors so
// callers can swap them freely.
type VectorIndex interface {
	// Search returns up to k results ordered by score descending, then
	// position ascending.
	Search(ctx context.Context, query []float32, k int) ([]VectorResult, error)
	Len() int
	Dimensions() int
	Backend() Backend
}

// NormalizeVectors returns unit-length copies of vectors. All vectors must
// share one dimension; zero vectors are kept as zeros.
func NormalizeVectors(vectors [][]float32) ([][]float32, int, error) {
	if len(vectors) == 0 {
		return nil, 0, nil
	}
	dims := len(vectors[0])
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dims {
			return nil, 0, fmt.Errorf("%w: vector %d has %d dims, want %d", ErrDimensionMismatch, i, len(v), dims)
		}
		out[i] = normalized(v)
	}
	return out, dims, nil
}

// normalized returns a unit-length copy of v.
func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	normalizeVectorInPlace(out)
	return out
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

// dot is the shared scoring function for both backends.
func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func sortResults(results []VectorResult) {
	slices.SortFunc(results, func(a, b VectorResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return a.Position - b.Position
		}
	})
}

// prepareQuery validates and normalizes a query for an index of dims.
func prepareQuery(ctx context.Context, query []float32, dims int) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(query) != dims {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d", ErrDimensionMismatch, len(query), dims)
	}
	return normalized(query), nil
}
