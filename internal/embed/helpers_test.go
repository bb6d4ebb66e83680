package embed

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
)

func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (vectorMagnitude(a) * vectorMagnitude(b))
}

// fakeEmbedder returns scripted results and counts calls.
type fakeEmbedder struct {
	mu      sync.Mutex
	embedFn func(ctx context.Context, text string) ([]float32, error)
	calls   atomic.Int32
	batches atomic.Int32
	closed  bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	return f.embedFn(ctx, text)
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batches.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.embedFn(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int   { return 0 }
func (f *fakeEmbedder) ModelName() string { return "fake" }

func (f *fakeEmbedder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

var errBackendDown = errors.New("backend down")
