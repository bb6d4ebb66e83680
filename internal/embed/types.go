// Package embed turns text into embedding vectors. Providers (OpenAI,
// Ollama, a static hash embedder) implement Embedder; Gateway wraps one with
// the timeout, retry, breaker, and validation the matcher relies on.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize matches the batch size the taxonomy build has always used.
	DefaultBatchSize = 16

	// MaxBatchSize caps a single request.
	MaxBatchSize = 256

	// DefaultTimeout bounds a single query-time embedding call.
	DefaultTimeout = 15 * time.Second

	// DefaultOpenAIModel is the embedding model used when none is configured.
	DefaultOpenAIModel = "text-embedding-3-small"
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates one embedding per text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector length, or 0 if not yet known.
	Dimensions() int

	// ModelName identifies the model; stored embeddings are keyed by it.
	ModelName() string

	// Close releases resources.
	Close() error
}

// ProviderType names an embedding provider.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderOllama ProviderType = "ollama"
	ProviderStatic ProviderType = "static"
)

// normalizeVector returns v scaled to unit length.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}
