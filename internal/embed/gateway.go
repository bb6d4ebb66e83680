package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	nocerrors "github.com/Aman-CERP/nocmatch/internal/errors"
	"github.com/Aman-CERP/nocmatch/internal/logging"
)

// GatewayConfig tunes the embedding gateway.
type GatewayConfig struct {
	// Timeout bounds one query embedding, retries included.
	Timeout time.Duration

	// MaxRetries for transient failures.
	MaxRetries int

	// BatchSize and Workers shape bulk embedding during index builds.
	BatchSize int
	Workers   int

	// Dimensions, when > 0, is enforced on every returned vector.
	Dimensions int
}

// DefaultGatewayConfig returns the defaults used by the matcher.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Timeout:    DefaultTimeout,
		MaxRetries: 2,
		BatchSize:  DefaultBatchSize,
		Workers:    4,
	}
}

// Gateway is the only path from the matcher to an embedding provider. Query
// calls get a deadline, bounded retries, and a circuit breaker; every
// returned vector is checked for length, finite values, and a non-zero norm. Failures surface
// as ERR_304_RETRIEVAL_UNAVAILABLE, except caller cancellation which is
// returned as the context error.
type Gateway struct {
	embedder Embedder
	breaker  *nocerrors.CircuitBreaker
	retry    nocerrors.RetryConfig
	cfg      GatewayConfig
	dims     atomic.Int64
	logger   *slog.Logger
}

// NewGateway wraps embedder.
func NewGateway(embedder Embedder, cfg GatewayConfig) *Gateway {
	def := DefaultGatewayConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}

	retry := nocerrors.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries

	g := &Gateway{
		embedder: embedder,
		breaker:  nocerrors.NewCircuitBreaker("embeddings"),
		retry:    retry,
		cfg:      cfg,
		logger:   logging.Component("embed-gateway"),
	}
	g.dims.Store(int64(cfg.Dimensions))
	return g
}

// ModelName returns the wrapped embedder's model identifier.
func (g *Gateway) ModelName() string {
	return g.embedder.ModelName()
}

// Dimensions returns the enforced vector length, or 0 if not yet fixed.
func (g *Gateway) Dimensions() int {
	return int(g.dims.Load())
}

// SetDimensions fixes the expected vector length, typically to the length
// of the loaded index.
func (g *Gateway) SetDimensions(n int) {
	g.dims.Store(int64(n))
}

// BreakerState reports the circuit breaker state for status output.
func (g *Gateway) BreakerState() string {
	return g.breaker.State().String()
}

// EmbedQuery embeds a single query string.
func (g *Gateway) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	vec, err := nocerrors.RetryWithResult(callCtx, g.retry, func() ([]float32, error) {
		return nocerrors.CircuitExecute(g.breaker, func() ([]float32, error) {
			v, err := g.embedder.Embed(callCtx, text)
			if err != nil {
				return nil, err
			}
			if err := g.validate(v); err != nil {
				return nil, err
			}
			return v, nil
		})
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = nocerrors.New(nocerrors.ErrCodeNetworkTimeout,
				fmt.Sprintf("embedding timed out after %s", g.cfg.Timeout), err)
		}
		g.logger.Warn("query embedding failed",
			slog.String("model", g.embedder.ModelName()),
			slog.String("breaker", g.breaker.State().String()),
			slog.String("error", err.Error()))
		return nil, nocerrors.RetrievalUnavailable("embedding service unavailable", err)
	}
	g.fixDims(len(vec))
	return vec, nil
}

// EmbedAll embeds texts in batches on a bounded worker pool and returns the
// vectors in input order. The first failure cancels outstanding batches.
// Bulk calls bypass the breaker so one slow build cannot block live queries.
func (g *Gateway) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	pool, err := ants.NewPool(g.cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([][]float32, len(texts))
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < len(texts); start += g.cfg.BatchSize {
		end := min(start+g.cfg.BatchSize, len(texts))
		batch := texts[start:end]
		offset := start

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			vecs, err := nocerrors.RetryWithResult(ctx, g.retry, func() ([][]float32, error) {
				return g.embedder.EmbedBatch(ctx, batch)
			})
			if err != nil {
				fail(fmt.Errorf("embed batch at %d: %w", offset, err))
				return
			}
			if len(vecs) != len(batch) {
				fail(nocerrors.New(nocerrors.ErrCodeMalformedResponse,
					fmt.Sprintf("got %d vectors for %d texts", len(vecs), len(batch)), nil))
				return
			}
			copy(out[offset:], vecs)
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("submit batch: %w", submitErr))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, nocerrors.RetrievalUnavailable("bulk embedding failed", firstErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, v := range out {
		if err := g.validate(v); err != nil {
			return nil, nocerrors.RetrievalUnavailable(fmt.Sprintf("invalid embedding for text %d", i), err)
		}
		g.fixDims(len(v))
	}
	return out, nil
}

// Close closes the wrapped embedder.
func (g *Gateway) Close() error {
	return g.embedder.Close()
}

func (g *Gateway) validate(v []float32) error {
	if len(v) == 0 {
		return nocerrors.New(nocerrors.ErrCodeMalformedResponse, "empty embedding", nil)
	}
	if want := g.Dimensions(); want > 0 && len(v) != want {
		return nocerrors.New(nocerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedding has %d dimensions, expected %d", len(v), want), nil)
	}
	var norm float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nocerrors.New(nocerrors.ErrCodeMalformedResponse, "embedding contains non-finite values", nil)
		}
		norm += f * f
	}
	// A zero vector has no direction; every cosine against it would read 0.
	if norm == 0 {
		return nocerrors.New(nocerrors.ErrCodeMalformedResponse, "embedding is the zero vector", nil)
	}
	return nil
}

func (g *Gateway) fixDims(n int) {
	g.dims.CompareAndSwap(0, int64(n))
}
