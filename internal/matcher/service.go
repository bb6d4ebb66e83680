// Package matcher owns the matching lifecycle. A Service builds a snapshot
// of the taxonomy and its indexes, serves title and duties lookups from it
// through the lookup cache, and swaps in a new snapshot on rebuild.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/nocmatch/internal/cache"
	"github.com/Aman-CERP/nocmatch/internal/config"
	"github.com/Aman-CERP/nocmatch/internal/embed"
	nocerrors "github.com/Aman-CERP/nocmatch/internal/errors"
	"github.com/Aman-CERP/nocmatch/internal/index"
	"github.com/Aman-CERP/nocmatch/internal/logging"
	"github.com/Aman-CERP/nocmatch/internal/search"
	"github.com/Aman-CERP/nocmatch/internal/store"
	"github.com/Aman-CERP/nocmatch/internal/taxonomy"
	"github.com/Aman-CERP/nocmatch/internal/telemetry"
	"github.com/Aman-CERP/nocmatch/internal/textnorm"
)

// lockRetryDelay is how often a rebuild polls for the cross-process lock.
const lockRetryDelay = 100 * time.Millisecond

// Option configures a Service.
type Option func(*Service)

// WithEmbedder replaces the provider built from configuration.
func WithEmbedder(e embed.Embedder) Option {
	return func(s *Service) {
		s.embedder = e
	}
}

// WithMetrics replaces the default query metrics collector.
func WithMetrics(m *telemetry.QueryMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// RebuildInfo describes the last successful rebuild.
type RebuildInfo struct {
	ID             string        `json:"id"`
	Entries        int           `json:"entries"`
	Embedded       int           `json:"embedded"`
	Reused         int           `json:"reused"`
	TitlesEmbedded int           `json:"titles_embedded"`
	Pruned         int64         `json:"pruned"`
	Skipped        int           `json:"skipped_lines"`
	Forced         bool          `json:"forced"`
	Warnings       []string      `json:"warnings,omitempty"`
	Duration       time.Duration `json:"duration_ns"`
	Completed      time.Time     `json:"completed_at"`
}

// Stats is the status report returned by Service.Stats.
type Stats struct {
	Ready        bool                 `json:"ready"`
	TaxonomyPath string               `json:"taxonomy_path"`
	Snapshot     *search.SnapshotInfo `json:"snapshot,omitempty"`
	LastRebuild  *RebuildInfo         `json:"last_rebuild,omitempty"`
	Cache        cache.Stats          `json:"cache"`
	Breaker      string               `json:"embedding_breaker"`
	Queries      telemetry.Snapshot   `json:"queries"`
}

// Service answers match requests against the current snapshot.
type Service struct {
	cfg *config.Config

	embedder   embed.Embedder
	gateway    *embed.Gateway
	embeddings *store.EmbeddingStore
	builder    *index.Builder
	engine     *search.Engine
	cache      *cache.LookupCache[search.Ranking]
	metrics    *telemetry.QueryMetrics

	snap       atomic.Pointer[search.Snapshot]
	generation atomic.Uint64
	closed     atomic.Bool

	rebuildMu sync.Mutex
	fileLock  *index.FileLock

	infoMu      sync.RWMutex
	lastRebuild *RebuildInfo

	logger *slog.Logger
}

// New wires a Service from cfg. It opens the embedding store but does not
// load the taxonomy; call Init before serving.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, nocerrors.ConfigError("configuration is required", nil)
	}
	if cfg.DataDir == "" {
		return nil, nocerrors.ConfigError("data_dir is required", nil)
	}

	s := &Service{
		cfg:    cfg,
		logger: logging.Component("matcher"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.embedder == nil {
		e, err := embed.NewEmbedder(cfg.Embeddings)
		if err != nil {
			return nil, nocerrors.ConfigError("failed to create embedder", err)
		}
		s.embedder = e
	}
	if s.metrics == nil {
		s.metrics = telemetry.New(telemetry.DefaultConfig())
	}

	s.gateway = embed.NewGateway(s.embedder, embed.GatewayConfig{
		Timeout:    cfg.EmbeddingTimeout(),
		MaxRetries: cfg.Embeddings.MaxRetries,
		BatchSize:  cfg.Embeddings.BatchSize,
		Workers:    cfg.Embeddings.Workers,
		Dimensions: cfg.Embeddings.Dimensions,
	})

	embeddings, err := store.OpenEmbeddingStore(filepath.Join(cfg.DataDir, index.VectorsDBName))
	if err != nil {
		_ = s.gateway.Close()
		return nil, nocerrors.New(nocerrors.ErrCodeFilePermission, "failed to open embedding store", err).
			WithDetail("data_dir", cfg.DataDir)
	}
	s.embeddings = embeddings

	builder, err := index.NewBuilder(index.BuilderDependencies{
		Embedder:   s.gateway,
		Embeddings: embeddings,
	}, index.BuilderConfig{
		DataDir: cfg.DataDir,
		Backend: strings.ToLower(cfg.Vectors.Backend),
		HNSW: store.HNSWConfig{
			M:        cfg.Vectors.HNSWM,
			EfSearch: cfg.Vectors.HNSWEfSearch,
		},
		HNSWMinEntries: cfg.Vectors.HNSWMinEntries,
	})
	if err != nil {
		_ = embeddings.Close()
		_ = s.gateway.Close()
		return nil, nocerrors.ConfigError("invalid vector index settings", err)
	}
	s.builder = builder

	m := cfg.Matcher
	s.engine = search.NewEngine(s.gateway, search.Config{
		Weights:             search.Weights{Lexical: m.LexicalWeight, Semantic: m.SemanticWeight},
		KeywordBoost:        m.KeywordBoost,
		MaxBoostedKeywords:  m.MaxBoostedKeywords,
		CandidateMultiplier: m.CandidateMultiplier,
		MinCandidates:       m.MinCandidates,
		SnippetLength:       m.SnippetLength,
		Degrade:             m.DegradeOnRetrievalFailure,
	})
	s.cache = cache.New[search.Ranking](cfg.Cache.Size)
	s.fileLock = index.NewFileLock(cfg.DataDir)

	return s, nil
}

// Init builds the first snapshot. A missing or empty taxonomy is returned as
// DataUnavailable; the service stays usable and a later RebuildIndex may
// still succeed.
func (s *Service) Init(ctx context.Context) error {
	_, err := s.RebuildIndex(ctx, false)
	return err
}

// RebuildIndex reloads the taxonomy, rebuilds every index, and swaps the new
// snapshot in. It returns the number of entries served. On failure the
// previous snapshot keeps serving.
func (s *Service) RebuildIndex(ctx context.Context, force bool) (int, error) {
	if s.closed.Load() {
		return 0, nocerrors.New(nocerrors.ErrCodeNotReady, "matcher is shut down", nil)
	}

	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	if err := s.fileLock.LockContext(ctx, lockRetryDelay); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, nocerrors.New(nocerrors.ErrCodeRebuildLocked, "another rebuild holds the index lock", err).
			WithDetail("lock", s.fileLock.Path())
	}
	defer func() {
		if err := s.fileLock.Unlock(); err != nil {
			s.logger.Warn("failed to release rebuild lock", slog.String("error", err.Error()))
		}
	}()

	id := uuid.NewString()
	start := time.Now()
	logger := s.logger.With(slog.String("rebuild_id", id))
	logger.Info("rebuild started",
		slog.String("taxonomy", s.cfg.Taxonomy.Path),
		slog.Bool("force", force))

	st, loadStats, err := taxonomy.LoadFile(s.cfg.Taxonomy.Path)
	if err != nil {
		if !errors.Is(err, nocerrors.ErrDataUnavailable) {
			err = nocerrors.DataUnavailable("failed to load taxonomy", err).
				WithDetail("path", s.cfg.Taxonomy.Path)
		}
		logger.Error("rebuild failed, keeping current snapshot", slog.String("error", err.Error()))
		return 0, err
	}

	out, err := s.builder.Build(ctx, st, force)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		logger.Error("rebuild failed, keeping current snapshot", slog.String("error", err.Error()))
		return 0, err
	}

	if s.closed.Load() {
		closeIndexes(out)
		return 0, nocerrors.New(nocerrors.ErrCodeNotReady, "matcher is shut down", nil)
	}

	snap := search.NewSnapshot(st, out.Vectors, out.Duties, s.generation.Add(1), out.Result.Model)
	snap.Titles = out.Titles
	snap.FromArtifact = out.Result.FromArtifact

	old := s.snap.Swap(snap)
	s.cache.Purge()
	if old != nil {
		old.Retire()
	}

	info := &RebuildInfo{
		ID:             id,
		Entries:        st.Len(),
		Embedded:       out.Result.Embedded,
		Reused:         out.Result.Reused,
		TitlesEmbedded: out.Result.TitlesEmbedded,
		Pruned:         out.Result.Pruned,
		Skipped:        len(loadStats.Malformed) + loadStats.MissingID + len(loadStats.Duplicates),
		Forced:         force,
		Warnings:       out.Result.Warnings,
		Duration:       time.Since(start),
		Completed:      time.Now(),
	}
	s.infoMu.Lock()
	s.lastRebuild = info
	s.infoMu.Unlock()

	logger.Info("rebuild complete",
		slog.Uint64("generation", snap.Generation),
		slog.Int("entries", info.Entries),
		slog.Int("embedded", info.Embedded),
		slog.Int("reused", info.Reused),
		slog.Duration("duration", info.Duration))

	return st.Len(), nil
}

// rankFunc is search.Engine.Rank or search.Engine.RankTitle.
type rankFunc func(ctx context.Context, snap *search.Snapshot, query string, topK int) (search.Ranking, error)

// MatchByTitle ranks entries against a job title, scoring semantic
// similarity against title vectors.
func (s *Service) MatchByTitle(ctx context.Context, title string, topK int) ([]search.MatchResult, error) {
	return s.match(ctx, telemetry.KindTitle, title, topK, cache.TitleKey, s.engine.RankTitle)
}

// MatchByQuery ranks entries against free-text duties.
func (s *Service) MatchByQuery(ctx context.Context, dutyText string, topK int) ([]search.MatchResult, error) {
	return s.match(ctx, telemetry.KindDuties, dutyText, topK, cache.QueryKey, s.engine.Rank)
}

func (s *Service) match(ctx context.Context, kind telemetry.QueryKind, text string, topK int, keyFn func(string, int) string, rank rankFunc) ([]search.MatchResult, error) {
	start := time.Now()
	event := telemetry.QueryEvent{Query: text, Kind: kind}

	results, err := s.resolve(ctx, text, topK, keyFn, rank, &event)

	event.Latency = time.Since(start)
	event.ResultCount = len(results)
	if err != nil {
		event.ErrCode = errorCode(err)
	}
	s.metrics.Record(event)

	return results, err
}

func (s *Service) resolve(ctx context.Context, text string, topK int, keyFn func(string, int) string, rank rankFunc, event *telemetry.QueryEvent) ([]search.MatchResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nocerrors.ValidationError("query text is empty", nil)
	}
	if topK <= 0 {
		return []search.MatchResult{}, nil
	}

	snap, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	norm := textnorm.Normalize(text)
	key := keyFn(norm, topK)

	var computed atomic.Bool
	r, err := s.cache.GetOrCompute(ctx, key, func(ctx context.Context) (search.Ranking, bool, error) {
		computed.Store(true)
		r, err := rank(ctx, snap, norm, topK)
		if err != nil {
			return search.Ranking{}, false, err
		}
		// A rebuild may have swapped snapshots while this ran.
		cacheable := !r.Degraded && s.snap.Load() == snap
		return r, cacheable, nil
	})
	if err != nil {
		return nil, err
	}

	event.Path = string(r.Path)
	event.CacheHit = !computed.Load()
	if r.Degraded {
		s.logger.Debug("served degraded ranking", slog.String("query", norm))
	}
	return slices.Clone(r.Results), nil
}

// acquire returns the current snapshot with a reference held.
func (s *Service) acquire() (*search.Snapshot, error) {
	for {
		snap := s.snap.Load()
		if snap == nil {
			return nil, nocerrors.New(nocerrors.ErrCodeNotReady, "matcher has no index loaded", nil).
				WithSuggestion("Run 'nocmatch index' or check the taxonomy path")
		}
		if snap.Acquire() {
			return snap, nil
		}
		// Retired and closed between Load and Acquire; the pointer has moved on.
	}
}

// Ready reports whether a snapshot is loaded.
func (s *Service) Ready() bool {
	return s.snap.Load() != nil
}

// TaxonomyPath returns the taxonomy file the service loads.
func (s *Service) TaxonomyPath() string {
	return s.cfg.Taxonomy.Path
}

// DefaultTopK returns the configured result count for callers that omit one.
func (s *Service) DefaultTopK() int {
	if s.cfg.Matcher.DefaultTopK > 0 {
		return s.cfg.Matcher.DefaultTopK
	}
	return 5
}

// Stats reports the snapshot, cache, and query counters.
func (s *Service) Stats() Stats {
	st := Stats{
		TaxonomyPath: s.cfg.Taxonomy.Path,
		Cache:        s.cache.Stats(),
		Breaker:      s.gateway.BreakerState(),
		Queries:      s.metrics.Snapshot(),
	}
	if snap := s.snap.Load(); snap != nil {
		info := snap.Info()
		st.Ready = true
		st.Snapshot = &info
	}
	s.infoMu.RLock()
	if s.lastRebuild != nil {
		info := *s.lastRebuild
		st.LastRebuild = &info
	}
	s.infoMu.RUnlock()
	return st
}

// Shutdown retires the current snapshot and closes the embedding store and
// provider. Queries after Shutdown fail with ERR_505_NOT_READY.
func (s *Service) Shutdown() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	if old := s.snap.Swap(nil); old != nil {
		old.Retire()
	}
	s.cache.Purge()

	var errs []error
	if err := s.embeddings.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close embedding store: %w", err))
	}
	if err := s.gateway.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close embedder: %w", err))
	}
	s.logger.Info("matcher shut down")
	return errors.Join(errs...)
}

func closeIndexes(out *index.Output) {
	if out.Duties != nil {
		_ = out.Duties.Close()
	}
}

func errorCode(err error) string {
	if code := nocerrors.GetCode(err); code != "" {
		return code
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	default:
		return "unknown"
	}
}
