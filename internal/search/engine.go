package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	nocerrors "github.com/Aman-CERP/nocmatch/internal/errors"
	"github.com/Aman-CERP/nocmatch/internal/logging"
	"github.com/Aman-CERP/nocmatch/internal/store"
	"github.com/Aman-CERP/nocmatch/internal/textnorm"
)

// QueryEmbedder turns query text into a vector. *embed.Gateway implements it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Engine ranks entries of a snapshot. It holds no per-query state.
type Engine struct {
	embedder QueryEmbedder
	cfg      Config
	logger   *slog.Logger
}

// NewEngine creates an Engine. Zero-valued config fields take defaults.
func NewEngine(embedder QueryEmbedder, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Weights.Lexical == 0 && cfg.Weights.Semantic == 0 {
		cfg.Weights = def.Weights
	}
	if cfg.MaxBoostedKeywords <= 0 {
		cfg.MaxBoostedKeywords = def.MaxBoostedKeywords
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = def.CandidateMultiplier
	}
	if cfg.MinCandidates <= 0 {
		cfg.MinCandidates = def.MinCandidates
	}
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = def.SnippetLength
	}
	return &Engine{
		embedder: embedder,
		cfg:      cfg,
		logger:   logging.Component("ranker"),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Rank returns up to topK entries of snap for a duties query, ordered by
// score descending and code ascending. The code and exact-title stages never
// call the embedder. An empty taxonomy or topK <= 0 yields an empty ranking.
func (e *Engine) Rank(ctx context.Context, snap *Snapshot, query string, topK int) (Ranking, error) {
	return e.rank(ctx, snap, query, topK, store.FieldDuties)
}

// RankTitle is Rank for a job title. Its semantic scores come from the
// snapshot's title vectors.
func (e *Engine) RankTitle(ctx context.Context, snap *Snapshot, query string, topK int) (Ranking, error) {
	return e.rank(ctx, snap, query, topK, store.FieldTitle)
}

func (e *Engine) rank(ctx context.Context, snap *Snapshot, query string, topK int, field string) (Ranking, error) {
	start := time.Now()
	if topK <= 0 || snap == nil || snap.Store.Len() == 0 {
		return Ranking{Results: []MatchResult{}, Path: PathEmpty}, nil
	}

	if pos, ok := snap.Lexicon.CodeMatch(query); ok {
		return e.finish(snap, []scored{{pos: pos, code: snap.Store.At(pos).Code, score: 1}}, PathCode, start), nil
	}

	norm := textnorm.Normalize(query)
	if norm == "" {
		return Ranking{Results: []MatchResult{}, Path: PathEmpty}, nil
	}

	if hits := snap.Lexicon.Exact(norm); len(hits) > 0 {
		items := make([]scored, len(hits))
		for i, pos := range hits {
			items[i] = scored{pos: pos, code: snap.Store.At(pos).Code, score: 1}
		}
		orderScored(items)
		return e.finish(snap, topUnique(items, topK), PathExact, start), nil
	}

	return e.rankFused(ctx, snap, norm, topK, field, start)
}

func (e *Engine) rankFused(ctx context.Context, snap *Snapshot, norm string, topK int, field string, start time.Time) (Ranking, error) {
	n := snap.Store.Len()
	width := CandidateWidth(topK, e.cfg.CandidateMultiplier, e.cfg.MinCandidates, n)

	lexical := make([]float64, n)
	boosts := make([]float64, n)
	semantic := make([]float64, n)
	degraded := false

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for i := 0; i < n; i++ {
			if i%256 == 0 {
				if err := gctx.Err(); err != nil {
					return err
				}
			}
			lexical[i] = snap.Lexicon.FuzzyScore(norm, i)
			boosts[i] = KeywordBoost(snap.Lexicon.KeywordMatches(norm, i), e.cfg.KeywordBoost, e.cfg.MaxBoostedKeywords)
		}
		return nil
	})

	g.Go(func() error {
		err := e.semanticScores(gctx, snap.vectorsFor(field), norm, width, semantic)
		if err == nil {
			return nil
		}
		if !e.cfg.Degrade || !errors.Is(err, nocerrors.ErrRetrievalUnavailable) || snap.Duties == nil {
			return err
		}
		e.logger.Warn("semantic retrieval unavailable, ranking from duty index",
			slog.String("error", err.Error()))
		clear(semantic)
		if derr := e.dutyScores(gctx, snap, norm, width, semantic); derr != nil {
			return errors.Join(err, derr)
		}
		degraded = true
		return nil
	})

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Ranking{}, ctxErr
		}
		return Ranking{}, err
	}

	items := make([]scored, n)
	for i := 0; i < n; i++ {
		items[i] = scored{
			pos:   i,
			code:  snap.Store.At(i).Code,
			score: Fuse(lexical[i], semantic[i], boosts[i], e.cfg.Weights),
		}
	}
	orderScored(items)

	path := PathFused
	if degraded {
		path = PathDegraded
	}
	r := e.finish(snap, topUnique(items, topK), path, start)
	r.Degraded = degraded
	r.Candidates = width
	return r, nil
}

// semanticScores fills out[pos] with the clamped cosine similarity of the
// top width neighbours in vectors. Entries outside the candidate set stay 0.
func (e *Engine) semanticScores(ctx context.Context, vectors store.VectorIndex, norm string, width int, out []float64) error {
	if e.embedder == nil || vectors == nil {
		return nocerrors.RetrievalUnavailable("semantic index not available", nil)
	}

	vec, err := e.embedder.EmbedQuery(ctx, norm)
	if err != nil {
		return err
	}

	hits, err := vectors.Search(ctx, vec, width)
	if err != nil {
		if errors.Is(err, store.ErrDimensionMismatch) {
			return nocerrors.RetrievalUnavailable("query embedding does not match index", err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return nocerrors.New(nocerrors.ErrCodeSearchFailed, "vector search failed", err)
	}
	for _, h := range hits {
		if h.Position < 0 || h.Position >= len(out) {
			continue
		}
		out[h.Position] = clamp01(float64(h.Score))
	}
	return nil
}

// dutyScores fills out[pos] with BM25 scores over duties text, divided by
// the best score so the top hit is 1.
func (e *Engine) dutyScores(ctx context.Context, snap *Snapshot, norm string, width int, out []float64) error {
	hits, err := snap.Duties.Search(ctx, norm, width)
	if err != nil {
		return nocerrors.Wrap(nocerrors.ErrCodeSearchFailed, fmt.Errorf("duty index search: %w", err))
	}
	var best float64
	for _, h := range hits {
		best = max(best, h.Score)
	}
	if best <= 0 {
		return nil
	}
	for _, h := range hits {
		if pos := snap.Store.Position(h.Code); pos >= 0 {
			out[pos] = clamp01(h.Score / best)
		}
	}
	return nil
}

func (e *Engine) finish(snap *Snapshot, items []scored, path Path, start time.Time) Ranking {
	results := make([]MatchResult, len(items))
	for i, it := range items {
		entry := snap.Store.At(it.pos)
		results[i] = MatchResult{
			Code:        entry.Code,
			Title:       entry.Title,
			SkillTier:   entry.SkillTier,
			Score:       it.score,
			Snippet:     entry.Snippet(e.cfg.SnippetLength),
			AliasTitles: entry.AliasTitles,
		}
	}
	return Ranking{Results: results, Path: path, Duration: time.Since(start)}
}
