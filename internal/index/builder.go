// Package index turns a taxonomy store into the indexes a snapshot serves
// from: entry embeddings (persisted and reused across runs), one vector
// index over duties and one over titles (HNSW or brute force), and the BM25
// duty index.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	nocerrors "github.com/Aman-CERP/nocmatch/internal/errors"
	"github.com/Aman-CERP/nocmatch/internal/logging"
	"github.com/Aman-CERP/nocmatch/internal/store"
	"github.com/Aman-CERP/nocmatch/internal/taxonomy"
)

// Artifact file names inside the data directory.
const (
	VectorsDBName  = "vectors.db"
	GraphName      = "index.hnsw"
	TitleGraphName = "titles.hnsw"
)

// errStaleArtifact marks a saved graph that no longer matches the vectors
// it would serve.
var errStaleArtifact = errors.New("stale artifact")

// Backend modes accepted by BuilderConfig.Backend.
const (
	ModeAuto  = "auto"
	ModeHNSW  = "hnsw"
	ModeBrute = "brute"
)

// Embedder is what the builder needs from the embedding gateway.
type Embedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
	Dimensions() int
	SetDimensions(n int)
}

// BuilderConfig configures index builds.
type BuilderConfig struct {
	DataDir string

	// Backend is "auto", "hnsw", or "brute".
	Backend string
	HNSW    store.HNSWConfig

	// HNSWMinEntries is the taxonomy size below which auto mode uses brute force.
	HNSWMinEntries int
}

// BuilderDependencies are injected into NewBuilder.
type BuilderDependencies struct {
	Embedder Embedder

	// Embeddings persists entry vectors between runs (required).
	Embeddings *store.EmbeddingStore
}

// BuildResult describes one build.
type BuildResult struct {
	Entries int

	// Embedded and Reused count duties vectors.
	Embedded int
	Reused   int

	TitlesEmbedded int
	TitlesReused   int
	Pruned         int64

	Backend store.Backend

	// FromArtifact is set when every graph was loaded from disk.
	FromArtifact bool
	Dimensions   int
	Model        string

	// Warnings collects recovered failures (artifact load, duty index).
	Warnings []string
	Duration time.Duration
}

// Output is the set of indexes for one snapshot.
type Output struct {
	Vectors store.VectorIndex
	Titles  store.VectorIndex
	Duties  *store.DutyIndex
	Result  BuildResult
}

// fieldVectors is one embedded text field of every entry.
type fieldVectors struct {
	field    string
	vectors  [][]float32
	digest   string
	embedded int
	reused   int
}

// Builder builds indexes for a taxonomy store.
type Builder struct {
	embedder   Embedder
	embeddings *store.EmbeddingStore
	cfg        BuilderConfig
	logger     *slog.Logger
}

// NewBuilder creates a Builder with injected dependencies.
func NewBuilder(deps BuilderDependencies, cfg BuilderConfig) (*Builder, error) {
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Embeddings == nil {
		return nil, fmt.Errorf("embedding store is required")
	}
	switch cfg.Backend {
	case "":
		cfg.Backend = ModeAuto
	case ModeAuto, ModeHNSW, ModeBrute:
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
	if cfg.HNSW.M <= 0 || cfg.HNSW.EfSearch <= 0 {
		def := store.DefaultHNSWConfig()
		if cfg.HNSW.M <= 0 {
			cfg.HNSW.M = def.M
		}
		if cfg.HNSW.EfSearch <= 0 {
			cfg.HNSW.EfSearch = def.EfSearch
		}
	}
	return &Builder{
		embedder:   deps.Embedder,
		embeddings: deps.Embeddings,
		cfg:        cfg,
		logger:     logging.Component("index-builder"),
	}, nil
}

// GraphPath returns where the duties HNSW artifact lives.
func (b *Builder) GraphPath() string {
	return filepath.Join(b.cfg.DataDir, GraphName)
}

// TitleGraphPath returns where the titles HNSW artifact lives.
func (b *Builder) TitleGraphPath() string {
	return filepath.Join(b.cfg.DataDir, TitleGraphName)
}

func (b *Builder) graphPath(field string) string {
	if field == store.FieldTitle {
		return b.TitleGraphPath()
	}
	return b.GraphPath()
}

// Build embeds every entry of s and builds its indexes. A forced build
// re-embeds everything and ignores saved graphs. Artifact and duty index
// failures are logged and recovered; only embedding failures are returned.
func (b *Builder) Build(ctx context.Context, s *taxonomy.Store, force bool) (*Output, error) {
	start := time.Now()
	res := BuildResult{Entries: s.Len(), Model: b.embedder.ModelName()}

	duties, err := b.embedField(ctx, s, store.FieldDuties, s.DutiesTexts(), force)
	if err != nil {
		return nil, err
	}
	if len(duties.vectors) > 0 {
		res.Dimensions = len(duties.vectors[0])
		b.embedder.SetDimensions(res.Dimensions)
	}
	titles, err := b.embedField(ctx, s, store.FieldTitle, s.TitleTexts(), force)
	if err != nil {
		return nil, err
	}
	res.Embedded, res.Reused = duties.embedded, duties.reused
	res.TitlesEmbedded, res.TitlesReused = titles.embedded, titles.reused

	pruned, err := b.embeddings.Prune(ctx, res.Model, s.Codes())
	if err != nil {
		b.logger.Warn("failed to prune stale embeddings", slog.String("error", err.Error()))
	}
	res.Pruned = pruned

	vi, dutiesLoaded, err := b.vectorIndex(s, duties, force, &res)
	if err != nil {
		return nil, err
	}
	ti, titlesLoaded, err := b.vectorIndex(s, titles, force, &res)
	if err != nil {
		return nil, err
	}
	res.Backend = vi.Backend()
	res.FromArtifact = dutiesLoaded && titlesLoaded

	dutyIdx, err := store.NewDutyIndex(dutyDocuments(s))
	if err != nil {
		res.Warnings = append(res.Warnings, "duty index: "+err.Error())
		b.logger.Warn("duty index unavailable, degraded mode disabled for this snapshot",
			slog.String("error", err.Error()))
		dutyIdx = nil
	}

	res.Duration = time.Since(start)
	b.logger.Info("index built",
		slog.Int("entries", res.Entries),
		slog.Int("embedded", res.Embedded),
		slog.Int("reused", res.Reused),
		slog.Int("titles_embedded", res.TitlesEmbedded),
		slog.String("backend", string(res.Backend)),
		slog.Bool("from_artifact", res.FromArtifact),
		slog.Duration("duration", res.Duration))

	return &Output{Vectors: vi, Titles: ti, Duties: dutyIdx, Result: res}, nil
}

// embedField returns one vector per entry for field, in store order. Stored
// vectors are reused when their text hash and model still match.
func (b *Builder) embedField(ctx context.Context, s *taxonomy.Store, field string, texts []string, force bool) (*fieldVectors, error) {
	n := s.Len()
	fv := &fieldVectors{field: field, vectors: [][]float32{}}
	if n == 0 {
		fv.digest = store.TextDigest(nil)
		return fv, nil
	}
	model := b.embedder.ModelName()
	codes := s.Codes()

	var stored map[string]store.StoredEmbedding
	if !force {
		var err error
		stored, err = b.embeddings.Get(ctx, model, field, codes)
		if err != nil {
			b.logger.Warn("failed to read stored embeddings, re-embedding all",
				slog.String("field", field),
				slog.String("error", err.Error()))
			stored = nil
		}
	}

	vectors := make([][]float32, n)
	hashes := make([]string, n)
	var missing []int
	wantDims := b.embedder.Dimensions()
	for i := range codes {
		hashes[i] = store.TextHash(texts[i])
		se, ok := stored[codes[i]]
		if ok && se.TextHash == hashes[i] && (wantDims == 0 || len(se.Vector) == wantDims) {
			vectors[i] = se.Vector
			continue
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		batch := make([]string, len(missing))
		for j, i := range missing {
			batch[j] = texts[i]
		}
		b.logger.Info("embedding entries",
			slog.String("field", field),
			slog.Int("count", len(missing)),
			slog.Int("total", n),
			slog.String("model", model))

		fresh, err := b.embedder.EmbedAll(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embed %s: %w", field, err)
		}
		items := make([]store.StoredEmbedding, len(missing))
		for j, i := range missing {
			vectors[i] = fresh[j]
			items[j] = store.StoredEmbedding{Code: codes[i], TextHash: hashes[i], Vector: fresh[j]}
		}
		if err := b.embeddings.Put(ctx, model, field, items); err != nil {
			b.logger.Warn("failed to persist embeddings",
				slog.String("field", field),
				slog.String("error", err.Error()))
		}
	}

	if !sameDimensions(vectors) {
		if force {
			return nil, fmt.Errorf("embedding service returned vectors of mixed dimensions")
		}
		b.logger.Warn("stored embeddings have mixed dimensions, re-embedding all",
			slog.String("field", field))
		return b.embedField(ctx, s, field, texts, true)
	}

	fv.vectors = vectors
	fv.digest = store.TextDigest(hashes)
	fv.embedded = len(missing)
	fv.reused = n - len(missing)
	return fv, nil
}

// vectorIndex applies the backend selection policy to one field. The bool
// reports whether a saved graph was loaded.
func (b *Builder) vectorIndex(s *taxonomy.Store, fv *fieldVectors, force bool, res *BuildResult) (store.VectorIndex, bool, error) {
	brute := func() (store.VectorIndex, bool, error) {
		vi, err := store.NewBruteForceIndex(fv.vectors)
		return vi, false, err
	}
	n := len(fv.vectors)
	if b.cfg.Backend == ModeBrute || n == 0 {
		return brute()
	}

	path := b.graphPath(fv.field)
	if !force {
		idx, err := b.loadGraph(s, fv)
		switch {
		case err == nil:
			return idx, true, nil
		case errors.Is(err, os.ErrNotExist):
		case errors.Is(err, errStaleArtifact):
			b.logger.Info("index artifact out of date, rebuilding",
				slog.String("path", path),
				slog.String("reason", err.Error()))
		default:
			corrupt := nocerrors.New(nocerrors.ErrCodeIndexCorrupt, "index artifact unusable", err).
				WithDetail("path", path)
			res.Warnings = append(res.Warnings, corrupt.Error())
			b.logger.Warn("index artifact unusable, rebuilding",
				slog.String("path", path),
				slog.String("code", corrupt.Code),
				slog.String("error", err.Error()))
		}
	}

	if b.cfg.Backend == ModeAuto && n < b.cfg.HNSWMinEntries {
		return brute()
	}

	idx, err := store.NewHNSWIndex(fv.vectors, b.cfg.HNSW)
	if err != nil {
		res.Warnings = append(res.Warnings, fv.field+" hnsw build: "+err.Error())
		b.logger.Warn("hnsw build failed, using brute force",
			slog.String("field", fv.field),
			slog.String("error", err.Error()))
		return brute()
	}

	meta := store.IndexMeta{
		Model:      b.embedder.ModelName(),
		Codes:      s.Codes(),
		TextDigest: fv.digest,
		BuiltAt:    time.Now(),
	}
	if err := idx.Save(path, meta); err != nil {
		res.Warnings = append(res.Warnings, "save artifact: "+err.Error())
		b.logger.Warn("failed to save index artifact",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
	return idx, false, nil
}

// loadGraph loads the saved graph for fv if it was built from exactly these
// vectors. A graph is never reused when any entry was just re-embedded,
// since its nodes would still sit at the old positions.
func (b *Builder) loadGraph(s *taxonomy.Store, fv *fieldVectors) (*store.HNSWIndex, error) {
	path := b.graphPath(fv.field)
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if fv.embedded > 0 {
		return nil, fmt.Errorf("%w: %d entries re-embedded", errStaleArtifact, fv.embedded)
	}
	meta, err := store.ReadIndexMeta(path)
	if err != nil {
		return nil, err
	}
	if err := checkMeta(meta, b.embedder.ModelName(), len(fv.vectors[0]), s.Codes(), fv.digest); err != nil {
		return nil, err
	}
	return store.LoadHNSWIndex(path, fv.vectors, b.cfg.HNSW)
}

func checkMeta(meta store.IndexMeta, model string, dims int, codes []string, digest string) error {
	var reasons []string
	if meta.Model != model {
		reasons = append(reasons, fmt.Sprintf("model %q != %q", meta.Model, model))
	}
	if meta.Dimensions != dims {
		reasons = append(reasons, fmt.Sprintf("dims %d != %d", meta.Dimensions, dims))
	}
	if !slices.Equal(meta.Codes, codes) {
		reasons = append(reasons, "entry codes changed")
	}
	if meta.TextDigest != digest {
		reasons = append(reasons, "entry texts changed")
	}
	if len(reasons) > 0 {
		return fmt.Errorf("%w: %s", errStaleArtifact, strings.Join(reasons, ", "))
	}
	return nil
}

func sameDimensions(vectors [][]float32) bool {
	for _, v := range vectors {
		if len(v) != len(vectors[0]) {
			return false
		}
	}
	return true
}

func dutyDocuments(s *taxonomy.Store) []store.DutyDocument {
	docs := make([]store.DutyDocument, s.Len())
	for i := range docs {
		e := s.At(i)
		docs[i] = store.DutyDocument{Code: e.Code, Title: e.Title, Duties: e.DutiesText}
	}
	return docs
}
