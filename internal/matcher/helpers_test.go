package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/nocmatch/internal/config"
	"github.com/Aman-CERP/nocmatch/internal/embed"
	"github.com/Aman-CERP/nocmatch/internal/search"
)

var errEmbeddingDown = errors.New("connection refused")

// switchableEmbedder wraps the static embedder and fails on demand.
type switchableEmbedder struct {
	inner *embed.StaticEmbedder
	fail  atomic.Bool
	calls atomic.Int32
}

func newSwitchableEmbedder() *switchableEmbedder {
	return &switchableEmbedder{inner: embed.NewStaticEmbedder(64)}
}

func (e *switchableEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.fail.Load() {
		return nil, errEmbeddingDown
	}
	return e.inner.Embed(ctx, text)
}

func (e *switchableEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.fail.Load() {
		return nil, errEmbeddingDown
	}
	return e.inner.EmbedBatch(ctx, texts)
}

func (e *switchableEmbedder) Dimensions() int   { return e.inner.Dimensions() }
func (e *switchableEmbedder) ModelName() string { return e.inner.ModelName() }
func (e *switchableEmbedder) Close() error      { return nil }

type record struct {
	Code     string   `json:"noc"`
	Title    string   `json:"title"`
	TEER     string   `json:"teer,omitempty"`
	Related  []string `json:"related_titles,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Duties   string   `json:"duties,omitempty"`
}

func baseRecords() []record {
	return []record{
		{
			Code:     "21234",
			Title:    "Software engineer",
			TEER:     "1",
			Related:  []string{"Software developer"},
			Keywords: []string{"software"},
			Duties:   "Research, design and build software systems. Write and test code.",
		},
		{
			Code:     "31301",
			Title:    "Registered nurse",
			TEER:     "1",
			Related:  []string{"RN"},
			Keywords: []string{"nursing", "patient"},
			Duties:   "Provide patient care, administer medication and monitor patients.",
		},
		{
			Code:     "73300",
			Title:    "Carpenter",
			TEER:     "3",
			Keywords: []string{"wood"},
			Duties:   "Construct, erect and repair structures made of wood.",
		},
	}
}

func writeTaxonomy(t *testing.T, path string, records []record) {
	t.Helper()
	var b strings.Builder
	for _, r := range records {
		line, err := json.Marshal(r)
		require.NoError(t, err)
		b.Write(line)
		b.WriteByte('\n')
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Taxonomy.Path = filepath.Join(dir, "noc.jsonl")
	cfg.DataDir = filepath.Join(dir, ".nocmatch")
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.MaxRetries = 0
	cfg.Vectors.Backend = "brute"
	return cfg
}

// newTestService returns an initialized service over baseRecords.
func newTestService(t *testing.T, mutate ...func(*config.Config)) (*Service, *switchableEmbedder) {
	t.Helper()
	cfg := testConfig(t)
	for _, m := range mutate {
		m(cfg)
	}
	writeTaxonomy(t, cfg.Taxonomy.Path, baseRecords())

	emb := newSwitchableEmbedder()
	svc, err := New(cfg, WithEmbedder(emb))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Shutdown() })

	require.NoError(t, svc.Init(context.Background()))
	return svc, emb
}

func resultCodes(results []search.MatchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Code
	}
	return out
}
