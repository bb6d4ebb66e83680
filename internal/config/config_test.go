package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config at an empty dir and clears env overrides.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, name := range []string{
		"NOCMATCH_TAXONOMY_PATH", "NOCMATCH_DATA_DIR", "NOCMATCH_LEXICAL_WEIGHT",
		"NOCMATCH_SEMANTIC_WEIGHT", "NOCMATCH_TOP_K", "TOP_K", "NOCMATCH_EMBEDDINGS_PROVIDER",
		"NOCMATCH_EMBEDDINGS_MODEL", "OPENAI_MODEL", "OPENAI_API_KEY", "NOCMATCH_BATCH_SIZE",
		"BATCH_SIZE", "NOCMATCH_VECTOR_BACKEND", "NOCMATCH_CACHE_SIZE", "NOCMATCH_LOG_LEVEL",
		"NOCMATCH_DEGRADE_ON_RETRIEVAL_FAILURE", "NOCMATCH_EMBEDDINGS_TIMEOUT",
	} {
		t.Setenv(name, "")
	}
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 0.7, cfg.Matcher.LexicalWeight)
	assert.Equal(t, 0.3, cfg.Matcher.SemanticWeight)
	assert.Equal(t, 0.05, cfg.Matcher.KeywordBoost)
	assert.Equal(t, 3, cfg.Matcher.MaxBoostedKeywords)
	assert.Equal(t, 300, cfg.Matcher.SnippetLength)
	assert.Equal(t, 5, cfg.Matcher.DefaultTopK)
	assert.Equal(t, "text-embedding-3-small", cfg.Embeddings.Model)
	assert.Equal(t, 16, cfg.Embeddings.BatchSize)
	assert.Equal(t, 2048, cfg.Cache.Size)
	assert.Equal(t, "auto", cfg.Vectors.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFiles_ResolvesPathsAgainstDir(t *testing.T) {
	// Given: an empty project dir
	isolate(t)
	dir := t.TempDir()

	// When: loading config
	cfg, err := Load(dir)

	// Then: defaults apply with paths anchored in dir
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "noc_data.jsonl"), cfg.Taxonomy.Path)
	assert.Equal(t, filepath.Join(dir, ".nocmatch"), cfg.DataDir)
}

func TestLoad_ProjectFileOverridesUserFile(t *testing.T) {
	// Given: a user config and a project config that disagree
	isolate(t)
	userDir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "nocmatch")
	require.NoError(t, os.MkdirAll(userDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "config.yaml"), []byte(`
embeddings:
  provider: ollama
  model: nomic-embed-text
cache:
  size: 100
`), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".nocmatch.yaml"), []byte(`
embeddings:
  model: mxbai-embed-large
vectors:
  backend: brute
`), 0o644))

	// When: loading
	cfg, err := Load(dir)

	// Then: project wins where set, user fills the rest
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "mxbai-embed-large", cfg.Embeddings.Model)
	assert.Equal(t, 100, cfg.Cache.Size)
	assert.Equal(t, "brute", cfg.Vectors.Backend)
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".nocmatch.yml"), []byte(`
matcher:
  default_top_k: 8
`), 0o644))

	t.Setenv("TOP_K", "3")
	t.Setenv("BATCH_SIZE", "32")
	t.Setenv("OPENAI_MODEL", "text-embedding-3-large")
	t.Setenv("NOCMATCH_DEGRADE_ON_RETRIEVAL_FAILURE", "true")
	t.Setenv("NOCMATCH_TAXONOMY_PATH", "/data/noc.jsonl")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Matcher.DefaultTopK)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
	assert.Equal(t, "text-embedding-3-large", cfg.Embeddings.Model)
	assert.True(t, cfg.Matcher.DegradeOnRetrievalFailure)
	assert.Equal(t, "/data/noc.jsonl", cfg.Taxonomy.Path)
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".nocmatch.yaml"), []byte("matcher: [oops"), 0o644))

	_, err := Load(dir)

	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"weights out of range", func(c *Config) { c.Matcher.LexicalWeight = 1.5 }},
		{"weights do not sum", func(c *Config) { c.Matcher.SemanticWeight = 0.5 }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "bert" }},
		{"unknown backend", func(c *Config) { c.Vectors.Backend = "faiss" }},
		{"bad timeout", func(c *Config) { c.Embeddings.Timeout = "soon" }},
		{"zero cache", func(c *Config) { c.Cache.Size = 0 }},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "trace" }},
		{"zero candidates", func(c *Config) { c.Matcher.MinCandidates = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurations_FallBackOnGarbage(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 15*time.Second, cfg.EmbeddingTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.WatchDebounce())

	cfg.Embeddings.Timeout = "nope"
	assert.Equal(t, 15*time.Second, cfg.EmbeddingTimeout())
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Embeddings.Provider = "static"
	cfg.Cache.Size = 64

	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ".nocmatch.yaml")))
	loaded, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "static", loaded.Embeddings.Provider)
	assert.Equal(t, 64, loaded.Cache.Size)
}
