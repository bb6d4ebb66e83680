package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete nocmatch configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Taxonomy   TaxonomyConfig   `yaml:"taxonomy" json:"taxonomy"`
	DataDir    string           `yaml:"data_dir" json:"data_dir"`
	Matcher    MatcherConfig    `yaml:"matcher" json:"matcher"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Vectors    VectorsConfig    `yaml:"vectors" json:"vectors"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// TaxonomyConfig points at the occupation dataset.
type TaxonomyConfig struct {
	// Path is the JSONL file, one occupation record per line.
	Path string `yaml:"path" json:"path"`
}

// MatcherConfig tunes lexical/semantic fusion.
type MatcherConfig struct {
	// LexicalWeight and SemanticWeight must sum to 1.0.
	LexicalWeight  float64 `yaml:"lexical_weight" json:"lexical_weight"`
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`

	// KeywordBoost is added per keyword found in the query, for at most
	// MaxBoostedKeywords keywords.
	KeywordBoost       float64 `yaml:"keyword_boost" json:"keyword_boost"`
	MaxBoostedKeywords int     `yaml:"max_boosted_keywords" json:"max_boosted_keywords"`

	// Semantic candidate width is max(topK*CandidateMultiplier, MinCandidates).
	CandidateMultiplier int `yaml:"candidate_multiplier" json:"candidate_multiplier"`
	MinCandidates       int `yaml:"min_candidates" json:"min_candidates"`

	SnippetLength int `yaml:"snippet_length" json:"snippet_length"`
	DefaultTopK   int `yaml:"default_top_k" json:"default_top_k"`

	// DegradeOnRetrievalFailure answers from BM25 over duties text instead
	// of failing when the embedding service is down.
	DegradeOnRetrievalFailure bool `yaml:"degrade_on_retrieval_failure" json:"degrade_on_retrieval_failure"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of "openai", "ollama", or "static".
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`

	// Dimensions pins the expected vector length. 0 accepts whatever the
	// provider returns first and enforces it afterwards.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	OllamaHost    string `yaml:"ollama_host" json:"ollama_host"`
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"`
	OpenAIAPIKey  string `yaml:"openai_api_key" json:"-"`

	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	Workers    int    `yaml:"workers" json:"workers"`
	Timeout    string `yaml:"timeout" json:"timeout"`
	MaxRetries int    `yaml:"max_retries" json:"max_retries"`
}

// VectorsConfig selects the vector index backend.
type VectorsConfig struct {
	// Backend is "auto", "hnsw", or "brute".
	Backend string `yaml:"backend" json:"backend"`

	HNSWM        int `yaml:"hnsw_m" json:"hnsw_m"`
	HNSWEfSearch int `yaml:"hnsw_ef_search" json:"hnsw_ef_search"`

	// HNSWMinEntries is the taxonomy size below which "auto" skips HNSW.
	HNSWMinEntries int `yaml:"hnsw_min_entries" json:"hnsw_min_entries"`
}

// CacheConfig sizes the lookup cache.
type CacheConfig struct {
	Size int `yaml:"size" json:"size"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	LogLevel      string `yaml:"log_level" json:"log_level"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version:  1,
		Taxonomy: TaxonomyConfig{Path: "noc_data.jsonl"},
		DataDir:  ".nocmatch",
		Matcher: MatcherConfig{
			LexicalWeight:       0.7,
			SemanticWeight:      0.3,
			KeywordBoost:        0.05,
			MaxBoostedKeywords:  3,
			CandidateMultiplier: 4,
			MinCandidates:       20,
			SnippetLength:       300,
			DefaultTopK:         5,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			OllamaHost: "http://localhost:11434",
			BatchSize:  16,
			Workers:    4,
			Timeout:    "15s",
			MaxRetries: 2,
		},
		Vectors: VectorsConfig{
			Backend:        "auto",
			HNSWM:          16,
			HNSWEfSearch:   64,
			HNSWMinEntries: 256,
		},
		Cache: CacheConfig{Size: 2048},
		Server: ServerConfig{
			LogLevel:      "info",
			WatchDebounce: "500ms",
		},
	}
}

// GetUserConfigPath returns the user config file, honoring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "nocmatch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "nocmatch", "config.yaml")
	}
	return filepath.Join(home, ".config", "nocmatch", "config.yaml")
}

// Load loads configuration for the project in dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/nocmatch/config.yaml)
//  3. Project config (.nocmatch.yaml in dir)
//  4. Environment variables (NOCMATCH_*, plus OPENAI_API_KEY, OPENAI_MODEL, BATCH_SIZE, TOP_K)
//
// Relative taxonomy and data paths are resolved against dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.resolvePaths(dir)
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".nocmatch.yaml", ".nocmatch.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies non-zero values from other into c. Booleans can only be
// switched on from a file; use the env override to force one off.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Taxonomy.Path != "" {
		c.Taxonomy.Path = other.Taxonomy.Path
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}

	m, om := &c.Matcher, other.Matcher
	if om.LexicalWeight != 0 || om.SemanticWeight != 0 {
		m.LexicalWeight = om.LexicalWeight
		m.SemanticWeight = om.SemanticWeight
	}
	if om.KeywordBoost != 0 {
		m.KeywordBoost = om.KeywordBoost
	}
	if om.MaxBoostedKeywords != 0 {
		m.MaxBoostedKeywords = om.MaxBoostedKeywords
	}
	if om.CandidateMultiplier != 0 {
		m.CandidateMultiplier = om.CandidateMultiplier
	}
	if om.MinCandidates != 0 {
		m.MinCandidates = om.MinCandidates
	}
	if om.SnippetLength != 0 {
		m.SnippetLength = om.SnippetLength
	}
	if om.DefaultTopK != 0 {
		m.DefaultTopK = om.DefaultTopK
	}
	if om.DegradeOnRetrievalFailure {
		m.DegradeOnRetrievalFailure = true
	}

	e, oe := &c.Embeddings, other.Embeddings
	if oe.Provider != "" {
		e.Provider = oe.Provider
	}
	if oe.Model != "" {
		e.Model = oe.Model
	}
	if oe.Dimensions != 0 {
		e.Dimensions = oe.Dimensions
	}
	if oe.OllamaHost != "" {
		e.OllamaHost = oe.OllamaHost
	}
	if oe.OpenAIBaseURL != "" {
		e.OpenAIBaseURL = oe.OpenAIBaseURL
	}
	if oe.OpenAIAPIKey != "" {
		e.OpenAIAPIKey = oe.OpenAIAPIKey
	}
	if oe.BatchSize != 0 {
		e.BatchSize = oe.BatchSize
	}
	if oe.Workers != 0 {
		e.Workers = oe.Workers
	}
	if oe.Timeout != "" {
		e.Timeout = oe.Timeout
	}
	if oe.MaxRetries != 0 {
		e.MaxRetries = oe.MaxRetries
	}

	v, ov := &c.Vectors, other.Vectors
	if ov.Backend != "" {
		v.Backend = ov.Backend
	}
	if ov.HNSWM != 0 {
		v.HNSWM = ov.HNSWM
	}
	if ov.HNSWEfSearch != 0 {
		v.HNSWEfSearch = ov.HNSWEfSearch
	}
	if ov.HNSWMinEntries != 0 {
		v.HNSWMinEntries = ov.HNSWMinEntries
	}

	if other.Cache.Size != 0 {
		c.Cache.Size = other.Cache.Size
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.WatchDebounce != "" {
		c.Server.WatchDebounce = other.Server.WatchDebounce
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NOCMATCH_TAXONOMY_PATH"); v != "" {
		c.Taxonomy.Path = v
	}
	if v := os.Getenv("NOCMATCH_DATA_DIR"); v != "" {
		c.DataDir = v
	}

	if v := os.Getenv("NOCMATCH_LEXICAL_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Matcher.LexicalWeight = w
		}
	}
	if v := os.Getenv("NOCMATCH_SEMANTIC_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Matcher.SemanticWeight = w
		}
	}
	if v := firstEnv("NOCMATCH_TOP_K", "TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Matcher.DefaultTopK = k
		}
	}
	if v := os.Getenv("NOCMATCH_DEGRADE_ON_RETRIEVAL_FAILURE"); v != "" {
		c.Matcher.DegradeOnRetrievalFailure = parseBool(v)
	}

	if v := os.Getenv("NOCMATCH_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := firstEnv("NOCMATCH_EMBEDDINGS_MODEL", "OPENAI_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("NOCMATCH_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("NOCMATCH_OPENAI_BASE_URL"); v != "" {
		c.Embeddings.OpenAIBaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Embeddings.OpenAIAPIKey = v
	}
	if v := firstEnv("NOCMATCH_BATCH_SIZE", "BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.BatchSize = n
		}
	}
	if v := os.Getenv("NOCMATCH_EMBEDDINGS_TIMEOUT"); v != "" {
		c.Embeddings.Timeout = v
	}

	if v := os.Getenv("NOCMATCH_VECTOR_BACKEND"); v != "" {
		c.Vectors.Backend = v
	}
	if v := os.Getenv("NOCMATCH_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Cache.Size = n
		}
	}
	if v := os.Getenv("NOCMATCH_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

func (c *Config) resolvePaths(dir string) {
	if dir == "" {
		return
	}
	if c.Taxonomy.Path != "" && !filepath.IsAbs(c.Taxonomy.Path) {
		c.Taxonomy.Path = filepath.Join(dir, c.Taxonomy.Path)
	}
	if c.DataDir != "" && !filepath.IsAbs(c.DataDir) {
		c.DataDir = filepath.Join(dir, c.DataDir)
	}
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	m := c.Matcher
	if m.LexicalWeight < 0 || m.LexicalWeight > 1 {
		return fmt.Errorf("lexical_weight must be between 0 and 1, got %f", m.LexicalWeight)
	}
	if m.SemanticWeight < 0 || m.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be between 0 and 1, got %f", m.SemanticWeight)
	}
	if sum := m.LexicalWeight + m.SemanticWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("lexical_weight + semantic_weight must equal 1.0, got %.2f", sum)
	}
	if m.KeywordBoost < 0 || m.MaxBoostedKeywords < 0 {
		return fmt.Errorf("keyword_boost and max_boosted_keywords must be non-negative")
	}
	if m.CandidateMultiplier < 1 || m.MinCandidates < 1 {
		return fmt.Errorf("candidate_multiplier and min_candidates must be at least 1")
	}
	if m.SnippetLength < 0 {
		return fmt.Errorf("snippet_length must be non-negative, got %d", m.SnippetLength)
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "openai", "ollama", "static":
	default:
		return fmt.Errorf("embeddings.provider must be 'openai', 'ollama', or 'static', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize < 1 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if _, err := time.ParseDuration(c.Embeddings.Timeout); err != nil {
		return fmt.Errorf("embeddings.timeout: %w", err)
	}

	switch strings.ToLower(c.Vectors.Backend) {
	case "auto", "hnsw", "brute":
	default:
		return fmt.Errorf("vectors.backend must be 'auto', 'hnsw', or 'brute', got %s", c.Vectors.Backend)
	}

	if c.Cache.Size < 1 {
		return fmt.Errorf("cache.size must be positive, got %d", c.Cache.Size)
	}

	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	if _, err := time.ParseDuration(c.Server.WatchDebounce); err != nil {
		return fmt.Errorf("server.watch_debounce: %w", err)
	}
	return nil
}

// EmbeddingTimeout returns the parsed per-call embedding timeout.
func (c *Config) EmbeddingTimeout() time.Duration {
	d, err := time.ParseDuration(c.Embeddings.Timeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// WatchDebounce returns the parsed watcher debounce interval.
func (c *Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Server.WatchDebounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
