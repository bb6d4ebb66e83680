package mcp

import (
	"time"

	"github.com/Aman-CERP/nocmatch/internal/matcher"
	"github.com/Aman-CERP/nocmatch/internal/search"
)

// Tool names.
const (
	ToolMatchByTitle  = "match_by_title"
	ToolMatchByQuery  = "match_by_query"
	ToolRebuildIndex  = "rebuild_index"
	ToolMatcherStatus = "matcher_status"
)

// MaxTopK caps the number of results a client may request.
const MaxTopK = 50

// MatchByTitleInput defines the input schema for match_by_title.
type MatchByTitleInput struct {
	Title string `json:"title" jsonschema:"the job title to classify, or a numeric NOC code"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"maximum number of results, default 5"`
}

// MatchByQueryInput defines the input schema for match_by_query.
type MatchByQueryInput struct {
	Duties string `json:"duties" jsonschema:"free-text description of the job duties"`
	TopK   int    `json:"top_k,omitempty" jsonschema:"maximum number of results, default 5"`
}

// MatchOutput defines the output schema for both match tools.
type MatchOutput struct {
	Query   string               `json:"query"`
	Count   int                  `json:"count"`
	Results []search.MatchResult `json:"results" jsonschema:"matching occupations ordered by score"`
}

// RebuildInput defines the input schema for rebuild_index.
type RebuildInput struct {
	Force bool `json:"force,omitempty" jsonschema:"re-embed every entry instead of reusing stored vectors"`
}

// RebuildOutput defines the output schema for rebuild_index.
type RebuildOutput struct {
	Entries    int    `json:"entries"`
	Generation uint64 `json:"generation"`
	Embedded   int    `json:"embedded"`
	Reused     int    `json:"reused"`
	DurationMS int64  `json:"duration_ms"`
}

// StatusInput defines the input schema for matcher_status (no parameters).
type StatusInput struct{}

// StatusOutput defines the output schema for matcher_status.
type StatusOutput struct {
	Version      string `json:"version"`
	Ready        bool   `json:"ready" jsonschema:"whether a taxonomy snapshot is loaded"`
	TaxonomyPath string `json:"taxonomy_path"`

	Entries      int    `json:"entries"`
	Generation   uint64 `json:"generation"`
	Backend      string `json:"backend,omitempty" jsonschema:"vector index backend: hnsw or brute"`
	Model        string `json:"model,omitempty"`
	Dimensions   int    `json:"dimensions,omitempty"`
	FromArtifact bool   `json:"from_artifact" jsonschema:"whether the HNSW graph was loaded from disk"`
	BuiltAt      string `json:"built_at,omitempty"`

	CacheSize    int     `json:"cache_size"`
	CacheHits    uint64  `json:"cache_hits"`
	CacheMisses  uint64  `json:"cache_misses"`
	Breaker      string  `json:"breaker" jsonschema:"embedding circuit breaker state"`
	TotalQueries int64   `json:"total_queries"`
	CacheHitRate float64 `json:"cache_hit_rate"`

	LastRebuildAt string   `json:"last_rebuild_at,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// newStatusOutput flattens matcher stats for clients.
func newStatusOutput(v string, st matcher.Stats) StatusOutput {
	out := StatusOutput{
		Version:      v,
		Ready:        st.Ready,
		TaxonomyPath: st.TaxonomyPath,
		CacheSize:    st.Cache.Size,
		CacheHits:    st.Cache.Hits,
		CacheMisses:  st.Cache.Misses,
		Breaker:      st.Breaker,
		TotalQueries: st.Queries.TotalQueries,
		CacheHitRate: st.Queries.CacheHitRate(),
	}
	if snap := st.Snapshot; snap != nil {
		out.Entries = snap.Entries
		out.Generation = snap.Generation
		out.Backend = snap.Backend
		out.Model = snap.Model
		out.Dimensions = snap.Dimensions
		out.FromArtifact = snap.FromArtifact
		out.BuiltAt = snap.BuiltAt.UTC().Format(time.RFC3339)
	}
	if rb := st.LastRebuild; rb != nil {
		out.LastRebuildAt = rb.Completed.UTC().Format(time.RFC3339)
		out.Warnings = rb.Warnings
	}
	return out
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var toolInfos = []ToolInfo{
	{
		Name:        ToolMatchByTitle,
		Description: "Classify a job title against the NOC occupation taxonomy. Accepts a title, an alias, or a numeric NOC code. Exact titles and codes return a single score of 1.0; other titles are ranked by fuzzy and semantic similarity.",
	},
	{
		Name:        ToolMatchByQuery,
		Description: "Find the NOC occupations whose duties best match a free-text description of the work performed.",
	},
	{
		Name:        ToolRebuildIndex,
		Description: "Reload the taxonomy file and rebuild the matching indexes. The current index keeps serving if the rebuild fails.",
	},
	{
		Name:        ToolMatcherStatus,
		Description: "Report the loaded taxonomy, vector backend, embedding model, cache size, and query counters.",
	},
}
