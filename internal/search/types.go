// Package search ranks taxonomy entries against a free-text query.
//
// A query resolves through three stages, first hit wins: a numeric code
// shortcut, an exact title or alias match, and finally a fused score that
// blends fuzzy title similarity with embedding similarity. All stages read
// from an immutable Snapshot, so ranking never takes a lock.
package search

import "time"

// MatchResult is one ranked taxonomy entry.
type MatchResult struct {
	Code        string   `json:"code"`
	Title       string   `json:"title"`
	SkillTier   string   `json:"skill_tier,omitempty"`
	Score       float64  `json:"score"`
	Snippet     string   `json:"snippet,omitempty"`
	AliasTitles []string `json:"alias_titles,omitempty"`
}

// Path records which stage produced a ranking.
type Path string

const (
	PathEmpty    Path = "empty"
	PathCode     Path = "code"
	PathExact    Path = "exact"
	PathFused    Path = "fused"
	PathDegraded Path = "degraded"
)

// Ranking is the outcome of one Rank call.
type Ranking struct {
	Results []MatchResult
	Path    Path

	// Degraded is set when semantic scores came from the BM25 duty index
	// because the embedding service failed. Degraded rankings are not cached.
	Degraded bool

	// Candidates is the semantic candidate width actually requested.
	Candidates int
	Duration   time.Duration
}

// Weights for lexical/semantic fusion.
type Weights struct {
	Lexical  float64
	Semantic float64
}

// DefaultWeights returns the 0.7/0.3 split that favours literal title overlap.
func DefaultWeights() Weights {
	return Weights{Lexical: 0.7, Semantic: 0.3}
}

// Config tunes the ranker.
type Config struct {
	Weights Weights

	// KeywordBoost is added per matched keyword, for at most MaxBoostedKeywords.
	KeywordBoost       float64
	MaxBoostedKeywords int

	// Semantic candidate width is max(topK*CandidateMultiplier, MinCandidates).
	CandidateMultiplier int
	MinCandidates       int

	// SnippetLength caps result snippets, in runes.
	SnippetLength int

	// Degrade answers from BM25 over duties text when embedding fails.
	Degrade bool
}

// DefaultConfig returns the ranker defaults.
func DefaultConfig() Config {
	return Config{
		Weights:             DefaultWeights(),
		KeywordBoost:        0.05,
		MaxBoostedKeywords:  3,
		CandidateMultiplier: 4,
		MinCandidates:       20,
		SnippetLength:       300,
	}
}
