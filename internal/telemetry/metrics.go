// Package telemetry keeps in-process query statistics for status output.
// Nothing leaves the process.
package telemetry

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryKind distinguishes the two lookup entry points.
type QueryKind string

const (
	KindTitle  QueryKind = "title"
	KindDuties QueryKind = "duties"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one lookup, recorded after it completes.
type QueryEvent struct {
	Query       string
	Kind        QueryKind
	Path        string // ranking stage that answered, empty on error or cache hit
	CacheHit    bool
	ResultCount int
	Latency     time.Duration
	ErrCode     string
}

// TermCount is a query term and its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	KindCounts          map[QueryKind]int64     `json:"kind_counts"`
	PathCounts          map[string]int64        `json:"path_counts"`
	ErrorCounts         map[string]int64        `json:"error_counts"`
	CacheHits           int64                   `json:"cache_hits"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	Since               time.Time               `json:"since"`
}

// CacheHitRate returns the share of queries answered from the lookup cache.
func (s Snapshot) CacheHitRate() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.TotalQueries)
}

// Config sizes the bounded collections.
type Config struct {
	TopTermsCapacity      int
	ZeroResultsCapacity   int
	RecentQueriesCapacity int
}

// DefaultConfig returns the default capacities.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   50,
		RecentQueriesCapacity: 500,
	}
}

// QueryMetrics aggregates query events. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.Mutex

	total       int64
	kinds       map[QueryKind]int64
	paths       map[string]int64
	errs        map[string]int64
	cacheHits   int64
	zeroCount   int64
	latencies   map[LatencyBucket]int64
	repeats     int64
	zeroResults *CircularBuffer[string]
	topTerms    *lru.Cache[string, int64]
	recent      *lru.Cache[string, struct{}]
	since       time.Time
}

// New creates a collector. Zero-valued config fields take defaults.
func New(cfg Config) *QueryMetrics {
	def := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	return &QueryMetrics{
		kinds:       make(map[QueryKind]int64),
		paths:       make(map[string]int64),
		errs:        make(map[string]int64),
		latencies:   make(map[LatencyBucket]int64),
		zeroResults: NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		topTerms:    topTerms,
		recent:      recent,
		since:       time.Now(),
	}
}

// Record adds one event.
func (m *QueryMetrics) Record(e QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.kinds[e.Kind]++
	m.latencies[LatencyToBucket(e.Latency)]++

	if e.ErrCode != "" {
		m.errs[e.ErrCode]++
		return
	}
	if e.CacheHit {
		m.cacheHits++
	}
	if e.Path != "" {
		m.paths[e.Path]++
	}
	if e.ResultCount == 0 {
		m.zeroCount++
		m.zeroResults.Add(e.Query)
	}

	for _, term := range ExtractTerms(e.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}

	key := hashQuery(e.Kind, e.Query)
	if _, seen := m.recent.Get(key); seen {
		m.repeats++
	}
	m.recent.Add(key, struct{}{})
}

// Snapshot returns a copy of the current counters.
func (m *QueryMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	terms := make([]TermCount, 0, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: count})
		}
	}
	slices.SortFunc(terms, func(a, b TermCount) int {
		if a.Count != b.Count {
			return cmp.Compare(b.Count, a.Count)
		}
		return cmp.Compare(a.Term, b.Term)
	})

	return Snapshot{
		TotalQueries:        m.total,
		KindCounts:          cloneMap(m.kinds),
		PathCounts:          cloneMap(m.paths),
		ErrorCounts:         cloneMap(m.errs),
		CacheHits:           m.cacheHits,
		ZeroResultCount:     m.zeroCount,
		ZeroResultQueries:   m.zeroResults.Items(),
		LatencyDistribution: cloneMap(m.latencies),
		TopTerms:            terms,
		ExactRepeatCount:    m.repeats,
		Since:               m.since,
	}
}

// ExtractTerms splits a query into lowercase terms of at least three characters.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,;:!?()\"'")
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

func hashQuery(kind QueryKind, query string) string {
	normalized := string(kind) + "\x00" + strings.ToLower(strings.TrimSpace(query))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:16])
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
