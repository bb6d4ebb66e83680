package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{250 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, LatencyToBucket(tt.d))
		})
	}
}

func TestQueryMetrics_Record_CountsByKindPathAndError(t *testing.T) {
	// Given: a fresh collector
	m := New(Config{})

	// When: recording a mix of outcomes
	m.Record(QueryEvent{Query: "Software engineer", Kind: KindTitle, Path: "exact", ResultCount: 1})
	m.Record(QueryEvent{Query: "Software engineer", Kind: KindTitle, CacheHit: true, ResultCount: 1})
	m.Record(QueryEvent{Query: "design systems", Kind: KindDuties, ErrCode: "ERR_304_RETRIEVAL_UNAVAILABLE"})
	m.Record(QueryEvent{Query: "zzz", Kind: KindTitle, Path: "fused", ResultCount: 0})

	// Then: each counter reflects its events
	s := m.Snapshot()
	assert.Equal(t, int64(4), s.TotalQueries)
	assert.Equal(t, int64(3), s.KindCounts[KindTitle])
	assert.Equal(t, int64(1), s.KindCounts[KindDuties])
	assert.Equal(t, int64(1), s.PathCounts["exact"])
	assert.Equal(t, int64(1), s.ErrorCounts["ERR_304_RETRIEVAL_UNAVAILABLE"])
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, []string{"zzz"}, s.ZeroResultQueries)
	assert.Equal(t, int64(1), s.ExactRepeatCount)
	assert.InDelta(t, 0.25, s.CacheHitRate(), 1e-9)
}

func TestQueryMetrics_TopTermsSortedByCount(t *testing.T) {
	m := New(Config{})
	m.Record(QueryEvent{Query: "software engineer", Kind: KindTitle, ResultCount: 1})
	m.Record(QueryEvent{Query: "software developer", Kind: KindTitle, ResultCount: 1})

	s := m.Snapshot()

	assert.Equal(t, TermCount{Term: "software", Count: 2}, s.TopTerms[0])
	assert.Len(t, s.TopTerms, 3)
}

func TestQueryMetrics_ConcurrentRecord(t *testing.T) {
	m := New(Config{})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Record(QueryEvent{Query: "nurse", Kind: KindTitle, ResultCount: 1})
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(20), m.Snapshot().TotalQueries)
}

func TestCircularBuffer_EvictsOldest(t *testing.T) {
	b := NewCircularBuffer[int](3)
	for i := 1; i <= 5; i++ {
		b.Add(i)
	}

	assert.Equal(t, []int{3, 4, 5}, b.Items())
	assert.Equal(t, 3, b.Size())
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"design", "build", "systems"}, ExtractTerms("Design and build systems."))
	assert.Nil(t, ExtractTerms("  "))
}
