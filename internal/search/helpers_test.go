package search

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/nocmatch/internal/store"
	"github.com/Aman-CERP/nocmatch/internal/taxonomy"
)

// fakeEmbedder returns a fixed vector, or err, and counts calls.
type fakeEmbedder struct {
	vec   []float32
	err   error
	calls atomic.Int32
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func testEntries() []taxonomy.Entry {
	return []taxonomy.Entry{
		{
			Code:        "21234",
			Title:       "Software engineer",
			SkillTier:   "1",
			AliasTitles: []string{"Software developer", "Application programmer"},
			Keywords:    []string{"software", "code"},
			DutiesText:  "Research, design and develop computer software systems. Write and test code.",
		},
		{
			Code:        "31301",
			Title:       "Registered nurse",
			SkillTier:   "1",
			AliasTitles: []string{"RN"},
			Keywords:    []string{"patient"},
			DutiesText:  "Provide direct patient care and coordinate health services.",
			DutiesShort: "Provide nursing care.",
		},
		{
			Code:       "73300",
			Title:      "Truck driver",
			SkillTier:  "3",
			Keywords:   []string{"truck"},
			DutiesText: "Operate heavy trucks to transport goods over urban and long-distance routes.",
		},
	}
}

// testVectors lines up one-hot vectors with testEntries.
func testVectors() [][]float32 {
	return [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

func newTestSnapshot(t *testing.T, entries []taxonomy.Entry, vectors [][]float32) *Snapshot {
	t.Helper()
	s, err := taxonomy.NewStore(entries)
	require.NoError(t, err)

	vi, err := store.NewBruteForceIndex(vectors)
	require.NoError(t, err)

	docs := make([]store.DutyDocument, len(entries))
	for i, e := range entries {
		docs[i] = store.DutyDocument{Code: e.Code, Title: e.Title, Duties: e.DutiesText}
	}
	duties, err := store.NewDutyIndex(docs)
	require.NoError(t, err)

	snap := NewSnapshot(s, vi, duties, 1, "fake")
	t.Cleanup(snap.Retire)
	return snap
}

func codes(results []MatchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Code
	}
	return out
}
