package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dutyFixture(t *testing.T) *DutyIndex {
	t.Helper()
	idx, err := NewDutyIndex([]DutyDocument{
		{Code: "21234", Title: "Software engineer", Duties: "Design, develop and test software systems and applications"},
		{Code: "31301", Title: "Registered nurse", Duties: "Provide direct nursing care to patients in hospitals"},
		{Code: "63200", Title: "Cook", Duties: "Prepare and cook meals in restaurants"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestDutyIndex_FindsStemmedTerms(t *testing.T) {
	idx := dutyFixture(t)

	// When: querying with inflected forms
	hits, err := idx.Search(context.Background(), "designing software applications", 5)

	// Then: the software entry ranks first
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "21234", hits[0].Code)
	assert.Greater(t, hits[0].Score, 0.0)
}

func TestDutyIndex_EmptyQueryAndLimit(t *testing.T) {
	idx := dutyFixture(t)
	ctx := context.Background()

	hits, err := idx.Search(ctx, "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Search(ctx, "patients", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, 3, idx.Len())
}

func TestDutyIndex_ClosedFails(t *testing.T) {
	idx := dutyFixture(t)
	require.NoError(t, idx.Close())

	_, err := idx.Search(context.Background(), "cook", 1)
	assert.Error(t, err)
	assert.NoError(t, idx.Close())
}
