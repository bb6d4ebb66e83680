package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/nocmatch/internal/search"
)

func TestFormatMatchResults_Empty(t *testing.T) {
	got := FormatMatchResults(MatchOutput{Query: "astronaut chef"})

	assert.Equal(t, `No occupations found for "astronaut chef"`, got)
}

func TestFormatMatchResults_ListsResults(t *testing.T) {
	// Given: two ranked results
	out := MatchOutput{
		Query: "nurse",
		Count: 2,
		Results: []search.MatchResult{
			{Code: "31301", Title: "Registered nurse", SkillTier: "1", Score: 0.91, AliasTitles: []string{"RN"}},
			{Code: "32101", Title: "Licensed practical nurse", Score: 0.64, Snippet: "Provide nursing care."},
		},
	}

	// When: formatting
	got := FormatMatchResults(out)

	// Then: each result is numbered with its code, title, and score
	assert.Contains(t, got, `## NOC matches for "nurse"`)
	assert.Contains(t, got, "Found 2 results")
	assert.Contains(t, got, "### 1. 31301 - Registered nurse (score: 0.91)")
	assert.Contains(t, got, "**TEER:** 1")
	assert.Contains(t, got, "**Also known as:** RN")
	assert.Contains(t, got, "### 2. 32101 - Licensed practical nurse (score: 0.64)")
	assert.Contains(t, got, "Provide nursing care.")
}

func TestFormatMatchResults_Singular(t *testing.T) {
	got := FormatMatchResults(MatchOutput{
		Query:   "21234",
		Results: []search.MatchResult{{Code: "21234", Score: 1}},
	})

	assert.Contains(t, got, "Found 1 result\n")
	assert.Contains(t, got, "21234 - (untitled)")
}
