package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Software Engineer", "software engineer"},
		{"punctuation becomes space", "engineer/developer", "engineer developer"},
		{"collapses whitespace", "  data   \t scientist \n", "data scientist"},
		{"keeps digits", "Level 2 Technician", "level 2 technician"},
		{"folds diacritics", "Ingénieur Électrique", "ingenieur electrique"},
		{"strips symbols", "C++ / C# dev!!", "c c dev"},
		{"empty", "", ""},
		{"garbage only", "!!! ---", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_IsIdempotent(t *testing.T) {
	for _, s := range []string{"Software Engineer", "Café-Owner (Manager)", "  x  "} {
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once), s)
	}
}

func TestNormalize_DifferentCasingSameKey(t *testing.T) {
	assert.Equal(t, Normalize("SOFTWARE engineer"), Normalize("Software Engineer"))
}

func TestIsNumeric(t *testing.T) {
	assert.True(t, IsNumeric("21234"))
	assert.True(t, IsNumeric(" 21234 "))
	assert.False(t, IsNumeric(""))
	assert.False(t, IsNumeric("2123a"))
	assert.False(t, IsNumeric("21-234"))
}

func TestSimilarity_Properties(t *testing.T) {
	// Given: a few normalized pairs
	pairs := [][2]string{
		{"software engineer", "software engr"},
		{"nurse", "registered nurse"},
		{"chef", "cook"},
	}

	for _, p := range pairs {
		// Then: symmetric and within bounds
		ab := Similarity(p[0], p[1])
		assert.Equal(t, ab, Similarity(p[1], p[0]))
		assert.GreaterOrEqual(t, ab, 0.0)
		assert.Less(t, ab, 1.0)
	}

	assert.Equal(t, 1.0, Similarity("chef", "chef"))
	assert.Equal(t, 0.0, Similarity("", "chef"))
	assert.Equal(t, 0.0, Similarity("", ""))
}

func TestSimilarity_DecreasesWithEditDistance(t *testing.T) {
	base := "software engineer"
	near := Similarity(base, "software enginee")
	far := Similarity(base, "software eng")

	assert.Greater(t, near, far)
	assert.InDelta(t, 1-4.0/17.0, Similarity(base, "software engr"), 1e-9)
}
