package search

import (
	"cmp"
	"slices"
)

// Fuse blends a lexical and a semantic score and adds the keyword boost.
// The result is clamped to [0, 1].
func Fuse(lexical, semantic, boost float64, w Weights) float64 {
	return clamp01(w.Lexical*lexical + w.Semantic*semantic + boost)
}

// KeywordBoost returns the additive boost for matched keywords.
func KeywordBoost(matched int, perKeyword float64, maxKeywords int) float64 {
	if matched > maxKeywords {
		matched = maxKeywords
	}
	if matched <= 0 {
		return 0
	}
	return float64(matched) * perKeyword
}

// CandidateWidth is how many semantic neighbours to request for topK.
func CandidateWidth(topK, multiplier, minimum, size int) int {
	width := max(topK*multiplier, minimum)
	return min(width, size)
}

type scored struct {
	pos   int
	code  string
	score float64
}

// orderScored sorts by score descending, then code ascending.
func orderScored(items []scored) {
	slices.SortFunc(items, func(a, b scored) int {
		if a.score != b.score {
			return cmp.Compare(b.score, a.score)
		}
		return cmp.Compare(a.code, b.code)
	})
}

// topUnique keeps the first occurrence of each code, up to k items.
func topUnique(items []scored, k int) []scored {
	out := make([]scored, 0, min(k, len(items)))
	seen := make(map[string]struct{}, k)
	for _, it := range items {
		if len(out) == k {
			break
		}
		if _, dup := seen[it.code]; dup {
			continue
		}
		seen[it.code] = struct{}{}
		out = append(out, it)
	}
	return out
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
