// Package textnorm canonicalizes free text so titles, aliases, keywords and
// queries compare on equal terms. Normalize output doubles as the lookup
// cache key, so it must stay deterministic.
package textnorm

import (
	"strings"
	"unicode"

	"github.com/xrash/smetrics"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases s, folds Latin diacritics, replaces every character
// outside [a-z0-9] with a space, collapses runs of spaces and trims the ends.
// It never fails: garbage input yields "".
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	folded := foldDiacritics(strings.ToLower(s))

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// foldDiacritics strips combining marks after canonical decomposition, so
// "ingénieur" becomes "ingenieur". The transformer chain is stateful and is
// built per call.
func foldDiacritics(s string) string {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return s
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// IsNumeric reports whether s, ignoring surrounding whitespace, is a
// non-empty run of ASCII digits.
func IsNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Similarity returns a normalized Levenshtein ratio in [0,1]:
// 1 - distance/max(len(a), len(b)). It is symmetric, Similarity(x, x) is 1
// for non-empty x, and an empty side always scores 0.
//
// Inputs are expected to be Normalize output, which is pure ASCII, so byte
// length equals rune length.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	dist := smetrics.WagnerFischer(a, b, 1, 1, 1)
	sim := 1 - float64(dist)/float64(longest)
	if sim < 0 {
		return 0
	}
	return sim
}
