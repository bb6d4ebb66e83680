package search

import (
	"strings"

	"github.com/Aman-CERP/nocmatch/internal/taxonomy"
	"github.com/Aman-CERP/nocmatch/internal/textnorm"
)

// Lexicon holds the normalized comparable fields of every entry, computed
// once per snapshot.
type Lexicon struct {
	store    *taxonomy.Store
	exact    map[string][]int
	titles   []string
	aliases  [][]string
	keywords [][]string
}

// NewLexicon normalizes titles, aliases, and keywords of s.
func NewLexicon(s *taxonomy.Store) *Lexicon {
	n := s.Len()
	l := &Lexicon{
		store:    s,
		exact:    make(map[string][]int, n*2),
		titles:   make([]string, n),
		aliases:  make([][]string, n),
		keywords: make([][]string, n),
	}

	for i := 0; i < n; i++ {
		e := s.At(i)
		l.titles[i] = textnorm.Normalize(e.Title)
		l.addExact(l.titles[i], i)

		for _, a := range e.AliasTitles {
			if na := textnorm.Normalize(a); na != "" {
				l.aliases[i] = append(l.aliases[i], na)
				l.addExact(na, i)
			}
		}
		for _, k := range e.Keywords {
			if nk := textnorm.Normalize(k); nk != "" {
				l.keywords[i] = append(l.keywords[i], nk)
			}
		}
	}
	return l
}

func (l *Lexicon) addExact(key string, pos int) {
	if key == "" {
		return
	}
	list := l.exact[key]
	if len(list) > 0 && list[len(list)-1] == pos {
		return
	}
	l.exact[key] = append(list, pos)
}

// CodeMatch resolves a purely numeric query to the entry with that code.
func (l *Lexicon) CodeMatch(raw string) (int, bool) {
	trimmed := strings.TrimSpace(raw)
	if !textnorm.IsNumeric(trimmed) {
		return -1, false
	}
	pos := l.store.Position(trimmed)
	return pos, pos >= 0
}

// Exact returns the positions, in store order, of entries whose normalized
// title or alias equals norm.
func (l *Lexicon) Exact(norm string) []int {
	return l.exact[norm]
}

// FuzzyScore is the best similarity between norm and the entry's title or
// any of its aliases.
func (l *Lexicon) FuzzyScore(norm string, pos int) float64 {
	best := textnorm.Similarity(norm, l.titles[pos])
	for _, a := range l.aliases[pos] {
		if best == 1 {
			break
		}
		if s := textnorm.Similarity(norm, a); s > best {
			best = s
		}
	}
	return best
}

// KeywordMatches counts the entry's keywords that occur in norm.
func (l *Lexicon) KeywordMatches(norm string, pos int) int {
	n := 0
	for _, k := range l.keywords[pos] {
		if strings.Contains(norm, k) {
			n++
		}
	}
	return n
}
