package taxonomy

import (
	"fmt"

	"github.com/Aman-CERP/nocmatch/internal/textnorm"
)

// Store is a read-only, ordered set of entries. Entry order is significant:
// position i lines up with embedding vector i in every index built from
// this store.
type Store struct {
	entries []Entry
	byCode  map[string]int
}

// NewStore builds a store from entries, which it takes ownership of.
// Codes must be non-empty and unique.
func NewStore(entries []Entry) (*Store, error) {
	byCode := make(map[string]int, len(entries))
	for i, e := range entries {
		if e.Code == "" {
			return nil, fmt.Errorf("entry %d has empty code", i)
		}
		if _, dup := byCode[e.Code]; dup {
			return nil, fmt.Errorf("duplicate code %q", e.Code)
		}
		byCode[e.Code] = i
	}
	return &Store{entries: entries, byCode: byCode}, nil
}

// Len returns the number of entries.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// At returns the entry at position i.
func (s *Store) At(i int) Entry {
	return s.entries[i]
}

// Lookup returns the entry with the given code.
func (s *Store) Lookup(code string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	i, ok := s.byCode[code]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Position returns the index of code in entry order, or -1.
func (s *Store) Position(code string) int {
	if s == nil {
		return -1
	}
	if i, ok := s.byCode[code]; ok {
		return i
	}
	return -1
}

// Codes returns entry codes in store order.
func (s *Store) Codes() []string {
	codes := make([]string, s.Len())
	for i := range codes {
		codes[i] = s.entries[i].Code
	}
	return codes
}

// DutiesTexts returns the text each entry's duties vector is embedded from,
// in store order. Entries without duties fall back to their title, then to
// their code, so every position gets a non-empty vector.
func (s *Store) DutiesTexts() []string {
	texts := make([]string, s.Len())
	for i, e := range s.entries {
		texts[i] = firstMeaningful(e.DutiesText, e.Title, e.Code)
	}
	return texts
}

// TitleTexts returns the text each entry's title vector is embedded from,
// in store order: the title, else the first alias, else the duties text,
// else the code.
func (s *Store) TitleTexts() []string {
	texts := make([]string, s.Len())
	for i, e := range s.entries {
		var alias string
		if len(e.AliasTitles) > 0 {
			alias = e.AliasTitles[0]
		}
		texts[i] = firstMeaningful(e.Title, alias, e.DutiesText, e.Code)
	}
	return texts
}

// firstMeaningful returns the first value with any letters or digits left
// after normalization.
func firstMeaningful(vals ...string) string {
	for _, v := range vals {
		if textnorm.Normalize(v) != "" {
			return v
		}
	}
	return vals[len(vals)-1]
}
