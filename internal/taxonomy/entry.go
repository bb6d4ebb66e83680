// Package taxonomy loads and holds the occupation taxonomy. A Store is
// immutable once built; a reload produces a new Store.
package taxonomy

import (
	"strings"
	"unicode/utf8"
)

// Entry is one occupation in the taxonomy. Optional fields are resolved at
// load time and are never nil afterwards: missing text is "" and
// missing lists are empty.
type Entry struct {
	Code                   string   `json:"code"`
	Title                  string   `json:"title"`
	SkillTier              string   `json:"skill_tier,omitempty"`
	AliasTitles            []string `json:"alias_titles,omitempty"`
	Keywords               []string `json:"keywords,omitempty"`
	DutiesText             string   `json:"duties,omitempty"`
	DutiesShort            string   `json:"duties_short,omitempty"`
	EmploymentRequirements string   `json:"employment_requirements,omitempty"`
}

// Snippet returns display context for a match: the short duties summary
// when present, else the full duties text, cut to maxRunes with an ellipsis.
// maxRunes <= 0 disables truncation.
func (e Entry) Snippet(maxRunes int) string {
	text := strings.TrimSpace(e.DutiesShort)
	if text == "" {
		text = strings.TrimSpace(e.DutiesText)
	}
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}

	cut := 0
	for i := range text {
		if cut == maxRunes {
			return strings.TrimRight(text[:i], " ") + "..."
		}
		cut++
	}
	return text
}
